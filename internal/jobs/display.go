package jobs

import "strconv"

const (
	PlaceholderTitle    = "No Title"
	PlaceholderCompany  = "Unknown Company"
	PlaceholderLocation = "Location not specified"
	PlaceholderSalary   = "Salary not specified"
	PlaceholderLogo     = "/images/company-placeholder.svg"
)

// DisplayJob is a one-location projection of a JobRecord. Its JSON shape
// is consumed by the listing and map views and must stay stable.
type DisplayJob struct {
	ID         string   `json:"id"`
	OriginalID string   `json:"originalId"`
	Title      string   `json:"title"`
	Company    string   `json:"company"`
	Location   string   `json:"location"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Link       string   `json:"link"`
	Salary     string   `json:"salary"`
	Tags       []string `json:"tags"`
	Logo       string   `json:"logo"`
}

// Expander turns JobRecords into DisplayJobs while keeping ids unique
// across everything it has produced. One Expander covers one batch.
type Expander struct {
	seen map[string]struct{}
}

// NewExpander returns an Expander sized for roughly n output rows.
func NewExpander(n int) *Expander {
	return &Expander{seen: make(map[string]struct{}, n)}
}

// Expand appends the DisplayJobs for rec to dst. When locationNeedle is
// non-empty only valid locations whose city or address contain it are
// emitted; otherwise every valid location is, or a single placeholder row
// when there is none.
func (e *Expander) Expand(dst []DisplayJob, rec JobRecord, locationNeedle string) []DisplayJob {
	emitted := false
	for i, loc := range rec.Locations {
		if !loc.Valid() {
			continue
		}
		if locationNeedle != "" && !loc.Matches(locationNeedle) {
			continue
		}
		dj := e.base(rec, strconv.Itoa(i))
		dj.Location = loc.Label()
		if dj.Location == "" {
			dj.Location = PlaceholderLocation
		}
		dj.Latitude = *loc.Latitude
		dj.Longitude = *loc.Longitude
		dst = append(dst, dj)
		emitted = true
	}
	if !emitted && locationNeedle == "" {
		dj := e.base(rec, "0")
		dj.Location = PlaceholderLocation
		dst = append(dst, dj)
	}
	return dst
}

func (e *Expander) base(rec JobRecord, suffix string) DisplayJob {
	title := rec.Title
	if title == "" {
		title = PlaceholderTitle
	}
	company := rec.Company
	if company == "" {
		company = PlaceholderCompany
	}
	link := rec.Link
	if link == "" {
		link = rec.ApplyLink
	}
	tags := make([]string, len(rec.Categories))
	copy(tags, rec.Categories)
	return DisplayJob{
		ID:         e.uniqueID(rec.ID + "-" + suffix),
		OriginalID: rec.ID,
		Title:      title,
		Company:    company,
		Link:       link,
		Salary:     PlaceholderSalary,
		Tags:       tags,
		Logo:       PlaceholderLogo,
	}
}

func (e *Expander) uniqueID(base string) string {
	id := base
	for n := 1; ; n++ {
		if _, taken := e.seen[id]; !taken {
			break
		}
		id = base + "-" + strconv.Itoa(n)
	}
	e.seen[id] = struct{}{}
	return id
}

// ToDisplayJobs expands a whole batch with fresh id bookkeeping.
func ToDisplayJobs(records []JobRecord) []DisplayJob {
	e := NewExpander(len(records))
	out := make([]DisplayJob, 0, len(records))
	for _, rec := range records {
		out = e.Expand(out, rec, "")
	}
	return out
}
