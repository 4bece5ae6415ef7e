package index

// Field identifies one searchable part of a Document.
type Field int

const (
	FieldTitle Field = iota
	FieldCompany
	FieldCategories
	FieldLocation
	numFields
)

var fieldBoosts = [numFields]float64{
	FieldTitle:      3,
	FieldCompany:    2,
	FieldCategories: 1.5,
	FieldLocation:   1,
}

func (f Field) String() string {
	switch f {
	case FieldTitle:
		return "title"
	case FieldCompany:
		return "company"
	case FieldCategories:
		return "categories"
	case FieldLocation:
		return "location"
	}
	return "unknown"
}

// Posting records how often a term occurs in each field of one document.
// Doc is the document's ordinal in build order.
type Posting struct {
	Doc       int
	Frequency [numFields]int
}

// PostingList is ordered by ascending Doc.
type PostingList []*Posting

// Document is the indexable view of one job record.
type Document struct {
	Ref        string
	Title      string
	Company    string
	Categories string
	Location   string
}

func (d Document) field(f Field) string {
	switch f {
	case FieldTitle:
		return d.Title
	case FieldCompany:
		return d.Company
	case FieldCategories:
		return d.Categories
	default:
		return d.Location
	}
}
