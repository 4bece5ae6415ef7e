// Package jobs defines the job record model ingested from the bulk source
// and the DisplayJob projection consumed by listing and map views.
package jobs

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// JobRecord is a normalized job posting as ingested from the bulk source.
type JobRecord struct {
	ID              string           `json:"id"`
	Title           string           `json:"title,omitempty"`
	Company         string           `json:"company,omitempty"`
	Locations       []LocationRecord `json:"locations,omitempty"`
	Categories      []string         `json:"categories,omitempty"`
	EmploymentTypes []string         `json:"employmentTypes,omitempty"`
	Language        string           `json:"language,omitempty"`
	PostedAt        string           `json:"postedAt,omitempty"`
	ValidUntil      string           `json:"validUntil,omitempty"`
	Link            string           `json:"link,omitempty"`
	ApplyLink       string           `json:"applyLink,omitempty"`
	SourceFile      string           `json:"sourceFile,omitempty"`
}

// LocationRecord is one place a job is offered at. Latitude and Longitude
// are nil when the source omitted them.
type LocationRecord struct {
	City       string   `json:"city,omitempty"`
	Region     string   `json:"region,omitempty"`
	Country    string   `json:"country,omitempty"`
	Address    string   `json:"address,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// Valid reports whether both coordinates are present and finite. An
// explicit zero is a valid coordinate.
func (l LocationRecord) Valid() bool {
	return finite(l.Latitude) && finite(l.Longitude)
}

// Matches reports whether city or address contains needle, ignoring case.
// needle must already be lower-cased.
func (l LocationRecord) Matches(needle string) bool {
	return strings.Contains(strings.ToLower(l.City), needle) ||
		strings.Contains(strings.ToLower(l.Address), needle)
}

// Label formats the location for display: "address, city", or whichever
// of the two is present.
func (l LocationRecord) Label() string {
	city := strings.TrimSpace(l.City)
	addr := strings.TrimSpace(l.Address)
	switch {
	case addr != "" && city != "":
		return addr + ", " + city
	case city != "":
		return city
	default:
		return addr
	}
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// UnmarshalJSON accepts coordinates as JSON numbers or numeric strings.
// Anything else leaves the coordinate unset.
func (l *LocationRecord) UnmarshalJSON(data []byte) error {
	type plain LocationRecord
	var raw struct {
		plain
		Latitude  json.RawMessage `json:"latitude"`
		Longitude json.RawMessage `json:"longitude"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = LocationRecord(raw.plain)
	l.Latitude = parseCoordinate(raw.Latitude)
	l.Longitude = parseCoordinate(raw.Longitude)
	return nil
}

func parseCoordinate(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		raw = []byte(strings.TrimSpace(s))
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// SearchText returns the synthesized location string used for indexing:
// city and address of every location, joined.
func (r JobRecord) SearchText() string {
	parts := make([]string, 0, len(r.Locations)*2)
	for _, loc := range r.Locations {
		if loc.City != "" {
			parts = append(parts, loc.City)
		}
		if loc.Address != "" {
			parts = append(parts, loc.Address)
		}
	}
	return strings.Join(parts, " ")
}

// MatchesLocation reports whether any location's city or address contains
// needle. needle must already be lower-cased.
func (r JobRecord) MatchesLocation(needle string) bool {
	for _, loc := range r.Locations {
		if loc.Matches(needle) {
			return true
		}
	}
	return false
}

// Float returns a pointer to v, for building records in code.
func Float(v float64) *float64 {
	return &v
}
