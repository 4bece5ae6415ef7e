package jobs

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

func scenarioRecords() []JobRecord {
	return []JobRecord{
		{ID: "A", Title: "Gardener"},
		{ID: "B", Company: "Acme", Locations: []LocationRecord{
			{City: "Thun", Latitude: Float(46.75), Longitude: Float(math.NaN())},
		}},
		{ID: "C", Title: "Java Developer", Company: "Bank", Categories: []string{"IT", "Finance"}, Locations: []LocationRecord{
			{City: "Bern", Address: "Bundesplatz 1", Latitude: Float(46.94), Longitude: Float(7.44)},
			{City: "Basel", Latitude: Float(47.55), Longitude: Float(7.59)},
		}},
	}
}

func TestToDisplayJobsScenario(t *testing.T) {
	got := ToDisplayJobs(scenarioRecords())
	if len(got) != 4 {
		t.Fatalf("got %d display jobs, want 4", len(got))
	}
	for _, dj := range got[:2] {
		if dj.Location != PlaceholderLocation {
			t.Errorf("%s location = %q, want placeholder", dj.OriginalID, dj.Location)
		}
		if dj.Latitude != 0 || dj.Longitude != 0 {
			t.Errorf("%s placeholder coordinates = %v,%v", dj.OriginalID, dj.Latitude, dj.Longitude)
		}
	}
	if got[0].Company != PlaceholderCompany || got[1].Title != PlaceholderTitle {
		t.Errorf("placeholders not applied: %+v %+v", got[0], got[1])
	}
	if got[2].Location != "Bundesplatz 1, Bern" || got[3].Location != "Basel" {
		t.Errorf("locations = %q, %q", got[2].Location, got[3].Location)
	}
	if got[2].ID != "C-0" || got[3].ID != "C-1" {
		t.Errorf("ids = %q, %q", got[2].ID, got[3].ID)
	}
	if got[2].Salary != PlaceholderSalary || got[2].Logo != PlaceholderLogo {
		t.Errorf("salary/logo = %q/%q", got[2].Salary, got[2].Logo)
	}
}

func TestToDisplayJobsUniqueIDs(t *testing.T) {
	loc := LocationRecord{City: "Bern", Latitude: Float(1), Longitude: Float(2)}
	records := []JobRecord{
		{ID: "dup", Locations: []LocationRecord{loc, loc}},
		{ID: "dup", Locations: []LocationRecord{loc}},
		{ID: "dup"},
		{ID: "dup-0", Locations: []LocationRecord{loc, loc}},
	}
	got := ToDisplayJobs(records)
	seen := make(map[string]bool)
	for _, dj := range got {
		if seen[dj.ID] {
			t.Fatalf("duplicate display id %q in %+v", dj.ID, got)
		}
		seen[dj.ID] = true
	}
	if len(got) != 6 {
		t.Errorf("got %d display jobs, want 6", len(got))
	}
}

func TestToDisplayJobsCoverage(t *testing.T) {
	records := scenarioRecords()
	got := ToDisplayJobs(records)
	per := make(map[string]int)
	for _, dj := range got {
		per[dj.OriginalID]++
	}
	for _, rec := range records {
		if per[rec.ID] == 0 {
			t.Errorf("record %s contributed no display job", rec.ID)
		}
	}
}

func TestToDisplayJobsIdempotentAndPure(t *testing.T) {
	records := scenarioRecords()
	before, err := json.Marshal(records)
	if err != nil {
		t.Fatal(err)
	}
	first := ToDisplayJobs(records)
	first[0].Tags = append(first[0].Tags, "mutated")
	second := ToDisplayJobs(records)

	after, _ := json.Marshal(records)
	if string(before) != string(after) {
		t.Errorf("transform mutated its input")
	}
	third := ToDisplayJobs(records)
	if !reflect.DeepEqual(second, third) {
		t.Errorf("transform is not deterministic")
	}
	if len(second[0].Tags) != 0 {
		t.Errorf("tags share backing storage with a previous batch: %v", second[0].Tags)
	}
}

func TestExpandWithLocationNeedle(t *testing.T) {
	rec := JobRecord{ID: "Z", Locations: []LocationRecord{
		{City: "Zürich", Latitude: Float(47.37), Longitude: Float(8.54)},
		{City: "Bern", Latitude: Float(46.94), Longitude: Float(7.44)},
		{City: "Zürich-Oerlikon"},
	}}
	got := NewExpander(2).Expand(nil, rec, "zürich")
	if len(got) != 1 || got[0].Location != "Zürich" {
		t.Fatalf("got %+v, want only the valid Zürich location", got)
	}
	if none := NewExpander(1).Expand(nil, rec, "geneva"); len(none) != 0 {
		t.Errorf("non-matching needle produced %+v", none)
	}
}

func TestLocationValid(t *testing.T) {
	tests := []struct {
		name string
		loc  LocationRecord
		want bool
	}{
		{"both present", LocationRecord{Latitude: Float(1), Longitude: Float(2)}, true},
		{"explicit zero", LocationRecord{Latitude: Float(0), Longitude: Float(0)}, true},
		{"missing longitude", LocationRecord{Latitude: Float(1)}, false},
		{"nan", LocationRecord{Latitude: Float(1), Longitude: Float(math.NaN())}, false},
		{"inf", LocationRecord{Latitude: Float(math.Inf(1)), Longitude: Float(2)}, false},
	}
	for _, tt := range tests {
		if got := tt.loc.Valid(); got != tt.want {
			t.Errorf("%s: Valid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLocationUnmarshalCoordinates(t *testing.T) {
	data := `[
		{"city":"A","latitude":46.5,"longitude":"7.25"},
		{"city":"B","latitude":0,"longitude":0},
		{"city":"C","latitude":"NaN","longitude":7},
		{"city":"D","latitude":null},
		{"city":"E","latitude":"north","longitude":{}}
	]`
	var locs []LocationRecord
	if err := json.Unmarshal([]byte(data), &locs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []bool{true, true, false, false, false}
	for i, loc := range locs {
		if loc.Valid() != want[i] {
			t.Errorf("%s: Valid() = %v, want %v", loc.City, loc.Valid(), want[i])
		}
	}
	if *locs[0].Longitude != 7.25 {
		t.Errorf("string longitude parsed as %v", *locs[0].Longitude)
	}
}

func TestDisplayJobJSONShape(t *testing.T) {
	data, err := json.Marshal(ToDisplayJobs(scenarioRecords()[:1])[0])
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "originalId", "title", "company", "location", "latitude", "longitude", "link", "salary", "tags", "logo"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("display job JSON lacks %q: %s", key, data)
		}
	}
	if len(fields) != 11 {
		t.Errorf("display job JSON has %d fields, want 11", len(fields))
	}
}
