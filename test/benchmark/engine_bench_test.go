package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/jobs"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/search/index"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/store"
)

type memorySource struct{ records []jobs.JobRecord }

func (s memorySource) Name() string { return "memory" }

func (s memorySource) Fetch(ctx context.Context) ([]jobs.JobRecord, error) {
	return s.records, nil
}

func syntheticRecords(n int) []jobs.JobRecord {
	recs := make([]jobs.JobRecord, n)
	for i := range recs {
		locs := make([]jobs.LocationRecord, 1+i%3)
		for j := range locs {
			city := cities[(i+j)%len(cities)]
			locs[j] = jobs.LocationRecord{
				City:      city,
				Country:   "Switzerland",
				Latitude:  jobs.Float(46 + float64(j)/10),
				Longitude: jobs.Float(7 + float64(j)/10),
			}
		}
		recs[i] = jobs.JobRecord{
			ID:         fmt.Sprintf("job-%d", i),
			Title:      titles[i%len(titles)],
			Company:    companies[i%len(companies)],
			Categories: []string{"full-time"},
			Locations:  locs,
		}
	}
	return recs
}

func newEngine(b *testing.B, n int) (*engine.Engine, *cache.ResultCache) {
	b.Helper()
	c := cache.New(0, nil)
	eng := engine.New(store.New(memorySource{records: syntheticRecords(n)}, store.Options{}), index.New(0), c, nil)
	if err := eng.Init(context.Background()); err != nil {
		b.Fatal(err)
	}
	return eng, c
}

func BenchmarkEngineQueryCold(b *testing.B) {
	eng, c := newEngine(b, 20000)
	ctx := context.Background()
	req := engine.Request{Query: "engineer", Location: "zurich", Limit: 50}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.InvalidateAll()
		if _, err := eng.Query(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineQueryCached(b *testing.B) {
	eng, _ := newEngine(b, 20000)
	ctx := context.Background()
	req := engine.Request{Query: "nurse", Limit: 50, Offset: 100}
	if _, err := eng.Query(ctx, req); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := eng.Query(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineAllJobsPaging(b *testing.B) {
	eng, _ := newEngine(b, 20000)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := eng.AllJobs(ctx, 50, (i%100)*50); err != nil {
			b.Fatal(err)
		}
	}
}
