// Package engine answers job queries. It narrows the record collection by
// full-text search and location, expands the survivors into DisplayJobs,
// memoizes the full result per (query, location) and pages over it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/jobs"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/search/index"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmap/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/tracing"
)

// RecordStore is the part of store.Store the engine reads from.
type RecordStore interface {
	Load(ctx context.Context) error
	Loaded() bool
	All() []jobs.JobRecord
	Resolve(ref string) (jobs.JobRecord, bool)
}

// Request selects and pages DisplayJobs. A blank Query matches every
// record and a blank Location applies no location filter. Limit <= 0
// means no limit.
type Request struct {
	Query    string
	Location string
	Limit    int
	Offset   int
}

type Result struct {
	Items []jobs.DisplayJob `json:"items"`
	Total int               `json:"total"`
	// Cached reports whether the full result came from the cache.
	Cached bool `json:"-"`
}

type Engine struct {
	store   RecordStore
	index   *index.Index
	cache   *cache.ResultCache
	metrics *metrics.Metrics
	logger  *slog.Logger

	buildMu sync.Mutex
}

func New(st RecordStore, ix *index.Index, c *cache.ResultCache, m *metrics.Metrics) *Engine {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Engine{
		store:   st,
		index:   ix,
		cache:   c,
		metrics: m,
		logger:  slog.Default().With("component", "query-engine"),
	}
}

// Init loads the record store and builds the index unless a build has
// already happened. A failed load is returned as a *store.LoadError and
// can be retried by calling Init again.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.store.Load(ctx); err != nil {
		return err
	}
	if e.index.Ready() {
		return nil
	}
	return e.Rebuild(ctx)
}

// Rebuild indexes the store's current collection and drops every cached
// result. Concurrent rebuilds run one at a time.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	start := time.Now()
	records := e.store.All()
	docs := make([]index.Document, len(records))
	for i, rec := range records {
		docs[i] = documentFor(store.Ref(i, rec), rec)
	}
	if err := e.index.Build(ctx, docs); err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}
	e.metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	e.metrics.IndexedDocs.Set(float64(len(docs)))
	e.cache.InvalidateAll()
	return nil
}

// Close drops cached results. The engine may not be used afterwards.
func (e *Engine) Close() error {
	e.cache.InvalidateAll()
	e.logger.Info("engine closed")
	return nil
}

func documentFor(ref string, rec jobs.JobRecord) index.Document {
	return index.Document{
		Ref:        ref,
		Title:      rec.Title,
		Company:    rec.Company,
		Categories: strings.Join(rec.Categories, " "),
		Location:   rec.SearchText(),
	}
}

// Query returns one page of DisplayJobs and the total number matched.
func (e *Engine) Query(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, span := tracing.StartChildSpan(ctx, "engine.query")
	defer span.End()

	query := Normalize(req.Query)
	location := Normalize(req.Location)
	key := cache.Key(query, location, location != "")
	span.SetAttr("query", query)
	span.SetAttr("location", location)

	if !e.store.Loaded() {
		if err := e.Init(ctx); err != nil {
			e.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
			logger.FromContext(ctx).Warn("query without job records", "error", err)
			return nil, err
		}
	}

	all, cached, err := e.cache.GetOrCompute(key, func() ([]jobs.DisplayJob, error) {
		return e.compute(ctx, query, location)
	})
	if err != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	cacheStatus := "miss"
	if cached {
		cacheStatus = "hit"
	}
	resultType := cacheStatus
	if len(all) == 0 {
		resultType = "zero_result"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	e.metrics.SearchResultsCount.Observe(float64(len(all)))
	span.SetAttr("cache", cacheStatus)
	span.SetAttr("total", len(all))

	logger.FromContext(ctx).Debug("query answered",
		"query", query,
		"location", location,
		"total", len(all),
		"cache", cacheStatus,
	)
	return &Result{
		Items:  paginate(all, req.Offset, req.Limit),
		Total:  len(all),
		Cached: cached,
	}, nil
}

// AllJobs pages over every record.
func (e *Engine) AllJobs(ctx context.Context, limit, offset int) (*Result, error) {
	return e.Query(ctx, Request{Limit: limit, Offset: offset})
}

func (e *Engine) Search(ctx context.Context, query string, limit, offset int) (*Result, error) {
	return e.Query(ctx, Request{Query: query, Limit: limit, Offset: offset})
}

func (e *Engine) JobsByLocation(ctx context.Context, location string, limit, offset int) (*Result, error) {
	return e.Query(ctx, Request{Location: location, Limit: limit, Offset: offset})
}

func (e *Engine) compute(ctx context.Context, query, location string) ([]jobs.DisplayJob, error) {
	_, span := tracing.StartChildSpan(ctx, "engine.compute")
	defer span.End()

	var candidates []jobs.JobRecord
	if query != "" {
		hits, err := e.index.Query(query, index.Options{})
		if errors.Is(err, apperrors.ErrIndexNotReady) {
			e.metrics.SearchQueriesTotal.WithLabelValues("not_ready").Inc()
			e.logger.Warn("query before index is ready, returning no results", "query", query)
			return []jobs.DisplayJob{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("querying index: %w", err)
		}
		candidates = make([]jobs.JobRecord, 0, len(hits))
		for _, hit := range hits {
			if rec, ok := e.store.Resolve(hit.Ref); ok {
				candidates = append(candidates, rec)
			}
		}
		span.SetAttr("index_hits", len(hits))
	} else {
		candidates = e.store.All()
	}

	if location != "" {
		filtered := make([]jobs.JobRecord, 0, len(candidates))
		for _, rec := range candidates {
			if rec.MatchesLocation(location) {
				filtered = append(filtered, rec)
			}
		}
		candidates = filtered
	}

	exp := jobs.NewExpander(len(candidates))
	out := make([]jobs.DisplayJob, 0, len(candidates))
	for _, rec := range candidates {
		out = exp.Expand(out, rec, location)
	}
	return out, nil
}

// Normalize lower-cases s and collapses runs of whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// paginate returns all[offset:offset+limit] with its capacity clipped, so
// appending to a page never writes into the cached slice.
func paginate(all []jobs.DisplayJob, offset, limit int) []jobs.DisplayJob {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []jobs.DisplayJob{}
	}
	end := len(all)
	// compared against the remaining length so a huge limit cannot overflow
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return all[offset:end:end]
}
