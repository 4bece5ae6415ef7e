// Package cache memoizes complete, unpaginated query results in memory
// with a fixed time-to-live. Concurrent misses for the same key share one
// computation.
package cache

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/jobs"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const DefaultTTL = 5 * time.Minute

type entry struct {
	results  []jobs.DisplayJob
	storedAt time.Time
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hitRate"`
}

// ResultCache is safe for concurrent use. Cached slices are shared between
// callers and must be treated as read-only.
type ResultCache struct {
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64

	mu         sync.Mutex
	entries    map[string]entry
	generation uint64
}

func New(ttl time.Duration, m *metrics.Metrics) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &ResultCache{
		ttl:     ttl,
		now:     time.Now,
		metrics: m,
		entries: make(map[string]entry),
		logger:  slog.Default().With("component", "result-cache"),
	}
}

// Key builds the cache key for an already normalized query and location.
// Both parts are quoted and an absent location is "*", so an absent
// location never collides with an empty one.
func Key(query, location string, hasLocation bool) string {
	loc := "*"
	if hasLocation {
		loc = strconv.Quote(location)
	}
	return strconv.Quote(query) + "|" + loc
}

// Get returns the results stored under key. An entry older than the TTL is
// a miss and is evicted.
func (c *ResultCache) Get(key string) ([]jobs.DisplayJob, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		c.metrics.CacheEntries.Set(float64(len(c.entries)))
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		c.metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHitsTotal.Inc()
	return e.results, true
}

func (c *ResultCache) Set(key string, results []jobs.DisplayJob) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, results)
}

func (c *ResultCache) setLocked(key string, results []jobs.DisplayJob) {
	c.entries[key] = entry{results: results, storedAt: c.now()}
	c.metrics.CacheEntries.Set(float64(len(c.entries)))
}

// GetOrCompute returns the cached results for key or runs compute once for
// all concurrent callers and stores its output. A result computed across
// an InvalidateAll is returned to its callers but not stored.
func (c *ResultCache) GetOrCompute(key string, compute func() ([]jobs.DisplayJob, error)) ([]jobs.DisplayJob, bool, error) {
	if results, ok := c.Get(key); ok {
		return results, true, nil
	}
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	val, err, _ := c.group.Do(strconv.FormatUint(gen, 10)+"/"+key, func() (any, error) {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok && c.now().Sub(e.storedAt) < c.ttl {
			c.mu.Unlock()
			return e.results, nil
		}
		c.mu.Unlock()

		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generation == gen {
			c.setLocked(key, results)
		}
		c.mu.Unlock()
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]jobs.DisplayJob), false, nil
}

// InvalidateAll drops every entry.
func (c *ResultCache) InvalidateAll() {
	c.mu.Lock()
	dropped := len(c.entries)
	c.entries = make(map[string]entry)
	c.generation++
	c.metrics.CacheEntries.Set(0)
	c.mu.Unlock()
	c.logger.Info("cache invalidated", "entries_dropped", dropped)
}

func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResultCache) Stats() Stats {
	s := Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.Len(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
