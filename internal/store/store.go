// Package store owns the job record collection. It loads records once from
// a fresh snapshot or the configured Source, persists new snapshots, and
// hands out stable per-record references for reverse lookup.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/jobs"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmap/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const DefaultMaxAge = 24 * time.Hour

// LoadError reports that no records could be obtained. It matches
// apperrors.ErrLoadFailed as well as the underlying cause.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading job records from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{apperrors.ErrLoadFailed, e.Err}
}

// Options configure a Store. Zero values select defaults.
type Options struct {
	Snapshots SnapshotStore
	MaxAge    time.Duration
	IOTimeout time.Duration
	Retry     resilience.RetryConfig
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

type Store struct {
	source    Source
	snapshots SnapshotStore
	maxAge    time.Duration
	ioTimeout time.Duration
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
	metrics   *metrics.Metrics
	now       func() time.Time
	group     singleflight.Group
	logger    *slog.Logger

	mu       sync.RWMutex
	records  []jobs.JobRecord
	loaded   bool
	loadedAt time.Time
	version  uint64
}

func New(source Source, opts Options) *Store {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := opts.Metrics
	return &Store{
		source:    source,
		snapshots: opts.Snapshots,
		maxAge:    opts.MaxAge,
		ioTimeout: opts.IOTimeout,
		retry:     opts.Retry,
		breaker: resilience.NewCircuitBreaker("job-source", resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			},
		}),
		metrics: m,
		now:     opts.Now,
		logger:  slog.Default().With("component", "record-store", "source", source.Name()),
	}
}

// Load makes the collection available. Concurrent callers share a single
// in-flight load; once it has succeeded further calls return immediately.
func (s *Store) Load(ctx context.Context) error {
	if s.Loaded() {
		return nil
	}
	return s.shared(ctx, false)
}

// Reload fetches from the source regardless of snapshot age and replaces
// the collection. On failure the previous collection stays in place. A
// Reload that starts while another load is in flight shares its outcome.
func (s *Store) Reload(ctx context.Context) error {
	return s.shared(ctx, true)
}

// shared runs one load at a time on a context detached from any single
// caller, so a cancelled caller stops waiting without failing the others.
func (s *Store) shared(ctx context.Context, force bool) error {
	ch := s.group.DoChan("load", func() (any, error) {
		if !force && s.Loaded() {
			return nil, nil
		}
		return nil, s.load(context.WithoutCancel(ctx), force)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) load(ctx context.Context, force bool) error {
	var stale *Snapshot
	if !force && s.snapshots != nil {
		snap, err := s.readSnapshot(ctx)
		switch {
		case err == nil && s.now().Sub(snap.SavedAt) < s.maxAge:
			s.install(snap.Records, snap.SavedAt)
			s.metrics.LoadsTotal.WithLabelValues("snapshot", "success").Inc()
			s.logger.Info("records loaded from snapshot",
				"records", len(snap.Records),
				"saved_at", snap.SavedAt,
			)
			return nil
		case err == nil:
			stale = snap
			s.logger.Info("snapshot expired", "saved_at", snap.SavedAt, "max_age", s.maxAge)
			s.clearSnapshot(ctx)
		case errors.Is(err, apperrors.ErrSnapshotAbsent):
		default:
			s.logger.Warn("snapshot unreadable, fetching", "error", err)
			s.clearSnapshot(ctx)
		}
	}

	records, err := s.fetch(ctx)
	if err != nil {
		if stale != nil {
			s.install(stale.Records, stale.SavedAt)
			s.metrics.LoadsTotal.WithLabelValues("stale_snapshot", "success").Inc()
			s.logger.Warn("fetch failed, serving expired snapshot",
				"error", err,
				"records", len(stale.Records),
				"saved_at", stale.SavedAt,
			)
			return nil
		}
		s.metrics.LoadsTotal.WithLabelValues("fetch", "error").Inc()
		return &LoadError{Source: s.source.Name(), Err: err}
	}

	now := s.now()
	normalizeIDs(records)
	s.install(records, now)
	s.metrics.LoadsTotal.WithLabelValues("fetch", "success").Inc()
	s.logger.Info("records fetched", "records", len(records))
	s.writeSnapshot(ctx, &Snapshot{Records: records, SavedAt: now})
	return nil
}

func (s *Store) fetch(ctx context.Context) ([]jobs.JobRecord, error) {
	var records []jobs.JobRecord
	err := s.breaker.Execute(func() error {
		return resilience.Retry(ctx, "fetch-jobs", s.retry, func() error {
			var err error
			records, err = s.source.Fetch(ctx)
			return err
		})
	})
	return records, err
}

func (s *Store) readSnapshot(ctx context.Context) (*Snapshot, error) {
	snap, err := resilience.Call(ctx, s.ioTimeout, "snapshot-read", s.snapshots.Read)
	switch {
	case err == nil:
		s.metrics.SnapshotOpsTotal.WithLabelValues("read", "success").Inc()
	case errors.Is(err, apperrors.ErrSnapshotAbsent):
		s.metrics.SnapshotOpsTotal.WithLabelValues("read", "absent").Inc()
	case errors.Is(err, apperrors.ErrTimeout):
		s.metrics.SnapshotOpsTotal.WithLabelValues("read", "timeout").Inc()
	default:
		s.metrics.SnapshotOpsTotal.WithLabelValues("read", "error").Inc()
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) writeSnapshot(ctx context.Context, snap *Snapshot) {
	if s.snapshots == nil {
		return
	}
	err := resilience.WithTimeout(ctx, s.ioTimeout, "snapshot-write", func(ctx context.Context) error {
		return s.snapshots.Write(ctx, snap)
	})
	if err != nil {
		s.metrics.SnapshotOpsTotal.WithLabelValues("write", "error").Inc()
		s.logger.Warn("writing snapshot failed", "error", err)
		return
	}
	s.metrics.SnapshotOpsTotal.WithLabelValues("write", "success").Inc()
}

func (s *Store) clearSnapshot(ctx context.Context) {
	err := resilience.WithTimeout(ctx, s.ioTimeout, "snapshot-clear", func(ctx context.Context) error {
		return s.snapshots.Clear(ctx)
	})
	if err != nil {
		s.metrics.SnapshotOpsTotal.WithLabelValues("clear", "error").Inc()
		s.logger.Warn("clearing snapshot failed", "error", err)
		return
	}
	s.metrics.SnapshotOpsTotal.WithLabelValues("clear", "success").Inc()
}

func (s *Store) install(records []jobs.JobRecord, at time.Time) {
	s.mu.Lock()
	s.records = records
	s.loaded = true
	s.loadedAt = at
	s.version++
	s.mu.Unlock()
	s.metrics.RecordsLoaded.Set(float64(len(records)))
}

// normalizeIDs assigns "job-<n>" to records whose id is blank.
func normalizeIDs(records []jobs.JobRecord) {
	for i := range records {
		records[i].ID = strings.TrimSpace(records[i].ID)
		if records[i].ID == "" {
			records[i].ID = "job-" + strconv.Itoa(i)
		}
	}
}

// All returns the current collection in source order. The slice is shared
// and must not be modified.
func (s *Store) All() []jobs.JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// LoadedAt is the fetch time of the current collection, which for a
// snapshot load is the snapshot's timestamp.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Version increases every time the collection is replaced.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Ref is the reference of the record at position i: "{i}:{id}".
func Ref(i int, rec jobs.JobRecord) string {
	return strconv.Itoa(i) + ":" + rec.ID
}

// Ref returns the reference of the record at position i of the current
// collection.
func (s *Store) Ref(i int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.records) {
		return ""
	}
	return Ref(i, s.records[i])
}

// Resolve returns the record a reference points at. References from an
// earlier collection whose position now holds another record do not
// resolve.
func (s *Store) Resolve(ref string) (jobs.JobRecord, bool) {
	pos, id, ok := strings.Cut(ref, ":")
	if !ok {
		return jobs.JobRecord{}, false
	}
	i, err := strconv.Atoi(pos)
	if err != nil {
		return jobs.JobRecord{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.records) || s.records[i].ID != id {
		return jobs.JobRecord{}, false
	}
	return s.records[i], true
}
