// Package app assembles the query stack from configuration: record source,
// snapshot backend, store, index, result cache and engine. The server and
// the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/search/index"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/store"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/jobmap/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/resilience"
)

// Stack is the wired query stack. Postgres and Redis are nil unless the
// configuration needs them.
type Stack struct {
	Store    *store.Store
	Index    *index.Index
	Cache    *cache.ResultCache
	Engine   *engine.Engine
	Postgres *postgres.Client
	Redis    *pkgredis.Client

	closers []func() error
}

// Build wires a Stack. Nothing is loaded yet; call Engine.Init. A Redis
// snapshot backend that cannot be reached degrades to no snapshots.
func Build(cfg *config.Config, m *metrics.Metrics) (*Stack, error) {
	s := &Stack{}
	logger := slog.Default().With("component", "app")

	pgRequired := cfg.Source.Kind == "postgres" || cfg.Admin.Keys == "postgres"
	if pgRequired || cfg.Analytics.Persist {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			if pgRequired {
				return nil, fmt.Errorf("connecting to postgres: %w", err)
			}
			logger.Warn("postgres unavailable, analytics persistence disabled", "error", err)
		} else {
			s.Postgres = pg
			s.closers = append(s.closers, pg.Close)
		}
	}

	src, err := newSource(cfg, s.Postgres)
	if err != nil {
		s.Close()
		return nil, err
	}

	var snapshots store.SnapshotStore
	switch cfg.Snapshot.Backend {
	case "file":
		snapshots = store.NewFileSnapshotStore(cfg.Snapshot.Dir, cfg.Snapshot.Key)
	case "redis":
		rc, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, snapshots disabled", "addr", cfg.Redis.Addr, "error", err)
			break
		}
		s.Redis = rc
		s.closers = append(s.closers, rc.Close)
		snapshots = store.NewRedisSnapshotStore(rc, cfg.Snapshot.Key)
	}

	s.Store = store.New(src, store.Options{
		Snapshots: snapshots,
		MaxAge:    cfg.Snapshot.MaxAge,
		IOTimeout: cfg.Snapshot.Timeout,
		Retry:     resilience.RetryConfig{MaxAttempts: cfg.Source.Retries},
		Metrics:   m,
	})
	s.Index = index.New(cfg.Index.BatchSize)
	s.Cache = cache.New(cfg.Cache.TTL, m)
	s.Engine = engine.New(s.Store, s.Index, s.Cache, m)
	logger.Info("query stack assembled",
		"source", src.Name(),
		"snapshot_backend", cfg.Snapshot.Backend,
		"snapshots_enabled", snapshots != nil,
	)
	return s, nil
}

func newSource(cfg *config.Config, pg *postgres.Client) (store.Source, error) {
	switch cfg.Source.Kind {
	case "http":
		return store.NewHTTPSource(cfg.Source.URL, cfg.Source.Timeout), nil
	case "file":
		return store.NewFileSource(cfg.Source.Path), nil
	case "postgres":
		if pg == nil {
			return nil, errors.New("postgres source configured without a connection")
		}
		return store.NewPostgresSource(pg.DB, pg.Table()), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

// Close releases the engine and every connection the Stack opened.
func (s *Stack) Close() error {
	var errs []error
	if s.Engine != nil {
		errs = append(errs, s.Engine.Close())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// Init loads records and builds the index.
func (s *Stack) Init(ctx context.Context) error {
	return s.Engine.Init(ctx)
}
