// Package refresh reloads the job collection and rebuilds the search index,
// on a schedule, on jobs-updated events or on demand.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Triggers label refresh metrics and logs.
const (
	TriggerSchedule = "schedule"
	TriggerEvent    = "event"
	TriggerAPI      = "api"
)

// Reloader is implemented by *store.Store.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Rebuilder is implemented by *engine.Engine.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

type Refresher struct {
	store   Reloader
	engine  Rebuilder
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
}

func New(st Reloader, eng Rebuilder, m *metrics.Metrics) *Refresher {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Refresher{
		store:   st,
		engine:  eng,
		metrics: m,
		logger:  slog.Default().With("component", "refresher"),
	}
}

// Refresh reloads the store and rebuilds the index. Triggers that arrive
// while a refresh is running share its result. A failed reload leaves the
// previous collection and index serving.
func (r *Refresher) Refresh(ctx context.Context, trigger string) error {
	_, err, shared := r.group.Do("refresh", func() (any, error) {
		return nil, r.refresh(ctx, trigger)
	})
	if shared {
		r.logger.Debug("refresh coalesced", "trigger", trigger)
	}
	return err
}

func (r *Refresher) refresh(ctx context.Context, trigger string) error {
	start := time.Now()
	log := r.logger.With("trigger", trigger)
	log.Info("refresh started")

	if err := r.store.Reload(ctx); err != nil {
		r.metrics.RefreshesTotal.WithLabelValues(trigger, "reload_failed").Inc()
		log.Error("reload failed, keeping current collection", "error", err)
		return fmt.Errorf("refresh (%s): %w", trigger, err)
	}
	if err := r.engine.Rebuild(ctx); err != nil {
		r.metrics.RefreshesTotal.WithLabelValues(trigger, "rebuild_failed").Inc()
		log.Error("rebuild failed", "error", err)
		return fmt.Errorf("refresh (%s): %w", trigger, err)
	}
	r.metrics.RefreshesTotal.WithLabelValues(trigger, "ok").Inc()
	log.Info("refresh complete", "duration", time.Since(start))
	return nil
}
