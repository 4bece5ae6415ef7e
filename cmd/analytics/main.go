// Command analytics runs the standalone search analytics service.
//
// It consumes search events published by jobmap instances, aggregates them
// in memory (search volume, latency percentiles, cache hit rate, top and
// zero-result queries) and serves the totals at GET /api/v1/analytics/stats.
// With analytics.persist set, totals are restored from and periodically
// saved to Postgres.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/refresh"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	checker := health.NewChecker()
	sched := refresh.NewScheduler()

	if cfg.Analytics.Persist {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		st := analytics.NewSnapshotStore(pg.DB)
		if err := st.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare analytics schema", "error", err)
			os.Exit(1)
		}
		if latest, err := st.Latest(ctx); err != nil {
			slog.Warn("could not read analytics snapshot", "error", err)
		} else if latest != nil {
			if err := aggregator.Restore(*latest); err != nil {
				slog.Warn("ignoring analytics snapshot", "error", err)
			}
		}
		if err := sched.Add(ctx, cfg.Analytics.PersistSchedule, "analytics-persist", analytics.Persist(aggregator, st)); err != nil {
			slog.Error("failed to schedule analytics persistence", "error", err)
			os.Exit(1)
		}
		checker.Register("postgres", health.Ping(pg.Ping))
	}
	sched.Start()

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchAnalytics, analytics.HandleEvent(aggregator))
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", consumer.Topic())

	checker.Register("consumer", func(ctx context.Context) health.ComponentHealth {
		select {
		case <-consumerDone:
			return health.ComponentHealth{Status: health.StatusDown, Message: "consumer stopped"}
		default:
			return health.ComponentHealth{Status: health.StatusUp, Message: "consuming " + consumer.Topic()}
		}
	})

	analyticsHandler := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics/stats", analyticsHandler.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.Timeout(cfg.Server.WriteTimeout)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		sched.Stop(shutdownCtx)
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-consumerDone

	slog.Info("analytics service stopped")
}
