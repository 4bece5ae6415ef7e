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
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/app"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/auth/adminkey"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/refresh"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
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
	slog.Info("starting jobmap", "port", cfg.Server.Port, "source", cfg.Source.Kind)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(sctx)
		}()
	}

	stack, err := app.Build(cfg, m)
	if err != nil {
		slog.Error("failed to assemble query stack", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	if err := stack.Init(ctx); err != nil {
		slog.Error("initial load failed, queries retry the load until it succeeds", "error", err)
	} else {
		slog.Info("job records indexed", "records", stack.Store.Count(), "terms", stack.Index.TermCount())
	}

	refresher := refresh.New(stack.Store, stack.Engine, m)
	sched := refresh.NewScheduler()
	if cfg.Refresh.Enabled {
		if err := sched.Every(ctx, cfg.Refresh.Interval, refresher); err != nil {
			slog.Error("failed to schedule refresh", "error", err)
			os.Exit(1)
		}
		slog.Info("scheduled refresh enabled", "interval", cfg.Refresh.Interval)
	}

	aggregator := analytics.NewAggregator()
	trackers := []analytics.Tracker{aggregator}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchAnalytics)
		defer producer.Close()
		collector := analytics.NewBatchCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		collector.Start(ctx)
		defer collector.Close()
		trackers = append(trackers, collector)
		slog.Info("analytics publishing enabled", "topic", cfg.Kafka.Topics.SearchAnalytics)

		updates := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.JobsUpdated, refresh.HandleJobsUpdated(refresher))
		go func() {
			if err := updates.Start(ctx); err != nil {
				slog.Error("jobs-updated consumer stopped", "error", err)
			}
		}()
		slog.Info("listening for job updates", "topic", updates.Topic())
	}

	if cfg.Analytics.Persist && stack.Postgres != nil {
		snapshots := analytics.NewSnapshotStore(stack.Postgres.DB)
		if err := setupPersistence(ctx, cfg, aggregator, snapshots, sched); err != nil {
			slog.Warn("analytics persistence disabled", "error", err)
		}
	}
	sched.Start()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		sched.Stop(sctx)
	}()

	checker := health.NewChecker()
	checker.Register("records", func(ctx context.Context) health.ComponentHealth {
		if !stack.Store.Loaded() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no records loaded"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d records, loaded %s", stack.Store.Count(), stack.Store.LoadedAt().Format(time.RFC3339)),
		}
	})
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if !stack.Index.Ready() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index not built"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", stack.Index.DocCount())}
	})
	if stack.Redis != nil {
		checker.RegisterOptional("redis", health.Ping(stack.Redis.Ping))
	}
	if stack.Postgres != nil {
		if cfg.Source.Kind == "postgres" {
			checker.Register("postgres", health.Ping(stack.Postgres.Ping))
		} else {
			checker.RegisterOptional("postgres", health.Ping(stack.Postgres.Ping))
		}
	}

	admin, err := adminGuard(ctx, cfg, stack)
	if err != nil {
		slog.Error("failed to set up admin keys", "error", err)
		os.Exit(1)
	}

	h := handler.New(stack.Engine, stack.Cache, refresher, analytics.Fanout(trackers...), handler.Options{
		DefaultLimit:       cfg.Search.DefaultLimit,
		MaxLimit:           cfg.Search.MaxLimit,
		SlowQueryThreshold: cfg.Search.SlowQueryThreshold,
		Admin:              admin,
	})
	analyticsH := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics/stats", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	if err := limiter.TrustProxies(cfg.RateLimit.TrustedProxies); err != nil {
		slog.Error("invalid trusted proxies", "error", err)
		os.Exit(1)
	}
	go limiter.Cleanup(ctx, time.Minute)

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.CORS(middleware.DefaultCORSConfig()),
		middleware.RateLimit(limiter, m),
		middleware.Timeout(cfg.Server.WriteTimeout),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
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
	}()

	slog.Info("jobmap listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("jobmap stopped")
}

// adminGuard returns the middleware protecting admin endpoints, or nil
// when admin keys are disabled.
func adminGuard(ctx context.Context, cfg *config.Config, stack *app.Stack) (func(http.Handler) http.Handler, error) {
	switch cfg.Admin.Keys {
	case "static":
		return adminkey.Require(adminkey.NewStatic(cfg.Admin.KeyHashes)), nil
	case "postgres":
		st := adminkey.NewStore(stack.Postgres.DB)
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return adminkey.Require(st), nil
	default:
		slog.Warn("admin endpoints are unprotected", "admin_keys", cfg.Admin.Keys)
		return nil, nil
	}
}

// setupPersistence restores the latest analytics snapshot and schedules
// periodic saves.
func setupPersistence(ctx context.Context, cfg *config.Config, agg *analytics.Aggregator, st *analytics.SnapshotStore, sched *refresh.Scheduler) error {
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	latest, err := st.Latest(ctx)
	if err != nil {
		return err
	}
	if latest != nil {
		if err := agg.Restore(*latest); err != nil {
			return err
		}
		slog.Info("analytics restored", "total_searches", latest.TotalSearches)
	}
	return sched.Add(ctx, cfg.Analytics.PersistSchedule, "analytics-persist", analytics.Persist(agg, st))
}
