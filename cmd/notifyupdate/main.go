// Command notifyupdate tells running jobmap instances that the job
// collection changed. It publishes one message to the jobs-updated topic;
// every instance consuming it reloads records and rebuilds its index.
//
// Usage:
//
//	go run ./cmd/notifyupdate [-config configs/development.yaml] [-source crawler] [-reason "nightly import"]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/refresh"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	source := flag.String("source", "manual", "name of the system that changed the records")
	reason := flag.String("reason", "", "free-form reason, logged by consumers")
	timeout := flag.Duration("timeout", 10*time.Second, "publish timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.JobsUpdated)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := refresh.NotifyJobsUpdated(ctx, producer, *source, *reason); err != nil {
		slog.Error("failed to publish jobs-updated", "error", err)
		os.Exit(1)
	}
	slog.Info("jobs-updated published", "topic", cfg.Kafka.Topics.JobsUpdated, "source", *source)
}
