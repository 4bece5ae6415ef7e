// Command jobquery browses job records from the terminal. It builds the
// same query stack as the server and drives it through a client session:
// search, filter by location and page through the results.
//
// Usage:
//
//	go run ./cmd/jobquery [-config configs/development.yaml] [-q text] [-location text]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/app"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/session"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	query := flag.String("q", "", "initial query")
	location := flag.String("location", "", "initial location filter")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, *logLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to assemble query stack: %v\n", err)
		os.Exit(1)
	}
	defer stack.Close()

	if err := stack.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load job records: %v\n", err)
		os.Exit(1)
	}
	slog.Info("records loaded", "count", stack.Store.Count())

	sess := session.New(stack.Engine, cfg.Session.PageSize)
	r := &repl{sess: sess, out: os.Stdout}

	switch {
	case *query != "" || *location != "":
		if *location != "" {
			r.exec(ctx, "location "+*location)
		}
		if *query != "" {
			r.exec(ctx, "search "+*query)
		}
	default:
		r.exec(ctx, "all")
	}
	fmt.Println(`type "help" for commands`)

	if err := r.run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "reading input: %v\n", err)
		os.Exit(1)
	}
}
