// Figgie Dispatch — fills a server with a roster of agents, runs the round
// to completion, records the experiment in SQLite, and prints a results
// summary.
//
// Only the passive "listener" kind ships with this binary; trading
// strategies register their own kinds and link against internal/agent.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"figgie-exchange/internal/agent"
	"figgie-exchange/internal/dispatch"
	"figgie-exchange/internal/store"
)

func main() {
	rosterPath := flag.String("roster", "configs/agents.yaml", "path to the agent roster YAML")
	dbPath := flag.String("db", "", "SQLite path for experiment records (empty disables persistence)")
	experimentID := flag.Int("experiment", 0, "override the roster's experiment_id (0 keeps it)")
	logLevel := flag.String("log-level", "info", "debug, info, warn, or error")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(*logLevel),
	}))

	roster, err := dispatch.LoadRoster(*rosterPath)
	if err != nil {
		logger.Error("failed to load roster", "error", err, "path", *rosterPath)
		os.Exit(1)
	}
	if *experimentID != 0 {
		roster.ExperimentID = *experimentID
	}

	var recorder dispatch.Recorder
	if *dbPath != "" {
		db, err := store.Open(*dbPath)
		if err != nil {
			logger.Error("failed to open store", "error", err, "path", *dbPath)
			os.Exit(1)
		}
		defer db.Close()
		recorder = db
	}

	registry := agent.NewRegistry()
	if err := agent.RegisterListener(registry, logger); err != nil {
		logger.Error("failed to register agent kinds", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d := dispatch.New(roster, registry, recorder, logger)
	if err := d.Run(ctx); err != nil {
		logger.Error("dispatch failed", "error", err)
		os.Exit(1)
	}

	if err := d.Summary(os.Stdout); err != nil {
		logger.Error("failed to print summary", "error", err)
		os.Exit(1)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
