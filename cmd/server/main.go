// Figgie Exchange Server — a server-mediated marketplace for the Figgie
// card game: 4 or 5 players per session, per-suit order books, and a
// hidden goal suit revealed at round end.
//
// Architecture:
//
//	main.go             — entry point: loads config, opens the store, starts the API, waits for SIGINT/SIGTERM
//	game/game.go        — the session: dealing, matching with clear-all-on-trade, payouts
//	game/book.go        — per-suit price-sorted order book with FIFO at equal prices
//	api/server.go       — HTTP endpoints: /join, /state, /action, /status, /metrics, /ws
//	api/stream.go       — read-only WebSocket feed of round and trade events for observers
//	store/store.go      — SQLite append-only record of players, rounds, actions, trades, results
//	client/client.go    — agent-side polling runtime (used by the dispatch binary and external strategies)
//	dispatch/           — fills a table of agents from a YAML roster and runs experiments
//
// How a round works:
//
//	Players join until the table is full, which deals the deck and starts
//	the clock. Orders are single-unit limits; a crossing order executes at
//	the resting price and clears every book. When the clock runs out, each
//	goal-suit card pays a bonus and the players holding the most goal cards
//	split the rest of the pot.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"figgie-exchange/internal/api"
	"figgie-exchange/internal/config"
	"figgie-exchange/internal/game"
	"figgie-exchange/internal/store"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("FIGGIE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Open the durable store
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err, "path", cfg.Store.Path)
		os.Exit(1)
	}
	defer db.Close()

	g := game.New(cfg.Game.Players, cfg.TradingDuration(), db, logger)

	server := api.NewServer(cfg.Server, g, api.NewMetrics(), logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("api server failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("figgie exchange started",
		"addr", cfg.Server.BindAddr,
		"players", cfg.Game.Players,
		"trading_duration", cfg.TradingDuration(),
		"store", cfg.Store.Path,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if err := server.Stop(); err != nil {
		logger.Error("failed to stop api server", "error", err)
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
