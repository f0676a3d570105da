package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/brojonat/poolsniper/service/config"
	"github.com/brojonat/poolsniper/service/db"
	"github.com/brojonat/poolsniper/service/detector"
	"github.com/brojonat/poolsniper/service/exit"
	"github.com/brojonat/poolsniper/service/ledger"
	"github.com/brojonat/poolsniper/service/metrics"
	natspkg "github.com/brojonat/poolsniper/service/nats"
	"github.com/brojonat/poolsniper/service/pipeline"
	"github.com/brojonat/poolsniper/service/qualifier"
	"github.com/brojonat/poolsniper/service/server"
	"github.com/brojonat/poolsniper/service/solana"
	"github.com/brojonat/poolsniper/service/store"
	"github.com/brojonat/poolsniper/service/temporal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the pool sniper service",
		Description: `Subscribes to the target AMM program, qualifies every new pool, opens
simulated positions and sweeps them against the exit rules.

All settings come from the environment (see service/config), optionally
layered over the file named by CONFIG_FILE.`,
		Action: func(c *cli.Context) error {
			// Fails fast if any required config is missing or invalid
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := setupLogger(cfg.LogLevel)
			logger.Info("starting poolsniper",
				"version", version,
				"addr", cfg.ServerAddr,
				"program", cfg.TargetProgramID,
				"sweep_driver", cfg.SweepDriver,
				"log_level", cfg.LogLevel,
			)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runService(ctx, cfg, logger)
		},
	}
}

// runService wires every component and blocks until ctx is cancelled or a
// long-running component fails.
func runService(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Metrics
	registry := prometheus.NewRegistry()
	var m *metrics.Metrics
	var gatherer prometheus.Gatherer
	if cfg.Metrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.NewMetrics(registry)
		gatherer = registry
		logger.Info("Prometheus metrics collector initialized")
	}

	// Persistence: local files, replaced or joined by Postgres when configured
	for _, path := range []string{cfg.StateFile, cfg.TradesFile} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create data directory for %s: %w", path, err)
		}
	}
	tradeFile := store.NewJSONLTradeLog(cfg.TradesFile)
	var positions ledger.PositionStore = store.NewFileStore(cfg.StateFile, logger)
	tradeLogs := store.MultiTradeLog{tradeFile}
	var tradeSource server.TradeSource = newFileTradeSource(tradeFile)

	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		dbStore := db.NewStore(pool, m)
		if err := dbStore.Migrate(ctx); err != nil {
			return err
		}
		positions = dbStore
		tradeLogs = append(tradeLogs, dbStore)
		tradeSource = dbStore
		logger.Info("connected to database, positions and trades persisted to postgres")
	}

	// Messaging
	var publisher natspkg.Publisher
	if cfg.NATSURL != "" {
		p, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	// Ledger
	book := ledger.New(cfg.LedgerOptions(), positions, tradeLogs, m, logger).WithHistory(tradeSource)
	if publisher != nil {
		book.WithPublisher(publisher)
	}
	if err := book.Restore(ctx); err != nil {
		return fmt.Errorf("restore positions: %w", err)
	}

	// Chain collaborators
	chain := solana.NewClient(solana.NewRPCClient(cfg.SolanaRPCURL), m, logger)
	feed := solana.NewProgramSubscriber(cfg.SolanaWSURL, logger)
	logger.Info("initialized solana clients", "rpc", cfg.SolanaRPCURL, "ws", cfg.SolanaWSURL)

	// Core
	q := qualifier.New(cfg.QualifierOptions(), chain, chain, m, logger)
	var events pipeline.EventPublisher
	if publisher != nil {
		events = publisher
	}
	flow := pipeline.New(q, book, chain, events, cfg.LookupTimeout, logger)
	engine := exit.NewEngine(cfg.ExitRules(), book, chain, cfg.LookupTimeout, m, logger)
	det := detector.New(cfg.DetectorOptions(), feed, chain, detector.NewRaydiumInitClassifier(cfg.ProgramID()), m, logger)

	// HTTP surface
	httpServer := server.New(cfg.ServerAddr, book, gatherer, m, logger).
		WithTrades(tradeSource).
		WithDetector(det)

	errs := make(chan error, 2)

	// Exit sweep driver
	switch cfg.SweepDriver {
	case config.SweepDriverTemporal:
		tc, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
		if err != nil {
			return err
		}
		defer tc.Close()

		w, err := temporal.NewWorker(temporal.WorkerConfig{
			Client:    tc.SDKClient(),
			TaskQueue: tc.TaskQueue(),
			Sweeper:   engine,
			Metrics:   m,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()

		if err := tc.UpsertSweepSchedule(ctx, cfg.ExitCheckInterval); err != nil {
			return err
		}
		httpServer.WithScheduler(tc)
		logger.Info("exit sweeps scheduled on temporal", "interval", cfg.ExitCheckInterval)
	default:
		go func() {
			if err := engine.Run(ctx, cfg.ExitCheckInterval); err != nil {
				errs <- fmt.Errorf("exit engine: %w", err)
			}
		}()
	}

	// Detection
	if err := det.Subscribe(ctx, flow.Handler(ctx)); err != nil {
		return err
	}
	defer det.Unsubscribe()

	go func() {
		if err := httpServer.Start(); err != nil {
			errs <- err
		}
	}()

	logger.Info("poolsniper running",
		"budget", book.Budget(),
		"open_positions", len(book.Snapshot()),
		"max_positions", book.MaxPositions(),
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errs:
		logger.Error("component failed", "error", runErr)
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server gracefully", "error", err)
	}

	if err := book.PersistenceErr(); err != nil {
		logger.Warn("exiting with unpersisted ledger state", "error", err)
	}
	logger.Info("shutdown complete")
	return runErr
}

// fileTradeSource serves trade history from the JSON-lines log.
type fileTradeSource struct {
	log *store.JSONLTradeLog
}

func newFileTradeSource(log *store.JSONLTradeLog) *fileTradeSource {
	return &fileTradeSource{log: log}
}

func (s *fileTradeSource) ListTrades(ctx context.Context, params db.ListTradesParams) ([]ledger.CompletedTrade, error) {
	trades, err := s.log.ReadTrades()
	if err != nil {
		return nil, err
	}
	return filterTrades(trades, params), nil
}

func (s *fileTradeSource) TradeStats(ctx context.Context) (ledger.TradeStats, error) {
	trades, err := s.log.ReadTrades()
	if err != nil {
		return ledger.TradeStats{}, err
	}
	return ledger.Summarize(trades), nil
}

// filterTrades applies params to trades read in append order and returns them
// newest first, matching the Postgres listing.
func filterTrades(trades []ledger.CompletedTrade, params db.ListTradesParams) []ledger.CompletedTrade {
	out := make([]ledger.CompletedTrade, 0, len(trades))
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if params.Mint != "" && t.Mint != params.Mint {
			continue
		}
		if params.Reason != "" && t.Reason != params.Reason {
			continue
		}
		if !params.Since.IsZero() && t.SellTime.Before(params.Since) {
			continue
		}
		out = append(out, t)
		if params.Limit > 0 && len(out) >= int(params.Limit) {
			break
		}
	}
	return out
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
