package exit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/poolsniper/service/ledger"
	"github.com/brojonat/poolsniper/service/metrics"
	solanago "github.com/gagliardetto/solana-go"
)

// PriceSource quotes a pool's current token price in SOL.
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, poolID solanago.PublicKey) (float64, error)
}

// Positions is the slice of the ledger the engine drives.
type Positions interface {
	Snapshot() []ledger.Position
	UpdatePeak(ctx context.Context, mint string, price float64) bool
	Position(mint string) (ledger.Position, bool)
	Sell(ctx context.Context, mint string, price float64, reason ledger.ExitReason) (ledger.CompletedTrade, error)
}

// SweepResult summarizes one pass over the open positions.
type SweepResult struct {
	Checked int                     `json:"checked"`
	Skipped int                     `json:"skipped"`
	Sold    int                     `json:"sold"`
	Trades  []ledger.CompletedTrade `json:"trades,omitempty"`
}

// Engine re-evaluates open positions and sells the ones whose exit rule fires.
type Engine struct {
	rules         Rules
	positions     Positions
	prices        PriceSource
	lookupTimeout time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewEngine creates an exit engine.
func NewEngine(rules Rules, positions Positions, prices PriceSource, lookupTimeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if lookupTimeout <= 0 {
		lookupTimeout = 10 * time.Second
	}
	return &Engine{
		rules:         rules,
		positions:     positions,
		prices:        prices,
		lookupTimeout: lookupTimeout,
		metrics:       m,
		logger:        logger.With("component", "exit_engine"),
		now:           time.Now,
	}
}

// WithClock overrides the clock used for the time limit.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Rules returns the configured thresholds.
func (e *Engine) Rules() Rules {
	return e.rules
}

// Sweep evaluates a point-in-time snapshot of open positions once.
func (e *Engine) Sweep(ctx context.Context) SweepResult {
	start := time.Now()
	var result SweepResult

	for _, snap := range e.positions.Snapshot() {
		if ctx.Err() != nil {
			break
		}
		result.Checked++

		trade, sold, err := e.check(ctx, snap)
		if err != nil {
			result.Skipped++
			e.logger.WarnContext(ctx, "skipping position this cycle",
				"mint", snap.Mint,
				"pool", snap.PoolID,
				"error", err,
			)
			continue
		}
		if sold {
			result.Sold++
			result.Trades = append(result.Trades, trade)
		}
	}

	e.metrics.RecordSweep(time.Since(start).Seconds(), result.Checked, result.Skipped, result.Sold)
	if result.Checked > 0 {
		e.logger.DebugContext(ctx, "exit sweep complete",
			"checked", result.Checked,
			"skipped", result.Skipped,
			"sold", result.Sold,
			"duration", time.Since(start),
		)
	}
	return result
}

var errPositionClosed = errors.New("position closed")

func (e *Engine) check(ctx context.Context, snap ledger.Position) (ledger.CompletedTrade, bool, error) {
	poolID, err := solanago.PublicKeyFromBase58(snap.PoolID)
	if err != nil {
		return ledger.CompletedTrade{}, false, fmt.Errorf("invalid pool id: %w", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	price, err := e.prices.GetCurrentPrice(lookupCtx, poolID)
	cancel()
	if err != nil {
		return ledger.CompletedTrade{}, false, fmt.Errorf("price unavailable: %w", err)
	}
	if !(price > 0) {
		return ledger.CompletedTrade{}, false, fmt.Errorf("price unavailable: %v", price)
	}

	e.positions.UpdatePeak(ctx, snap.Mint, price)
	pos, ok := e.positions.Position(snap.Mint)
	if !ok {
		return ledger.CompletedTrade{}, false, errPositionClosed
	}

	reason, fire := Evaluate(pos, price, e.now(), e.rules)
	if !fire {
		return ledger.CompletedTrade{}, false, nil
	}

	e.logger.InfoContext(ctx, "exit rule fired",
		"mint", pos.Mint,
		"reason", reason,
		"buy_price", pos.BuyPrice,
		"peak_price", pos.PeakPrice,
		"price", price,
		"trailing_armed", TrailingArmed(pos, e.rules),
	)
	trade, err := e.positions.Sell(ctx, pos.Mint, price, reason)
	if err != nil {
		return ledger.CompletedTrade{}, false, fmt.Errorf("sell failed: %w", err)
	}
	return trade, true, nil
}

// Run sweeps every interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("exit check interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.InfoContext(ctx, "exit engine started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			e.logger.InfoContext(ctx, "exit engine stopped")
			return nil
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}
