package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/brojonat/poolsniper/service/metrics"
	"github.com/google/uuid"
)

// PositionStore persists the full set of open positions.
type PositionStore interface {
	LoadPositions(ctx context.Context) ([]Position, error)
	SavePositions(ctx context.Context, positions []Position) error
}

// TradeLog is the append-only sink for completed trades.
type TradeLog interface {
	AppendCompletedTrade(ctx context.Context, trade CompletedTrade) error
}

// TradeHistory summarizes trades already recorded by earlier runs.
type TradeHistory interface {
	TradeStats(ctx context.Context) (TradeStats, error)
}

// TradePublisher announces completed trades to other processes.
type TradePublisher interface {
	PublishTrade(ctx context.Context, trade CompletedTrade) error
}

// Options configures the ledger's budget and execution model.
type Options struct {
	InitialBudget float64
	TradeSize     float64
	MaxPositions  int
	FeeRate       float64
	BuySlippage   SlippageBand
	SellSlippage  SlippageBand
}

// DefaultOptions returns the stock paper-trading settings.
func DefaultOptions() Options {
	return Options{
		InitialBudget: 10,
		TradeSize:     0.1,
		MaxPositions:  5,
		FeeRate:       0.0025,
		BuySlippage:   SlippageBand{Min: 0.01, Max: 0.05},
		SellSlippage:  SlippageBand{Min: 0.01, Max: 0.03},
	}
}

// Ledger owns the virtual budget and the open position set.
// Every mutation, including the write to the position store, happens under one lock.
type Ledger struct {
	mu        sync.RWMutex
	opts      Options
	budget    float64
	positions map[string]*Position
	saveErr   error
	appendErr error

	store     PositionStore
	trades    TradeLog
	history   TradeHistory
	publisher TradePublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	now  func() time.Time
	rand func() float64
}

// New creates a ledger with the full initial budget and no positions.
// Call Restore to resume persisted positions. store and trades may be nil.
func New(opts Options, store PositionStore, trades TradeLog, m *metrics.Metrics, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		opts:      opts,
		budget:    opts.InitialBudget,
		positions: make(map[string]*Position),
		store:     store,
		trades:    trades,
		metrics:   m,
		logger:    logger.With("component", "ledger"),
		now:       time.Now,
		rand:      rand.Float64,
	}
	m.SetLedgerState(l.budget, 0)
	return l
}

// WithPublisher sets the publisher that receives completed trades.
func (l *Ledger) WithPublisher(p TradePublisher) *Ledger {
	l.publisher = p
	return l
}

// WithHistory sets the source of realized PnL that Restore folds into the budget.
func (l *Ledger) WithHistory(h TradeHistory) *Ledger {
	l.history = h
	return l
}

// WithClock overrides the time source used for buy and sell timestamps.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// WithRand overrides the slippage random source. r must return values in [0, 1).
func (l *Ledger) WithRand(r func() float64) *Ledger {
	l.rand = r
	return l
}

// Restore loads persisted positions and recomputes the budget as the initial
// budget plus realized PnL from the trade history, less the cost of open positions.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	loaded, err := l.store.LoadPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load positions: %w", err)
	}

	var realized TradeStats
	if l.history != nil {
		realized, err = l.history.TradeStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to load trade history: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.positions = make(map[string]*Position, len(loaded))
	committed := 0.0
	for i := range loaded {
		p := loaded[i]
		if p.Mint == "" {
			l.logger.WarnContext(ctx, "skipping persisted position without mint")
			continue
		}
		if _, dup := l.positions[p.Mint]; dup {
			l.logger.WarnContext(ctx, "skipping duplicate persisted position", "mint", p.Mint)
			continue
		}
		if p.PeakPrice < p.BuyPrice {
			p.PeakPrice = p.BuyPrice
		}
		l.positions[p.Mint] = &p
		committed += p.SolCost
	}
	l.budget = math.Max(0, l.opts.InitialBudget+realized.TotalPnL-committed)
	l.metrics.SetLedgerState(l.budget, len(l.positions))

	l.logger.InfoContext(ctx, "restored positions",
		"count", len(l.positions),
		"completed_trades", realized.Count,
		"realized_pnl", realized.TotalPnL,
		"budget", l.budget,
	)
	return nil
}

// CanBuy reports whether a buy for mint would pass admission.
func (l *Ledger) CanBuy(mint string) bool {
	return l.Admission(mint) == nil
}

// Admission returns the first admission rule mint fails, or nil.
func (l *Ledger) Admission(mint string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.admissionLocked(mint)
}

func (l *Ledger) admissionLocked(mint string) error {
	if l.budget < l.opts.TradeSize {
		return fmt.Errorf("%w: have %.4f, need %.4f", ErrInsufficientBudget, l.budget, l.opts.TradeSize)
	}
	if len(l.positions) >= l.opts.MaxPositions {
		return fmt.Errorf("%w: %d/%d", ErrMaxPositions, len(l.positions), l.opts.MaxPositions)
	}
	if _, ok := l.positions[mint]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePosition, mint)
	}
	return nil
}

// Buy opens a position for mint at the reference price using one trade-size quantum.
// Admission is re-checked under the write lock.
func (l *Ledger) Buy(ctx context.Context, mint, poolID string, price float64) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.admissionLocked(mint); err != nil {
		l.logger.InfoContext(ctx, "buy rejected", "mint", mint, "reason", err.Error())
		l.metrics.RecordBuyRejected(rejectionLabel(err))
		return Position{}, err
	}

	slippage := l.opts.BuySlippage.Sample(l.rand)
	amount := TokensOut(l.opts.TradeSize, price, l.opts.FeeRate, slippage)
	if !(amount > 0) || math.IsInf(amount, 0) {
		l.logger.InfoContext(ctx, "buy rejected", "mint", mint, "price", price, "reason", ErrZeroAmount.Error())
		l.metrics.RecordBuyRejected(rejectionLabel(ErrZeroAmount))
		return Position{}, fmt.Errorf("%w: price %v", ErrZeroAmount, price)
	}

	pos := &Position{
		Mint:        mint,
		PoolID:      poolID,
		BuyPrice:    price,
		BuyTime:     l.now().UTC(),
		TokenAmount: amount,
		PeakPrice:   price,
		SolCost:     l.opts.TradeSize,
	}
	l.positions[mint] = pos
	l.budget = math.Max(0, l.budget-l.opts.TradeSize)
	l.persistLocked(ctx)

	l.metrics.RecordBuy()
	l.metrics.SetLedgerState(l.budget, len(l.positions))
	l.logger.InfoContext(ctx, "bought",
		"mint", mint,
		"pool", poolID,
		"price", price,
		"slippage", slippage,
		"tokens", amount,
		"budget", l.budget,
	)
	return *pos, nil
}

// Sell closes the position for mint at the reference price and records the trade.
func (l *Ledger) Sell(ctx context.Context, mint string, price float64, reason ExitReason) (CompletedTrade, error) {
	trade, err := l.sell(ctx, mint, price, reason)
	if err != nil {
		return CompletedTrade{}, err
	}

	if l.publisher != nil {
		if err := l.publisher.PublishTrade(ctx, trade); err != nil {
			l.logger.WarnContext(ctx, "failed to publish completed trade", "trade_id", trade.ID, "error", err)
		}
	}
	return trade, nil
}

func (l *Ledger) sell(ctx context.Context, mint string, price float64, reason ExitReason) (CompletedTrade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[mint]
	if !ok {
		l.logger.ErrorContext(ctx, "sell aborted", "mint", mint, "reason", reason, "error", ErrPositionNotFound)
		l.metrics.RecordInvariantViolation("position_not_found")
		return CompletedTrade{}, fmt.Errorf("%w: %s", ErrPositionNotFound, mint)
	}

	slippage := l.opts.SellSlippage.Sample(l.rand)
	proceeds := SolOut(pos.TokenAmount, price, l.opts.FeeRate, slippage)
	if proceeds < 0 || math.IsNaN(proceeds) || math.IsInf(proceeds, 0) {
		l.logger.ErrorContext(ctx, "sell aborted",
			"mint", mint,
			"price", price,
			"proceeds", proceeds,
			"error", ErrNegativeProceeds,
		)
		l.metrics.RecordInvariantViolation("negative_proceeds")
		return CompletedTrade{}, fmt.Errorf("%w: %v", ErrNegativeProceeds, proceeds)
	}

	l.budget = math.Max(0, l.budget+proceeds)
	delete(l.positions, mint)
	l.persistLocked(ctx)

	trade := CompletedTrade{
		ID:          uuid.NewString(),
		Position:    *pos,
		SellPrice:   price,
		SolProceeds: proceeds,
		Reason:      reason,
		SellTime:    l.now().UTC(),
		ProfitLoss:  proceeds - pos.SolCost,
	}
	if l.trades != nil {
		if err := l.trades.AppendCompletedTrade(ctx, trade); err != nil {
			l.appendErr = l.recordPersistFailureLocked(ctx, "append_trade", err)
		}
	}

	l.metrics.RecordSell(string(reason), trade.ProfitLoss)
	l.metrics.SetLedgerState(l.budget, len(l.positions))
	l.logger.InfoContext(ctx, "sold",
		"mint", mint,
		"reason", reason,
		"price", price,
		"slippage", slippage,
		"proceeds", proceeds,
		"pnl", trade.ProfitLoss,
		"budget", l.budget,
	)
	return trade, nil
}

// UpdatePeak raises the stored peak price for mint if price exceeds it.
// It reports whether the peak changed.
func (l *Ledger) UpdatePeak(ctx context.Context, mint string, price float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[mint]
	if !ok {
		l.logger.WarnContext(ctx, "peak update for unknown position", "mint", mint)
		return false
	}
	if !(price > pos.PeakPrice) {
		return false
	}
	pos.PeakPrice = price
	l.persistLocked(ctx)
	return true
}

// Position returns a copy of the open position for mint.
func (l *Ledger) Position(mint string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[mint]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Snapshot returns copies of all open positions ordered by buy time, then mint.
func (l *Ledger) Snapshot() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BuyTime.Equal(out[j].BuyTime) {
			return out[i].Mint < out[j].Mint
		}
		return out[i].BuyTime.Before(out[j].BuyTime)
	})
	return out
}

// Budget returns the available virtual budget.
func (l *Ledger) Budget() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.budget
}

// MaxPositions returns the configured position limit.
func (l *Ledger) MaxPositions() int {
	return l.opts.MaxPositions
}

// PersistenceErr reports outstanding persistence failures. A position store
// failure clears on the next successful save. A lost trade record is never
// recovered, so a trade log failure stays reported until restart.
func (l *Ledger) PersistenceErr() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return errors.Join(l.saveErr, l.appendErr)
}

// persistLocked mirrors the position set to the store. Caller holds the write lock.
func (l *Ledger) persistLocked(ctx context.Context) {
	if l.store == nil {
		return
	}
	if err := l.store.SavePositions(ctx, l.snapshotLocked()); err != nil {
		l.saveErr = l.recordPersistFailureLocked(ctx, "save_positions", err)
		return
	}
	l.saveErr = nil
}

func (l *Ledger) recordPersistFailureLocked(ctx context.Context, op string, err error) error {
	wrapped := fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
	l.metrics.RecordPersistenceFailure(op)
	l.logger.ErrorContext(ctx, "persistence failure",
		"category", "persistence",
		"operation", op,
		"error", err,
	)
	return wrapped
}
