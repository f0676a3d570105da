package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory PositionStore and TradeLog.
type memStore struct {
	mu        sync.Mutex
	positions []Position
	trades    []CompletedTrade
	saves     int
	saveErr   error
	appendErr error
}

func (s *memStore) LoadPositions(ctx context.Context) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Position, len(s.positions))
	copy(out, s.positions)
	return out, nil
}

func (s *memStore) SavePositions(ctx context.Context, positions []Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.positions = make([]Position, len(positions))
	copy(s.positions, positions)
	return nil
}

func (s *memStore) TradeStats(ctx context.Context) (TradeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summarize(s.trades), nil
}

func (s *memStore) AppendCompletedTrade(ctx context.Context, trade CompletedTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.trades = append(s.trades, trade)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	trades []CompletedTrade
}

func (p *recordingPublisher) PublishTrade(ctx context.Context, trade CompletedTrade) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, trade)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// frictionless has no fee and no slippage.
func frictionless() Options {
	return Options{
		InitialBudget: 1,
		TradeSize:     0.1,
		MaxPositions:  3,
	}
}

func newTestLedger(opts Options, store *memStore) *Ledger {
	return New(opts, store, store, nil, testLogger())
}

func TestTokensOut(t *testing.T) {
	got := TokensOut(1.0, 0.5, 0.01, 0.02)
	assert.InDelta(t, 1.0*(1-0.01)*(1-0.02)/0.5, got, 1e-12)

	t.Run("strictly decreasing in fee", func(t *testing.T) {
		prev := TokensOut(2, 0.001, 0, 0.03)
		for _, fee := range []float64{0.001, 0.01, 0.1, 0.5, 0.99} {
			cur := TokensOut(2, 0.001, fee, 0.03)
			assert.Less(t, cur, prev, "fee %v", fee)
			prev = cur
		}
	})

	t.Run("strictly decreasing in slippage", func(t *testing.T) {
		prev := TokensOut(2, 0.001, 0.0025, 0)
		for _, slip := range []float64{0.01, 0.02, 0.05, 0.5, 0.99} {
			cur := TokensOut(2, 0.001, 0.0025, slip)
			assert.Less(t, cur, prev, "slippage %v", slip)
			prev = cur
		}
	})

	t.Run("non-positive price", func(t *testing.T) {
		assert.Zero(t, TokensOut(1, 0, 0, 0))
		assert.Zero(t, TokensOut(1, -2, 0, 0))
		assert.Zero(t, SolOut(10, 0, 0, 0))
	})
}

func TestSlippageBandSample(t *testing.T) {
	band := SlippageBand{Min: 0.01, Max: 0.05}
	assert.InDelta(t, 0.01, band.Sample(func() float64 { return 0 }), 1e-12)
	assert.InDelta(t, 0.03, band.Sample(func() float64 { return 0.5 }), 1e-12)

	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 1000; i++ {
		s := band.Sample(r.Float64)
		require.GreaterOrEqual(t, s, 0.01)
		require.LessOrEqual(t, s, 0.05)
	}

	assert.Equal(t, 0.02, SlippageBand{Min: 0.02, Max: 0.02}.Sample(func() float64 { return 0.9 }))
}

func TestBuySellRoundTripWithoutFriction(t *testing.T) {
	store := &memStore{}
	l := newTestLedger(frictionless(), store)
	ctx := context.Background()

	pos, err := l.Buy(ctx, "MintA", "PoolA", 0.0004)
	require.NoError(t, err)
	assert.InDelta(t, 0.1/0.0004, pos.TokenAmount, 1e-9)
	assert.InDelta(t, 0.9, l.Budget(), 1e-12)

	trade, err := l.Sell(ctx, "MintA", 0.0004, ReasonTimeLimit)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, trade.SolProceeds, 1e-12)
	assert.InDelta(t, 0, trade.ProfitLoss, 1e-12)
	assert.InDelta(t, 1.0, l.Budget(), 1e-12)
	assert.Empty(t, l.Snapshot())
}

func TestBuySamplesSlippagePerCall(t *testing.T) {
	opts := frictionless()
	opts.BuySlippage = SlippageBand{Min: 0.01, Max: 0.05}
	var calls atomic.Int32
	l := newTestLedger(opts, &memStore{}).WithRand(func() float64 {
		calls.Add(1)
		return 0.5
	})

	_, err := l.Buy(context.Background(), "MintA", "PoolA", 1)
	require.NoError(t, err)
	_, err = l.Buy(context.Background(), "MintB", "PoolB", 1)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	pos, ok := l.Position("MintA")
	require.True(t, ok)
	assert.InDelta(t, 0.1*(1-0.03), pos.TokenAmount, 1e-12)
}

func TestBuyAdmission(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		opts    Options
		setup   func(*Ledger)
		mint    string
		wantErr error
	}{
		{
			name:    "insufficient budget",
			opts:    Options{InitialBudget: 0.05, TradeSize: 0.1, MaxPositions: 5},
			mint:    "MintA",
			wantErr: ErrInsufficientBudget,
		},
		{
			name: "max positions",
			opts: Options{InitialBudget: 10, TradeSize: 0.1, MaxPositions: 1},
			setup: func(l *Ledger) {
				_, err := l.Buy(ctx, "MintA", "PoolA", 1)
				require.NoError(t, err)
			},
			mint:    "MintB",
			wantErr: ErrMaxPositions,
		},
		{
			name: "duplicate mint",
			opts: Options{InitialBudget: 10, TradeSize: 0.1, MaxPositions: 5},
			setup: func(l *Ledger) {
				_, err := l.Buy(ctx, "MintA", "PoolA", 1)
				require.NoError(t, err)
			},
			mint:    "MintA",
			wantErr: ErrDuplicatePosition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(tt.opts, &memStore{})
			if tt.setup != nil {
				tt.setup(l)
			}
			budgetBefore := l.Budget()
			countBefore := len(l.Snapshot())

			assert.False(t, l.CanBuy(tt.mint))
			assert.ErrorIs(t, l.Admission(tt.mint), tt.wantErr)

			_, err := l.Buy(ctx, tt.mint, "PoolX", 1)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsAdmissionRejection(err))
			assert.Equal(t, budgetBefore, l.Budget())
			assert.Len(t, l.Snapshot(), countBefore)
		})
	}
}

func TestBuyRejectsNonPositiveAmount(t *testing.T) {
	store := &memStore{}
	l := newTestLedger(frictionless(), store)

	for _, price := range []float64{0, -1} {
		_, err := l.Buy(context.Background(), "MintA", "PoolA", price)
		require.ErrorIs(t, err, ErrZeroAmount)
	}
	assert.Equal(t, 1.0, l.Budget())
	assert.Empty(t, l.Snapshot())
	assert.Zero(t, store.saves)
}

func TestSellUnknownPosition(t *testing.T) {
	store := &memStore{}
	l := newTestLedger(frictionless(), store)

	_, err := l.Sell(context.Background(), "Missing", 1, ReasonProfitTarget)
	require.ErrorIs(t, err, ErrPositionNotFound)
	assert.Equal(t, 1.0, l.Budget())
	assert.Empty(t, store.trades)
}

func TestSellNegativeProceedsAborts(t *testing.T) {
	store := &memStore{positions: []Position{{
		Mint: "MintA", PoolID: "PoolA", BuyPrice: 1, PeakPrice: 1, TokenAmount: 10, SolCost: 0.1,
	}}}
	opts := frictionless()
	opts.FeeRate = 1.5
	l := newTestLedger(opts, store)
	require.NoError(t, l.Restore(context.Background()))
	budget := l.Budget()

	_, err := l.Sell(context.Background(), "MintA", 1, ReasonTimeLimit)
	require.ErrorIs(t, err, ErrNegativeProceeds)

	_, ok := l.Position("MintA")
	assert.True(t, ok, "position must survive an aborted sell")
	assert.Equal(t, budget, l.Budget())
	assert.Empty(t, store.trades)
}

func TestSellRecordsTrade(t *testing.T) {
	store := &memStore{}
	pub := &recordingPublisher{}
	buyTime := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := buyTime
	l := newTestLedger(frictionless(), store).
		WithPublisher(pub).
		WithClock(func() time.Time { return clock })
	ctx := context.Background()

	_, err := l.Buy(ctx, "MintA", "PoolA", 0.5)
	require.NoError(t, err)

	clock = buyTime.Add(20 * time.Minute)
	trade, err := l.Sell(ctx, "MintA", 0.6, ReasonProfitTarget)
	require.NoError(t, err)

	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, "MintA", trade.Mint)
	assert.Equal(t, "PoolA", trade.PoolID)
	assert.Equal(t, ReasonProfitTarget, trade.Reason)
	assert.InDelta(t, 0.12, trade.SolProceeds, 1e-12)
	assert.InDelta(t, 0.02, trade.ProfitLoss, 1e-12)
	assert.Equal(t, 20*time.Minute, trade.HoldDuration())

	require.Len(t, store.trades, 1)
	assert.Equal(t, trade, store.trades[0])
	require.Len(t, pub.trades, 1)
	assert.Equal(t, trade.ID, pub.trades[0].ID)
	assert.Empty(t, store.positions)
}

func TestUpdatePeak(t *testing.T) {
	store := &memStore{}
	l := newTestLedger(frictionless(), store)
	ctx := context.Background()

	_, err := l.Buy(ctx, "MintA", "PoolA", 1)
	require.NoError(t, err)
	saves := store.saves

	assert.False(t, l.UpdatePeak(ctx, "MintA", 0.9))
	assert.False(t, l.UpdatePeak(ctx, "MintA", 1))
	assert.Equal(t, saves, store.saves)

	assert.True(t, l.UpdatePeak(ctx, "MintA", 1.3))
	pos, _ := l.Position("MintA")
	assert.Equal(t, 1.3, pos.PeakPrice)
	assert.Equal(t, saves+1, store.saves)
	assert.Equal(t, 1.3, store.positions[0].PeakPrice)

	assert.False(t, l.UpdatePeak(ctx, "MintA", 1.2))
	pos, _ = l.Position("MintA")
	assert.Equal(t, 1.3, pos.PeakPrice)

	assert.False(t, l.UpdatePeak(ctx, "Unknown", 5))
}

func TestSnapshotReturnsCopies(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	l := newTestLedger(frictionless(), &memStore{}).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	_, err := l.Buy(ctx, "MintB", "PoolB", 1)
	require.NoError(t, err)
	clock = base.Add(time.Second)
	_, err = l.Buy(ctx, "MintA", "PoolA", 1)
	require.NoError(t, err)

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "MintB", snap[0].Mint, "ordered by buy time")
	assert.Equal(t, "MintA", snap[1].Mint)

	snap[0].PeakPrice = 100
	pos, _ := l.Position("MintB")
	assert.Equal(t, 1.0, pos.PeakPrice)
}

func TestPersistenceFailureIsSurfaced(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	l := newTestLedger(frictionless(), store)
	ctx := context.Background()

	pos, err := l.Buy(ctx, "MintA", "PoolA", 1)
	require.NoError(t, err, "in-memory state stays authoritative")
	assert.Equal(t, "MintA", pos.Mint)
	require.ErrorIs(t, l.PersistenceErr(), ErrPersistence)
	assert.Contains(t, l.PersistenceErr().Error(), "disk full")

	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()

	_, err = l.Buy(ctx, "MintB", "PoolB", 1)
	require.NoError(t, err)
	assert.NoError(t, l.PersistenceErr())
	assert.Len(t, store.positions, 2)
}

func TestTradeLogFailureIsSurfaced(t *testing.T) {
	store := &memStore{appendErr: errors.New("log closed")}
	l := newTestLedger(frictionless(), store)
	ctx := context.Background()

	_, err := l.Buy(ctx, "MintA", "PoolA", 1)
	require.NoError(t, err)
	_, err = l.Sell(ctx, "MintA", 1, ReasonTimeLimit)
	require.NoError(t, err)
	assert.ErrorIs(t, l.PersistenceErr(), ErrPersistence)
}

func TestTradeLogFailureOutlivesLaterSaves(t *testing.T) {
	store := &memStore{appendErr: errors.New("disk full")}
	l := newTestLedger(frictionless(), store)
	ctx := context.Background()

	_, err := l.Buy(ctx, "MintA", "PoolA", 1)
	require.NoError(t, err)
	_, err = l.Buy(ctx, "MintB", "PoolB", 1)
	require.NoError(t, err)
	_, err = l.Sell(ctx, "MintA", 1, ReasonTimeLimit)
	require.NoError(t, err)

	store.mu.Lock()
	store.appendErr = nil
	store.mu.Unlock()

	assert.True(t, l.UpdatePeak(ctx, "MintB", 2))
	assert.Len(t, store.positions, 1, "position saves keep succeeding")
	require.ErrorIs(t, l.PersistenceErr(), ErrPersistence)
	assert.Contains(t, l.PersistenceErr().Error(), "append_trade")
	assert.Empty(t, store.trades)
}

func TestPositionSaveRecoversIndependentlyOfTradeLog(t *testing.T) {
	store := &memStore{saveErr: errors.New("read-only"), appendErr: errors.New("log closed")}
	l := newTestLedger(frictionless(), store)
	ctx := context.Background()

	_, err := l.Buy(ctx, "MintA", "PoolA", 1)
	require.NoError(t, err)
	_, err = l.Sell(ctx, "MintA", 1, ReasonTimeLimit)
	require.NoError(t, err)
	assert.Contains(t, l.PersistenceErr().Error(), "save_positions")

	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()

	_, err = l.Buy(ctx, "MintB", "PoolB", 1)
	require.NoError(t, err)
	require.Error(t, l.PersistenceErr())
	assert.NotContains(t, l.PersistenceErr().Error(), "save_positions")
	assert.Contains(t, l.PersistenceErr().Error(), "append_trade")
}

func TestRestore(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &memStore{positions: []Position{
		{Mint: "MintA", PoolID: "PoolA", BuyPrice: 1, PeakPrice: 1.2, BuyTime: at, TokenAmount: 9.5, SolCost: 0.1},
		{Mint: "MintB", PoolID: "PoolB", BuyPrice: 2, PeakPrice: 1.5, BuyTime: at.Add(time.Minute), TokenAmount: 4.7, SolCost: 0.1},
		{Mint: "MintA", PoolID: "PoolDup", BuyPrice: 3, PeakPrice: 3, BuyTime: at, TokenAmount: 1, SolCost: 0.1},
	}}
	l := newTestLedger(frictionless(), store)
	require.NoError(t, l.Restore(context.Background()))

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "PoolA", snap[0].PoolID)
	assert.Equal(t, 2.0, snap[1].PeakPrice, "peak is never below buy price")
	assert.InDelta(t, 0.8, l.Budget(), 1e-12)
}

func TestRestoreCarriesRealizedPnL(t *testing.T) {
	store := &memStore{}
	ctx := context.Background()

	before := newTestLedger(frictionless(), store).WithHistory(store)
	_, err := before.Buy(ctx, "MintA", "PoolA", 1)
	require.NoError(t, err)
	trade, err := before.Sell(ctx, "MintA", 0.5, ReasonTimeLimit)
	require.NoError(t, err)
	assert.InDelta(t, -0.05, trade.ProfitLoss, 1e-12)
	_, err = before.Buy(ctx, "MintB", "PoolB", 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, before.Budget(), 1e-12)

	after := newTestLedger(frictionless(), store).WithHistory(store)
	require.NoError(t, after.Restore(ctx))
	assert.InDelta(t, before.Budget(), after.Budget(), 1e-12)
	assert.Len(t, after.Snapshot(), 1)
}

func TestRestoreWithoutHistoryUsesOpenCost(t *testing.T) {
	store := &memStore{trades: []CompletedTrade{{ProfitLoss: -0.5}}}
	l := newTestLedger(frictionless(), store)
	require.NoError(t, l.Restore(context.Background()))
	assert.Equal(t, 1.0, l.Budget())
}

type failingHistory struct{}

func (failingHistory) TradeStats(ctx context.Context) (TradeStats, error) {
	return TradeStats{}, errors.New("log corrupt")
}

func TestRestoreFailsOnUnreadableHistory(t *testing.T) {
	l := newTestLedger(frictionless(), &memStore{}).WithHistory(failingHistory{})
	err := l.Restore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log corrupt")
}

func TestRestoreClampsBudgetAtZero(t *testing.T) {
	store := &memStore{trades: []CompletedTrade{{ProfitLoss: -5}}}
	l := newTestLedger(frictionless(), store).WithHistory(store)
	require.NoError(t, l.Restore(context.Background()))
	assert.Zero(t, l.Budget())
}

func TestRandomSequencesKeepInvariants(t *testing.T) {
	opts := Options{
		InitialBudget: 0.5,
		TradeSize:     0.1,
		MaxPositions:  3,
		FeeRate:       0.0025,
		BuySlippage:   SlippageBand{Min: 0.01, Max: 0.05},
		SellSlippage:  SlippageBand{Min: 0.01, Max: 0.03},
	}
	r := rand.New(rand.NewPCG(42, 1024))
	l := newTestLedger(opts, &memStore{}).WithRand(r.Float64)
	ctx := context.Background()
	mints := []string{"A", "B", "C", "D", "E"}

	for i := 0; i < 2000; i++ {
		mint := mints[r.IntN(len(mints))]
		price := r.Float64() * 2
		if r.IntN(2) == 0 {
			could := l.CanBuy(mint)
			_, err := l.Buy(ctx, mint, "pool-"+mint, price)
			if !could {
				require.Error(t, err, "buy must not bypass admission")
			}
		} else {
			_, _ = l.Sell(ctx, mint, price, ReasonTimeLimit)
		}
		require.GreaterOrEqual(t, l.Budget(), 0.0)
		require.LessOrEqual(t, len(l.Snapshot()), opts.MaxPositions)
		for _, p := range l.Snapshot() {
			require.GreaterOrEqual(t, p.PeakPrice, p.BuyPrice)
		}
	}
}

func TestConcurrentSellsOfSameMint(t *testing.T) {
	store := &memStore{}
	l := newTestLedger(frictionless(), store)
	ctx := context.Background()
	_, err := l.Buy(ctx, "MintA", "PoolA", 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Sell(ctx, "MintA", 1, ReasonTimeLimit); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Len(t, store.trades, 1)
	assert.InDelta(t, 1.0, l.Budget(), 1e-12)
}

func TestConcurrentBuysRespectLimit(t *testing.T) {
	opts := Options{InitialBudget: 100, TradeSize: 0.1, MaxPositions: 4}
	l := newTestLedger(opts, &memStore{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = l.Buy(ctx, string(rune('a'+i)), "pool", 1)
		}(i)
	}
	wg.Wait()

	assert.Len(t, l.Snapshot(), 4)
	assert.InDelta(t, 100-0.4, l.Budget(), 1e-9)
}
