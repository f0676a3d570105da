package db

import (
	"context"
	"testing"
	"time"

	"github.com/brojonat/poolsniper/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositions(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	a := ledger.Position{Mint: "mintA", PoolID: "poolA", BuyPrice: 0.001, BuyTime: now, TokenAmount: 95, PeakPrice: 0.0012, SolCost: 0.1}
	b := ledger.Position{Mint: "mintB", PoolID: "poolB", BuyPrice: 0.5, BuyTime: now.Add(time.Second), TokenAmount: 0.19, PeakPrice: 0.5, SolCost: 0.1}

	t.Run("empty table loads empty", func(t *testing.T) {
		got, err := store.LoadPositions(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("save then load round trips", func(t *testing.T) {
		require.NoError(t, store.SavePositions(ctx, []ledger.Position{a, b}))

		got, err := store.LoadPositions(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, a.Mint, got[0].Mint)
		assert.Equal(t, a.PeakPrice, got[0].PeakPrice)
		assert.WithinDuration(t, a.BuyTime, got[0].BuyTime, time.Microsecond)
		assert.Equal(t, b.Mint, got[1].Mint)
	})

	t.Run("save replaces the whole set", func(t *testing.T) {
		require.NoError(t, store.SavePositions(ctx, []ledger.Position{b}))
		got, err := store.LoadPositions(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "mintB", got[0].Mint)

		require.NoError(t, store.SavePositions(ctx, nil))
		got, err = store.LoadPositions(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("failed save keeps previous set", func(t *testing.T) {
		require.NoError(t, store.SavePositions(ctx, []ledger.Position{a}))

		bad := b
		bad.PeakPrice = bad.BuyPrice / 2
		assert.Error(t, store.SavePositions(ctx, []ledger.Position{b, bad}))

		got, err := store.LoadPositions(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "mintA", got[0].Mint)
	})
}

func TestLedgerRestoresFromPostgres(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	l := ledger.New(ledger.DefaultOptions(), store, store, nil, nil)
	_, err := l.Buy(ctx, "mintA", "poolA", 0.001)
	require.NoError(t, err)
	_, err = l.Buy(ctx, "mintB", "poolB", 0.002)
	require.NoError(t, err)
	_, err = l.Sell(ctx, "mintA", 0.0011, ledger.ReasonProfitTarget)
	require.NoError(t, err)
	require.NoError(t, l.PersistenceErr())

	restarted := ledger.New(ledger.DefaultOptions(), store, store, nil, nil).WithHistory(store)
	require.NoError(t, restarted.Restore(ctx))
	snap := restarted.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "mintB", snap[0].Mint)
	assert.InDelta(t, l.Budget(), restarted.Budget(), 1e-9, "realized PnL survives the restart")

	trades, err := store.ListTrades(ctx, ListTradesParams{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "mintA", trades[0].Mint)
}

func TestCompletedTrades(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	trade := func(id, mint string, reason ledger.ExitReason, pnl float64, sold time.Time) ledger.CompletedTrade {
		return ledger.CompletedTrade{
			ID: id,
			Position: ledger.Position{
				Mint: mint, PoolID: "pool-" + mint, BuyPrice: 1, BuyTime: sold.Add(-time.Minute),
				TokenAmount: 0.1, PeakPrice: 1.2, SolCost: 0.1,
			},
			SellPrice:   1 + pnl*10,
			SolProceeds: 0.1 + pnl,
			Reason:      reason,
			SellTime:    sold,
			ProfitLoss:  pnl,
		}
	}

	require.NoError(t, store.AppendCompletedTrade(ctx, trade("t1", "mintA", ledger.ReasonProfitTarget, 0.02, now.Add(-2*time.Hour))))
	require.NoError(t, store.AppendCompletedTrade(ctx, trade("t2", "mintB", ledger.ReasonTimeLimit, -0.01, now.Add(-time.Hour))))
	require.NoError(t, store.AppendCompletedTrade(ctx, trade("t3", "mintA", ledger.ReasonTrailingStop, 0.005, now)))

	t.Run("duplicate id is rejected", func(t *testing.T) {
		err := store.AppendCompletedTrade(ctx, trade("t1", "mintA", ledger.ReasonProfitTarget, 0.5, now))
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("list newest first", func(t *testing.T) {
		got, err := store.ListTrades(ctx, ListTradesParams{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"t3", "t2", "t1"}, []string{got[0].ID, got[1].ID, got[2].ID})
		assert.Equal(t, ledger.ReasonTrailingStop, got[0].Reason)
		assert.Equal(t, 0.02, got[2].ProfitLoss)
	})

	t.Run("filters", func(t *testing.T) {
		got, err := store.ListTrades(ctx, ListTradesParams{Mint: "mintA"})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = store.ListTrades(ctx, ListTradesParams{Reason: ledger.ReasonTimeLimit})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "t2", got[0].ID)

		got, err = store.ListTrades(ctx, ListTradesParams{Since: now.Add(-90 * time.Minute)})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = store.ListTrades(ctx, ListTradesParams{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := store.TradeStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Count)
		assert.Equal(t, 2, stats.Wins)
		assert.Equal(t, 1, stats.Losses)
		assert.InDelta(t, 0.015, stats.TotalPnL, 1e-9)
		assert.InDelta(t, 0.3, stats.TotalCost, 1e-9)
		assert.Equal(t, 1, stats.ByReason[ledger.ReasonTimeLimit])
	})
}
