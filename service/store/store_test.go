package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/poolsniper/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func samplePositions() []ledger.Position {
	at := time.Date(2025, 5, 6, 7, 8, 9, 123456789, time.UTC)
	return []ledger.Position{
		{Mint: "MintA", PoolID: "PoolA", BuyPrice: 0.00012, BuyTime: at, TokenAmount: 812.5, PeakPrice: 0.00015, SolCost: 0.1},
		{Mint: "MintB", PoolID: "PoolB", BuyPrice: 0.5, BuyTime: at.Add(time.Minute), TokenAmount: 0.19, PeakPrice: 0.5, SolCost: 0.1},
	}
}

func TestFileStoreRestartRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "positions.json")
	ctx := context.Background()

	first := NewFileStore(path, testLogger())
	require.NoError(t, first.SavePositions(ctx, samplePositions()))

	// A fresh store on the same path stands in for a process restart.
	second := NewFileStore(path, testLogger())
	loaded, err := second.LoadPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, samplePositions(), loaded)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file must not linger")
}

func TestFileStoreRestoresLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	ctx := context.Background()
	opts := ledger.Options{InitialBudget: 1, TradeSize: 0.1, MaxPositions: 5}

	before := ledger.New(opts, NewFileStore(path, testLogger()), nil, nil, testLogger())
	_, err := before.Buy(ctx, "MintA", "PoolA", 0.25)
	require.NoError(t, err)
	_, err = before.Buy(ctx, "MintB", "PoolB", 0.5)
	require.NoError(t, err)
	before.UpdatePeak(ctx, "MintA", 0.3)

	after := ledger.New(opts, NewFileStore(path, testLogger()), nil, nil, testLogger())
	require.NoError(t, after.Restore(ctx))

	assert.Equal(t, before.Snapshot(), after.Snapshot())
	assert.InDelta(t, before.Budget(), after.Budget(), 1e-12)
}

func TestFileStoreLoadMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	missing := NewFileStore(filepath.Join(dir, "nope.json"), testLogger())
	positions, err := missing.LoadPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	emptyPath := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0o644))
	positions, err = NewFileStore(emptyPath, testLogger()).LoadPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	positions, err := NewFileStore(path, testLogger()).LoadPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)

	data, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}

func TestFileStoreSaveEmptySet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	s := NewFileStore(path, testLogger())
	ctx := context.Background()

	require.NoError(t, s.SavePositions(ctx, samplePositions()))
	require.NoError(t, s.SavePositions(ctx, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestFileStoreDirectoryPath(t *testing.T) {
	_, err := NewFileStore(t.TempDir(), testLogger()).LoadPositions(context.Background())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func sampleTrade(id string) ledger.CompletedTrade {
	p := samplePositions()[0]
	return ledger.CompletedTrade{
		ID:          id,
		Position:    p,
		SellPrice:   0.00014,
		SolProceeds: 0.112,
		Reason:      ledger.ReasonProfitTarget,
		SellTime:    p.BuyTime.Add(3 * time.Minute),
		ProfitLoss:  0.012,
	}
}

func TestJSONLTradeLogAppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trades.jsonl")
	log := NewJSONLTradeLog(path)
	ctx := context.Background()

	require.NoError(t, log.AppendCompletedTrade(ctx, sampleTrade("t1")))
	require.NoError(t, log.AppendCompletedTrade(ctx, sampleTrade("t2")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"exit_reason":"profit_target"`)
	assert.Contains(t, lines[0], `"mint":"MintA"`)

	trades, err := log.ReadTrades()
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, sampleTrade("t1"), trades[0])
	assert.Equal(t, "t2", trades[1].ID)
}

func TestJSONLTradeLogRejectsIncompleteTrade(t *testing.T) {
	log := NewJSONLTradeLog(filepath.Join(t.TempDir(), "trades.jsonl"))
	err := log.AppendCompletedTrade(context.Background(), ledger.CompletedTrade{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestJSONLTradeLogMissingFile(t *testing.T) {
	trades, err := NewJSONLTradeLog(filepath.Join(t.TempDir(), "none.jsonl")).ReadTrades()
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestDecodeTradesBadLine(t *testing.T) {
	_, err := DecodeTrades(strings.NewReader("{\"id\":\"a\"}\n\nnot-json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

type failingLog struct{ err error }

func (f failingLog) AppendCompletedTrade(ctx context.Context, trade ledger.CompletedTrade) error {
	return f.err
}

func TestMultiTradeLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	jsonl := NewJSONLTradeLog(path)
	boom := errors.New("db down")

	multi := MultiTradeLog{failingLog{err: boom}, jsonl}
	err := multi.AppendCompletedTrade(context.Background(), sampleTrade("t1"))
	require.ErrorIs(t, err, boom)

	trades, err := jsonl.ReadTrades()
	require.NoError(t, err)
	assert.Len(t, trades, 1, "later logs still receive the trade")
}
