package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_OK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	assert.NoError(t, NewClient(server.URL, nil, nil).Health(context.Background()))
}

func TestHealth_Degraded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("DEGRADED: disk full\n"))
	}))
	defer server.Close()

	err := NewClient(server.URL, nil, nil).Health(context.Background())
	var unhealthy *ErrUnhealthy
	require.True(t, errors.As(err, &unhealthy))
	assert.Equal(t, http.StatusServiceUnavailable, unhealthy.StatusCode)
	assert.Equal(t, "DEGRADED: disk full", unhealthy.Message)
}

func TestStatus_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"budget":9.8,"open_positions":2,"max_positions":5,"detector_active":true,"persistence_ok":true}`))
	}))
	defer server.Close()

	status, err := NewClient(server.URL+"/", nil, nil).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9.8, status.Budget)
	assert.Equal(t, 2, status.OpenPositions)
	assert.Equal(t, 5, status.MaxPositions)
	require.NotNil(t, status.DetectorActive)
	assert.True(t, *status.DetectorActive)
	assert.True(t, status.PersistenceOK)
}

func TestPositions_Success(t *testing.T) {
	buyTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/positions", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"positions": []Position{{Mint: "mint1", PoolID: "pool1", BuyPrice: 0.001, BuyTime: buyTime, PeakPrice: 0.0012, SolCost: 0.1}},
		})
	}))
	defer server.Close()

	positions, err := NewClient(server.URL, nil, nil).Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "mint1", positions[0].Mint)
	assert.Equal(t, buyTime, positions[0].BuyTime)
	assert.Equal(t, 0.0012, positions[0].PeakPrice)
}

func TestTrades_SendsFilter(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/trades", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "mint1", q.Get("mint"))
		assert.Equal(t, "time_limit", q.Get("reason"))
		assert.Equal(t, "2026-03-01T00:00:00Z", q.Get("since"))
		assert.Equal(t, "10", q.Get("limit"))
		w.Write([]byte(`{"trades":[{"id":"t1","mint":"mint1","exit_reason":"time_limit","profit_loss":-0.01}],"count":1}`))
	}))
	defer server.Close()

	trades, err := NewClient(server.URL, nil, nil).Trades(context.Background(), TradeFilter{
		Mint: "mint1", Reason: "time_limit", Since: since, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t1", trades[0].ID)
	assert.Equal(t, "mint1", trades[0].Mint)
	assert.Equal(t, "time_limit", trades[0].Reason)
}

func TestTrades_NoFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		w.Write([]byte(`{"trades":[],"count":0}`))
	}))
	defer server.Close()

	trades, err := NewClient(server.URL, nil, nil).Trades(context.Background(), TradeFilter{})
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestTradeStats_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/trades/stats", r.URL.Path)
		w.Write([]byte(`{"stats":{"count":4,"wins":3,"losses":1,"total_pnl":0.04,"total_cost":0.4,"by_reason":{"profit_target":3,"time_limit":1}},"win_rate":0.75,"roi":0.1}`))
	}))
	defer server.Close()

	stats, err := NewClient(server.URL, nil, nil).TradeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 3, stats.ByReason["profit_target"])
	assert.Equal(t, 0.75, stats.WinRate)
	assert.Equal(t, 0.1, stats.ROI)
}

func TestServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid reason"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).Trades(context.Background(), TradeFilter{Reason: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid reason")
}

func TestServerError_PlainBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
