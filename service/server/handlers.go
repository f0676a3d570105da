package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/poolsniper/service/db"
	"github.com/brojonat/poolsniper/service/ledger"
	"github.com/brojonat/poolsniper/service/temporal"
)

const (
	maxAddressLength = 100 // Solana addresses are 44 chars, give buffer
	defaultPageSize  = 100
	maxPageSize      = 1000
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// LedgerView is the read side of the position ledger.
type LedgerView interface {
	Snapshot() []ledger.Position
	Budget() float64
	MaxPositions() int
	PersistenceErr() error
}

// TradeSource serves completed trade history.
type TradeSource interface {
	ListTrades(ctx context.Context, params db.ListTradesParams) ([]ledger.CompletedTrade, error)
	TradeStats(ctx context.Context) (ledger.TradeStats, error)
}

// SubscriptionView reports whether the detector is subscribed.
type SubscriptionView interface {
	Active() bool
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Budget           float64 `json:"budget"`
	OpenPositions    int     `json:"open_positions"`
	MaxPositions     int     `json:"max_positions"`
	DetectorActive   *bool   `json:"detector_active,omitempty"`
	PersistenceOK    bool    `json:"persistence_ok"`
	PersistenceError string  `json:"persistence_error,omitempty"`
}

// handleHealth reports 503 while the last persistence attempt has failed.
// GET /health
func handleHealth(l LedgerView, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := l.PersistenceErr(); err != nil {
			logger.Debug("health degraded", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("DEGRADED: " + err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// handleStatus returns budget, occupancy and persistence state.
// GET /api/v1/status
func handleStatus(l LedgerView, d SubscriptionView, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Budget:        l.Budget(),
			OpenPositions: len(l.Snapshot()),
			MaxPositions:  l.MaxPositions(),
			PersistenceOK: true,
		}
		if d != nil {
			active := d.Active()
			resp.DetectorActive = &active
		}
		if err := l.PersistenceErr(); err != nil {
			resp.PersistenceOK = false
			resp.PersistenceError = err.Error()
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleListPositions returns the open positions ordered by buy time.
// GET /api/v1/positions
func handleListPositions(l LedgerView) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"positions": l.Snapshot(),
		}, http.StatusOK)
	})
}

// handleListTrades returns completed trades, newest first.
// GET /api/v1/trades?mint={mint}&reason={reason}&since={RFC3339}&limit={n}
func handleListTrades(trades TradeSource, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := parseListTradesParams(r)
		if err != nil {
			logger.Debug("invalid trade query", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		list, err := trades.ListTrades(r.Context(), params)
		if err != nil {
			logger.Error("failed to list trades", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"trades": list,
			"count":  len(list),
		}, http.StatusOK)
	})
}

func parseListTradesParams(r *http.Request) (db.ListTradesParams, error) {
	q := r.URL.Query()
	params := db.ListTradesParams{Limit: defaultPageSize}

	if mint := q.Get("mint"); mint != "" {
		if err := validateAddress(mint); err != nil {
			return params, errorf("invalid mint: %v", err)
		}
		params.Mint = mint
	}
	if reason := q.Get("reason"); reason != "" {
		params.Reason = ledger.ExitReason(reason)
		if !params.Reason.Valid() {
			return params, errorf("invalid reason: must be one of profit_target, trailing_stop, time_limit")
		}
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return params, errorf("invalid since: must be RFC3339")
		}
		params.Since = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return params, errorf("invalid limit: must be a positive integer")
		}
		if n > maxPageSize {
			n = maxPageSize
		}
		params.Limit = int32(n)
	}
	return params, nil
}

// handleTradeStats returns aggregate realized results.
// GET /api/v1/trades/stats
func handleTradeStats(trades TradeSource, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := trades.TradeStats(r.Context())
		if err != nil {
			logger.Error("failed to compute trade stats", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{
			"stats":    stats,
			"win_rate": stats.WinRate(),
			"roi":      stats.ROI(),
		}, http.StatusOK)
	})
}

// handleDescribeSchedule returns the exit sweep schedule state.
// GET /api/v1/schedule
func handleDescribeSchedule(scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := scheduler.DescribeSweepSchedule(r.Context())
		if err != nil {
			logger.Warn("failed to describe sweep schedule", "error", err)
			writeError(w, "schedule not found", http.StatusNotFound)
			return
		}
		writeJSON(w, info, http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a base58 address taken from a query string.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
