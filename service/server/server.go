package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/poolsniper/service/metrics"
	"github.com/brojonat/poolsniper/service/temporal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the operational HTTP surface of the sniper: health, metrics and
// read-only views of ledger state.
type Server struct {
	addr      string
	ledger    LedgerView
	trades    TradeSource
	detector  SubscriptionView
	scheduler temporal.Scheduler
	gatherer  prometheus.Gatherer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server over the ledger.
// If gatherer is nil, the metrics endpoint is not mounted.
func New(addr string, ledger LedgerView, gatherer prometheus.Gatherer, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:     addr,
		ledger:   ledger,
		gatherer: gatherer,
		metrics:  m,
		logger:   logger.With("component", "http_server"),
	}
}

// WithTrades enables the trade history endpoints.
func (s *Server) WithTrades(trades TradeSource) *Server {
	s.trades = trades
	return s
}

// WithDetector reports the detector subscription in /api/v1/status.
func (s *Server) WithDetector(d SubscriptionView) *Server {
	s.detector = d
	return s
}

// WithScheduler enables the exit sweep schedule endpoint.
func (s *Server) WithScheduler(scheduler temporal.Scheduler) *Server {
	s.scheduler = scheduler
	return s
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	route("GET /health", "/health", handleHealth(s.ledger, s.logger))
	route("GET /api/v1/status", "/api/v1/status", handleStatus(s.ledger, s.detector, s.logger))
	route("GET /api/v1/positions", "/api/v1/positions", handleListPositions(s.ledger))

	if s.trades != nil {
		route("GET /api/v1/trades", "/api/v1/trades", handleListTrades(s.trades, s.logger))
		route("GET /api/v1/trades/stats", "/api/v1/trades/stats", handleTradeStats(s.trades, s.logger))
		s.logger.Info("trade history endpoints enabled")
	}

	if s.scheduler != nil {
		route("GET /api/v1/schedule", "/api/v1/schedule", handleDescribeSchedule(s.scheduler, s.logger))
	}

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
