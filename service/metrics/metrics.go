package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is passed explicitly to every component that records metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Detector Metrics
	detectorNotificationsTotal *prometheus.CounterVec
	detectorPoolEventsTotal    prometheus.Counter
	detectorSubscriptionActive prometheus.Gauge

	// Qualifier Metrics
	qualifierVerdictsTotal *prometheus.CounterVec

	// Ledger Metrics
	ledgerBuysTotal           prometheus.Counter
	ledgerBuyRejectionsTotal  *prometheus.CounterVec
	ledgerSellsTotal          *prometheus.CounterVec
	ledgerTradePnL            *prometheus.HistogramVec
	ledgerBudget              prometheus.Gauge
	ledgerOpenPositions       prometheus.Gauge
	persistenceFailuresTotal  *prometheus.CounterVec
	ledgerInvariantViolations *prometheus.CounterVec

	// Exit Engine Metrics
	exitSweepDuration       prometheus.Histogram
	exitSweepPositionsTotal *prometheus.CounterVec
	exitSweepActivityRuns   *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),

		// Detector Metrics
		detectorNotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detector_notifications_total",
				Help: "Account change notifications handled by the pool detector, by outcome",
			},
			[]string{"outcome"},
		),
		detectorPoolEventsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "detector_pool_events_total",
				Help: "Pool initialization events emitted by the detector",
			},
		),
		detectorSubscriptionActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "detector_subscription_active",
				Help: "1 while the program change subscription is active",
			},
		),

		// Qualifier Metrics
		qualifierVerdictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qualifier_verdicts_total",
				Help: "Qualification verdicts by result and deciding rule",
			},
			[]string{"result", "rule"},
		),

		// Ledger Metrics
		ledgerBuysTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_buys_total",
				Help: "Simulated buys executed by the ledger",
			},
		),
		ledgerBuyRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_buy_rejections_total",
				Help: "Buys rejected at admission, by reason",
			},
			[]string{"reason"},
		),
		ledgerSellsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_sells_total",
				Help: "Simulated sells executed by the ledger, by exit reason",
			},
			[]string{"reason"},
		),
		ledgerTradePnL: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_trade_pnl_sol",
				Help:    "Realized profit or loss per completed trade in SOL",
				Buckets: []float64{-0.1, -0.05, -0.02, -0.01, 0, 0.01, 0.02, 0.05, 0.1, 0.5},
			},
			[]string{"reason"},
		),
		ledgerBudget: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_budget_sol",
				Help: "Available virtual budget in SOL",
			},
		),
		ledgerOpenPositions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_open_positions",
				Help: "Number of open simulated positions",
			},
		),
		persistenceFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "persistence_failures_total",
				Help: "Failures writing ledger state or the completed trade log",
			},
			[]string{"operation"},
		),
		ledgerInvariantViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_invariant_violations_total",
				Help: "Ledger operations aborted because an invariant would be violated",
			},
			[]string{"kind"},
		),

		// Exit Engine Metrics
		exitSweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "exit_sweep_duration_seconds",
				Help:    "Duration of one exit engine sweep in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		exitSweepPositionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exit_sweep_positions_total",
				Help: "Positions visited by exit sweeps, by outcome",
			},
			[]string{"outcome"},
		),
		exitSweepActivityRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exit_sweep_activity_runs_total",
				Help: "Scheduled exit sweep activity runs, by whether the run sold a position",
			},
			[]string{"result"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method", "status_code"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status_code"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of messages published to NATS",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with its duration.
func (m *Metrics) RecordRPCCall(method, status string, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, status).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method).Observe(duration)
}

// Detector metric helpers

// RecordNotification records how a change notification was handled
// ("classified", "not_pool", "duplicate", "lookup_failed", "dropped").
func (m *Metrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.detectorNotificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordPoolEvent records an emitted pool event.
func (m *Metrics) RecordPoolEvent() {
	if m == nil {
		return
	}
	m.detectorPoolEventsTotal.Inc()
}

// SetSubscriptionActive flips the subscription gauge.
func (m *Metrics) SetSubscriptionActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.detectorSubscriptionActive.Set(1)
		return
	}
	m.detectorSubscriptionActive.Set(0)
}

// RecordVerdict records a qualification verdict.
func (m *Metrics) RecordVerdict(accepted bool, rule string) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.qualifierVerdictsTotal.WithLabelValues(result, rule).Inc()
}

// Ledger metric helpers

// RecordBuy records an executed buy.
func (m *Metrics) RecordBuy() {
	if m == nil {
		return
	}
	m.ledgerBuysTotal.Inc()
}

// RecordBuyRejected records an admission rejection.
func (m *Metrics) RecordBuyRejected(reason string) {
	if m == nil {
		return
	}
	m.ledgerBuyRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordSell records an executed sell and its realized PnL.
func (m *Metrics) RecordSell(reason string, pnl float64) {
	if m == nil {
		return
	}
	m.ledgerSellsTotal.WithLabelValues(reason).Inc()
	m.ledgerTradePnL.WithLabelValues(reason).Observe(pnl)
}

// SetLedgerState sets the budget and open position gauges.
func (m *Metrics) SetLedgerState(budget float64, openPositions int) {
	if m == nil {
		return
	}
	m.ledgerBudget.Set(budget)
	m.ledgerOpenPositions.Set(float64(openPositions))
}

// RecordPersistenceFailure records a failed state or trade log write.
func (m *Metrics) RecordPersistenceFailure(operation string) {
	if m == nil {
		return
	}
	m.persistenceFailuresTotal.WithLabelValues(operation).Inc()
}

// RecordInvariantViolation records an aborted ledger operation.
func (m *Metrics) RecordInvariantViolation(kind string) {
	if m == nil {
		return
	}
	m.ledgerInvariantViolations.WithLabelValues(kind).Inc()
}

// Exit engine metric helpers

// RecordSweep records one exit sweep.
func (m *Metrics) RecordSweep(duration float64, checked, skipped, sold int) {
	if m == nil {
		return
	}
	m.exitSweepDuration.Observe(duration)
	m.exitSweepPositionsTotal.WithLabelValues("checked").Add(float64(checked))
	m.exitSweepPositionsTotal.WithLabelValues("skipped").Add(float64(skipped))
	m.exitSweepPositionsTotal.WithLabelValues("sold").Add(float64(sold))
}

// RecordSweepActivity records one scheduled sweep activity run.
func (m *Metrics) RecordSweepActivity(sold int) {
	if m == nil {
		return
	}
	result := "idle"
	if sold > 0 {
		result = "sold"
	}
	m.exitSweepActivityRuns.WithLabelValues(result).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	code := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, code).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, code).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
