package temporal

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/poolsniper/service/exit"
	"github.com/brojonat/poolsniper/service/metrics"
)

// ExitSweepInput contains the input parameters for one scheduled exit sweep.
type ExitSweepInput struct {
	// Timeout bounds the sweep activity. Zero uses the default.
	Timeout time.Duration `json:"timeout"`
}

// ExitSweepResult summarizes a scheduled exit sweep.
type ExitSweepResult struct {
	SweepTime   time.Time `json:"sweep_time"`
	Checked     int       `json:"checked"`
	Skipped     int       `json:"skipped"`
	Sold        int       `json:"sold"`
	TradeIDs    []string  `json:"trade_ids,omitempty"`
	RealizedPnL float64   `json:"realized_pnl"`
	Error       *string   `json:"error,omitempty"`
}

// SweepPositionsInput contains parameters for the SweepPositions activity.
type SweepPositionsInput struct{}

// SweepPositionsResult contains the result of the SweepPositions activity.
type SweepPositionsResult struct {
	Checked     int      `json:"checked"`
	Skipped     int      `json:"skipped"`
	Sold        int      `json:"sold"`
	TradeIDs    []string `json:"trade_ids,omitempty"`
	RealizedPnL float64  `json:"realized_pnl"`
}

// Sweeper runs one pass of the exit rules over open positions.
type Sweeper interface {
	Sweep(ctx context.Context) exit.SweepResult
}

// Activities holds the dependencies for the exit sweep activity.
// The sweeper owns in-memory ledger state, so the worker must run in the
// same process as the ledger.
type Activities struct {
	sweeper Sweeper
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewActivities creates a new Activities instance.
// If metrics is nil, no metrics will be recorded.
func NewActivities(sweeper Sweeper, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		sweeper: sweeper,
		metrics: m,
		logger:  logger,
	}
}

// SweepPositions evaluates every open position once and sells those whose exit rule fires.
func (a *Activities) SweepPositions(ctx context.Context, input SweepPositionsInput) (*SweepPositionsResult, error) {
	res := a.sweeper.Sweep(ctx)

	out := &SweepPositionsResult{
		Checked: res.Checked,
		Skipped: res.Skipped,
		Sold:    res.Sold,
	}
	for _, trade := range res.Trades {
		out.TradeIDs = append(out.TradeIDs, trade.ID)
		out.RealizedPnL += trade.ProfitLoss
	}

	a.metrics.RecordSweepActivity(out.Sold)
	a.logger.DebugContext(ctx, "sweep activity completed",
		"checked", out.Checked,
		"skipped", out.Skipped,
		"sold", out.Sold,
	)
	return out, nil
}
