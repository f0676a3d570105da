package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

const defaultSweepTimeout = time.Minute

// ExitSweepWorkflow runs one exit sweep. It is triggered by the exit sweep
// schedule at the configured check interval.
//
// The activity is not retried: a failed sweep is retried by the next scheduled run.
func ExitSweepWorkflow(ctx workflow.Context, input ExitSweepInput) (*ExitSweepResult, error) {
	logger := workflow.GetLogger(ctx)

	result := &ExitSweepResult{SweepTime: workflow.Now(ctx)}

	timeout := input.Timeout
	if timeout <= 0 {
		timeout = defaultSweepTimeout
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var sweep *SweepPositionsResult
	err := workflow.ExecuteActivity(ctx, a.SweepPositions, SweepPositionsInput{}).Get(ctx, &sweep)
	if err != nil {
		logger.Error("exit sweep failed", "error", err)
		errMsg := fmt.Sprintf("failed to sweep positions: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to sweep positions: %w", err)
	}

	result.Checked = sweep.Checked
	result.Skipped = sweep.Skipped
	result.Sold = sweep.Sold
	result.TradeIDs = sweep.TradeIDs
	result.RealizedPnL = sweep.RealizedPnL

	if result.Sold > 0 {
		logger.Info("exit sweep closed positions",
			"sold", result.Sold,
			"realized_pnl", result.RealizedPnL,
		)
	}
	return result, nil
}
