package temporal

import (
	"context"
	"time"
)

// SweepScheduleID is the Temporal schedule that triggers ExitSweepWorkflow.
const SweepScheduleID = "poolsniper-exit-sweep"

// ScheduleInfo is the operator view of the sweep schedule.
type ScheduleInfo struct {
	ID         string        `json:"id"`
	Interval   time.Duration `json:"interval"`
	Paused     bool          `json:"paused"`
	Note       string        `json:"note,omitempty"`
	RecentRuns int           `json:"recent_runs"`
	NextRun    *time.Time    `json:"next_run,omitempty"`
}

// Scheduler manages the exit sweep schedule.
type Scheduler interface {
	// UpsertSweepSchedule creates the schedule or updates its interval.
	UpsertSweepSchedule(ctx context.Context, interval time.Duration) error

	// DescribeSweepSchedule returns the current schedule state.
	DescribeSweepSchedule(ctx context.Context) (*ScheduleInfo, error)

	// PauseSweepSchedule stops triggering sweeps until resumed.
	PauseSweepSchedule(ctx context.Context, note string) error

	// ResumeSweepSchedule restarts a paused schedule.
	ResumeSweepSchedule(ctx context.Context, note string) error

	// TriggerSweep runs the sweep workflow immediately.
	TriggerSweep(ctx context.Context) error

	// DeleteSweepSchedule removes the schedule.
	DeleteSweepSchedule(ctx context.Context) error
}
