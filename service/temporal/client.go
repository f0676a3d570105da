package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

func (c *Client) createSweepSchedule(ctx context.Context, interval time.Duration) error {
	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: SweepScheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:                 "exit-sweep",
			Workflow:           ExitSweepWorkflow,
			TaskQueue:          c.taskQueue,
			Args:               []interface{}{ExitSweepInput{Timeout: interval}},
			WorkflowRunTimeout: 2 * interval,
		},
		// A slow sweep must not queue up behind itself.
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Memo: map[string]interface{}{
			"created_by": "poolsniper",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule",
			"schedule_id", SweepScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", SweepScheduleID, err)
	}

	c.logger.Info("exit sweep schedule created",
		"schedule_id", SweepScheduleID,
		"interval", interval,
	)
	return nil
}

// UpsertSweepSchedule creates the exit sweep schedule, or updates its interval if it exists.
func (c *Client) UpsertSweepSchedule(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", interval)
	}

	handle := c.client.ScheduleClient().GetHandle(ctx, SweepScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", SweepScheduleID,
			"error", err,
		)
		return c.createSweepSchedule(ctx, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			if action, ok := input.Description.Schedule.Action.(*client.ScheduleWorkflowAction); ok {
				action.TaskQueue = c.taskQueue
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"schedule_id", SweepScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", SweepScheduleID, err)
	}

	c.logger.Info("exit sweep schedule updated",
		"schedule_id", SweepScheduleID,
		"interval", interval,
		"task_queue", c.taskQueue,
	)
	return nil
}

// DescribeSweepSchedule returns the schedule's interval, pause state and next run.
func (c *Client) DescribeSweepSchedule(ctx context.Context) (*ScheduleInfo, error) {
	desc, err := c.client.ScheduleClient().GetHandle(ctx, SweepScheduleID).Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe schedule %q: %w", SweepScheduleID, err)
	}

	info := &ScheduleInfo{
		ID:         SweepScheduleID,
		RecentRuns: len(desc.Info.RecentActions),
	}
	if spec := desc.Schedule.Spec; spec != nil && len(spec.Intervals) > 0 {
		info.Interval = spec.Intervals[0].Every
	}
	if state := desc.Schedule.State; state != nil {
		info.Paused = state.Paused
		info.Note = state.Note
	}
	if len(desc.Info.NextActionTimes) > 0 {
		next := desc.Info.NextActionTimes[0]
		info.NextRun = &next
	}
	return info, nil
}

// PauseSweepSchedule pauses the schedule with an operator note.
func (c *Client) PauseSweepSchedule(ctx context.Context, note string) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, SweepScheduleID)
	if err := handle.Pause(ctx, client.SchedulePauseOptions{Note: note}); err != nil {
		return fmt.Errorf("failed to pause schedule %q: %w", SweepScheduleID, err)
	}
	c.logger.Info("exit sweep schedule paused", "schedule_id", SweepScheduleID, "note", note)
	return nil
}

// ResumeSweepSchedule unpauses the schedule with an operator note.
func (c *Client) ResumeSweepSchedule(ctx context.Context, note string) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, SweepScheduleID)
	if err := handle.Unpause(ctx, client.ScheduleUnpauseOptions{Note: note}); err != nil {
		return fmt.Errorf("failed to resume schedule %q: %w", SweepScheduleID, err)
	}
	c.logger.Info("exit sweep schedule resumed", "schedule_id", SweepScheduleID, "note", note)
	return nil
}

// TriggerSweep starts the sweep workflow now, outside the interval.
func (c *Client) TriggerSweep(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, SweepScheduleID)
	if err := handle.Trigger(ctx, client.ScheduleTriggerOptions{
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
	}); err != nil {
		return fmt.Errorf("failed to trigger schedule %q: %w", SweepScheduleID, err)
	}
	c.logger.Info("exit sweep triggered", "schedule_id", SweepScheduleID)
	return nil
}

// DeleteSweepSchedule deletes the exit sweep schedule.
func (c *Client) DeleteSweepSchedule(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, SweepScheduleID)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"schedule_id", SweepScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", SweepScheduleID, err)
	}

	c.logger.Info("exit sweep schedule deleted", "schedule_id", SweepScheduleID)
	return nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
