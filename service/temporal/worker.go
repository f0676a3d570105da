package temporal

import (
	"fmt"
	"log/slog"

	"github.com/brojonat/poolsniper/service/metrics"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Client is the connection the worker polls on. The worker does not close it.
	Client    client.Client
	TaskQueue string

	// Dependencies
	Sweeper Sweeper
	Metrics *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger  *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Client == nil {
		return nil, fmt.Errorf("temporal client is required")
	}
	if config.Sweeper == nil {
		return nil, fmt.Errorf("sweeper is required")
	}

	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker", "task_queue", config.TaskQueue)

	// One sweep at a time; the ledger serializes mutations anyway.
	w := worker.New(config.Client, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     1,
		MaxConcurrentWorkflowTaskExecutionSize: 2,
	})

	w.RegisterWorkflow(ExitSweepWorkflow)
	logger.Info("registered workflow", "name", "ExitSweepWorkflow")

	activities := NewActivities(config.Sweeper, config.Metrics, logger)
	w.RegisterActivity(activities.SweepPositions)
	logger.Info("registered activities", "activities", []string{"SweepPositions"})

	return &Worker{
		worker: w,
		logger: logger,
	}, nil
}

// Start begins processing workflows and activities without blocking.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	if err := w.worker.Start(); err != nil {
		w.logger.Error("worker failed to start", "error", err)
		return fmt.Errorf("worker failed to start: %w", err)
	}
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.logger.Info("temporal worker stopped")
}
