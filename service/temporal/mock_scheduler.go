package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	exists    bool
	interval  time.Duration
	paused    bool
	note      string
	triggers  int
	createErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// UpsertSweepSchedule creates or updates the schedule.
func (m *MockScheduler) UpsertSweepSchedule(ctx context.Context, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	m.exists = true
	m.interval = interval
	return nil
}

// DescribeSweepSchedule returns the recorded schedule state.
func (m *MockScheduler) DescribeSweepSchedule(ctx context.Context) (*ScheduleInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return nil, fmt.Errorf("schedule %q not found", SweepScheduleID)
	}
	return &ScheduleInfo{
		ID:         SweepScheduleID,
		Interval:   m.interval,
		Paused:     m.paused,
		Note:       m.note,
		RecentRuns: m.triggers,
	}, nil
}

// PauseSweepSchedule records a pause.
func (m *MockScheduler) PauseSweepSchedule(ctx context.Context, note string) error {
	return m.setPaused(true, note)
}

// ResumeSweepSchedule records a resume.
func (m *MockScheduler) ResumeSweepSchedule(ctx context.Context, note string) error {
	return m.setPaused(false, note)
}

func (m *MockScheduler) setPaused(paused bool, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return fmt.Errorf("schedule %q not found", SweepScheduleID)
	}
	m.paused = paused
	m.note = note
	return nil
}

// TriggerSweep counts a manual trigger.
func (m *MockScheduler) TriggerSweep(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return fmt.Errorf("schedule %q not found", SweepScheduleID)
	}
	m.triggers++
	return nil
}

// DeleteSweepSchedule records that the schedule was deleted.
func (m *MockScheduler) DeleteSweepSchedule(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if !m.exists {
		return fmt.Errorf("schedule %q not found", SweepScheduleID)
	}
	m.exists = false
	m.interval = 0
	m.paused = false
	m.note = ""
	m.triggers = 0
	return nil
}

// SetCreateError makes UpsertSweepSchedule return an error.
func (m *MockScheduler) SetCreateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// SetDeleteError makes DeleteSweepSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// ScheduleExists reports whether the schedule exists.
func (m *MockScheduler) ScheduleExists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists
}

// Triggers returns how many times TriggerSweep succeeded.
func (m *MockScheduler) Triggers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggers
}
