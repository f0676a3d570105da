package nats

import (
	"context"
	"sync"

	"github.com/brojonat/poolsniper/service/detector"
	"github.com/brojonat/poolsniper/service/ledger"
	"github.com/brojonat/poolsniper/service/qualifier"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu           sync.RWMutex
	detected     []detector.PoolEvent
	verdicts     []qualifier.Verdict
	trades       []ledger.CompletedTrade
	publishError error
	closed       bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishPoolDetected(ctx context.Context, event detector.PoolEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return m.publishError
	}
	m.detected = append(m.detected, event)
	return nil
}

func (m *MockPublisher) PublishPoolQualified(ctx context.Context, event detector.PoolEvent, verdict qualifier.Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return m.publishError
	}
	m.verdicts = append(m.verdicts, verdict)
	return nil
}

func (m *MockPublisher) PublishTrade(ctx context.Context, trade ledger.CompletedTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return m.publishError
	}
	m.trades = append(m.trades, trade)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// DetectedEvents returns a copy of the published pool detections.
func (m *MockPublisher) DetectedEvents() []detector.PoolEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]detector.PoolEvent(nil), m.detected...)
}

// Verdicts returns a copy of the published verdicts.
func (m *MockPublisher) Verdicts() []qualifier.Verdict {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]qualifier.Verdict(nil), m.verdicts...)
}

// Trades returns a copy of the published trades.
func (m *MockPublisher) Trades() []ledger.CompletedTrade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ledger.CompletedTrade(nil), m.trades...)
}

// SetPublishError configures the mock to fail every publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detected = nil
	m.verdicts = nil
	m.trades = nil
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
