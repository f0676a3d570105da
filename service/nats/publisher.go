package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/poolsniper/service/detector"
	"github.com/brojonat/poolsniper/service/ledger"
	"github.com/brojonat/poolsniper/service/metrics"
	"github.com/brojonat/poolsniper/service/qualifier"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher announces sniper activity to NATS.
type Publisher interface {
	// PublishPoolDetected publishes to "pools.detected".
	PublishPoolDetected(ctx context.Context, event detector.PoolEvent) error

	// PublishPoolQualified publishes to "pools.qualified".
	PublishPoolQualified(ctx context.Context, event detector.PoolEvent, verdict qualifier.Verdict) error

	// PublishTrade publishes to "trades.closed". It satisfies ledger.TradePublisher.
	PublishTrade(ctx context.Context, trade ledger.CompletedTrade) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for sniper events.
	StreamName = "POOLSNIPER"

	SubjectPoolDetected  = "pools.detected"
	SubjectPoolQualified = "pools.qualified"
	SubjectTradeClosed   = "trades.closed"

	// StreamRetention is how long messages are retained (7 days by default).
	StreamRetention = 7 * 24 * time.Hour
)

// StreamSubjects are the subject patterns bound to the stream.
var StreamSubjects = []string{"pools.*", "trades.*"}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("poolsniper-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger.With("component", "nats_publisher"),
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	publisher.logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)
	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Pool detections, qualification verdicts and closed paper trades",
		Subjects:    StreamSubjects,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

func (p *JetStreamPublisher) PublishPoolDetected(ctx context.Context, event detector.PoolEvent) error {
	if err := p.publish(ctx, SubjectPoolDetected, FromPoolEvent(event)); err != nil {
		return err
	}
	p.logger.Debug("published pool detection", "pool", event.PoolID.String())
	return nil
}

func (p *JetStreamPublisher) PublishPoolQualified(ctx context.Context, event detector.PoolEvent, verdict qualifier.Verdict) error {
	if err := p.publish(ctx, SubjectPoolQualified, FromVerdict(event, verdict)); err != nil {
		return err
	}
	p.logger.Debug("published verdict",
		"pool", event.PoolID.String(),
		"suitable", verdict.Suitable,
	)
	return nil
}

func (p *JetStreamPublisher) PublishTrade(ctx context.Context, trade ledger.CompletedTrade) error {
	if err := p.publish(ctx, SubjectTradeClosed, FromTrade(trade)); err != nil {
		return err
	}
	p.logger.Debug("published trade", "trade_id", trade.ID, "mint", trade.Mint)
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
