package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/poolsniper/service/detector"
	"github.com/brojonat/poolsniper/service/ledger"
	"github.com/brojonat/poolsniper/service/qualifier"
	solanago "github.com/gagliardetto/solana-go"
)

// Qualifier judges a detected pool.
type Qualifier interface {
	Evaluate(ctx context.Context, event detector.PoolEvent) qualifier.Verdict
}

// Buyer is the slice of the ledger used to open positions.
type Buyer interface {
	Admission(mint string) error
	Buy(ctx context.Context, mint, poolID string, price float64) (ledger.Position, error)
}

// PriceSource quotes a pool's current token price in SOL.
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, poolID solanago.PublicKey) (float64, error)
}

// EventPublisher announces detections and verdicts. Publishing is best effort.
type EventPublisher interface {
	PublishPoolDetected(ctx context.Context, event detector.PoolEvent) error
	PublishPoolQualified(ctx context.Context, event detector.PoolEvent, verdict qualifier.Verdict) error
}

// Outcome is what happened to one detected pool.
type Outcome string

const (
	OutcomeRejected         Outcome = "rejected"
	OutcomeNoCapacity       Outcome = "no_capacity"
	OutcomePriceUnavailable Outcome = "price_unavailable"
	OutcomeBuyFailed        Outcome = "buy_failed"
	OutcomeBought           Outcome = "bought"
)

// Pipeline takes a pool event from detection to an opened position.
type Pipeline struct {
	qualifier     Qualifier
	buyer         Buyer
	prices        PriceSource
	publisher     EventPublisher
	lookupTimeout time.Duration
	logger        *slog.Logger
}

// New creates a pipeline. publisher may be nil.
func New(q Qualifier, buyer Buyer, prices PriceSource, publisher EventPublisher, lookupTimeout time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if lookupTimeout <= 0 {
		lookupTimeout = 10 * time.Second
	}
	return &Pipeline{
		qualifier:     q,
		buyer:         buyer,
		prices:        prices,
		publisher:     publisher,
		lookupTimeout: lookupTimeout,
		logger:        logger.With("component", "pipeline"),
	}
}

// Handler adapts the pipeline to a detector callback bound to ctx.
func (p *Pipeline) Handler(ctx context.Context) detector.Handler {
	return func(event detector.PoolEvent) {
		p.Process(ctx, event)
	}
}

// Process qualifies event and buys into it when accepted and admitted.
func (p *Pipeline) Process(ctx context.Context, event detector.PoolEvent) (Outcome, error) {
	logger := p.logger.With("pool", event.PoolID.String(), "signature", event.Signature.String())

	if p.publisher != nil {
		if err := p.publisher.PublishPoolDetected(ctx, event); err != nil {
			logger.WarnContext(ctx, "failed to publish pool detection", "error", err)
		}
	}

	verdict := p.qualifier.Evaluate(ctx, event)
	if p.publisher != nil {
		if err := p.publisher.PublishPoolQualified(ctx, event, verdict); err != nil {
			logger.WarnContext(ctx, "failed to publish verdict", "error", err)
		}
	}
	if !verdict.Suitable {
		return OutcomeRejected, nil
	}

	mint := verdict.Mint.String()
	if err := p.buyer.Admission(mint); err != nil {
		logger.InfoContext(ctx, "skipping qualified pool", "mint", mint, "reason", err.Error())
		return OutcomeNoCapacity, err
	}

	priceCtx, cancel := context.WithTimeout(ctx, p.lookupTimeout)
	price, err := p.prices.GetCurrentPrice(priceCtx, verdict.PoolID)
	cancel()
	if err != nil || !(price > 0) {
		if err == nil {
			err = fmt.Errorf("non-positive price %v", price)
		}
		logger.WarnContext(ctx, "price unavailable, skipping buy", "mint", mint, "error", err)
		return OutcomePriceUnavailable, err
	}

	pos, err := p.buyer.Buy(ctx, mint, verdict.PoolID.String(), price)
	if err != nil {
		if ledger.IsAdmissionRejection(err) {
			return OutcomeNoCapacity, err
		}
		logger.WarnContext(ctx, "buy failed", "mint", mint, "error", err)
		return OutcomeBuyFailed, err
	}

	logger.InfoContext(ctx, "position opened",
		"mint", pos.Mint,
		"price", pos.BuyPrice,
		"tokens", pos.TokenAmount,
	)
	return OutcomeBought, nil
}
