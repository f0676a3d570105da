package nats

import (
	"time"

	"github.com/brojonat/poolsniper/service/detector"
	"github.com/brojonat/poolsniper/service/ledger"
	"github.com/brojonat/poolsniper/service/qualifier"
)

// PoolDetectedEvent is published to "pools.detected" for every classified pool.
type PoolDetectedEvent struct {
	PoolID    string    `json:"pool_id"`
	Signature string    `json:"signature"`
	Slot      uint64    `json:"slot"`
	CoinMint  string    `json:"coin_mint"`
	PCMint    string    `json:"pc_mint"`
	LPMint    string    `json:"lp_mint"`
	MarketID  string    `json:"market_id"`
	CreatedAt time.Time `json:"created_at"`

	PublishedAt time.Time `json:"published_at"`
}

// PoolQualifiedEvent is published to "pools.qualified" for every verdict.
type PoolQualifiedEvent struct {
	PoolID    string `json:"pool_id"`
	Signature string `json:"signature"`
	Suitable  bool   `json:"suitable"`
	Rule      string `json:"rule"`
	Reason    string `json:"reason"`
	Mint      string `json:"mint,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// TradeClosedEvent is published to "trades.closed" for every completed sell.
type TradeClosedEvent struct {
	ledger.CompletedTrade

	PublishedAt time.Time `json:"published_at"`
}

// FromPoolEvent converts a detected pool for publishing.
func FromPoolEvent(e detector.PoolEvent) *PoolDetectedEvent {
	return &PoolDetectedEvent{
		PoolID:      e.PoolID.String(),
		Signature:   e.Signature.String(),
		Slot:        e.Slot,
		CoinMint:    e.CoinMint.String(),
		PCMint:      e.PCMint.String(),
		LPMint:      e.LPMint.String(),
		MarketID:    e.MarketID.String(),
		CreatedAt:   e.Timestamp,
		PublishedAt: time.Now().UTC(),
	}
}

// FromVerdict converts a qualification result for publishing.
func FromVerdict(e detector.PoolEvent, v qualifier.Verdict) *PoolQualifiedEvent {
	event := &PoolQualifiedEvent{
		PoolID:      e.PoolID.String(),
		Signature:   e.Signature.String(),
		Suitable:    v.Suitable,
		Rule:        string(v.Rule),
		Reason:      v.Reason,
		PublishedAt: time.Now().UTC(),
	}
	if v.Suitable {
		event.Mint = v.Mint.String()
	}
	return event
}

// FromTrade converts a completed trade for publishing.
func FromTrade(t ledger.CompletedTrade) *TradeClosedEvent {
	return &TradeClosedEvent{CompletedTrade: t, PublishedAt: time.Now().UTC()}
}
