package detector

import (
	"time"

	solanago "github.com/gagliardetto/solana-go"
)

// PoolEvent is a detected pool initialization. It is produced once per
// classified transaction and never mutated.
type PoolEvent struct {
	PoolID    solanago.PublicKey `json:"pool_id"`
	Signature solanago.Signature `json:"signature"`
	Slot      uint64             `json:"slot"`
	Timestamp time.Time          `json:"timestamp"`
	CoinMint  solanago.PublicKey `json:"coin_mint"`
	PCMint    solanago.PublicKey `json:"pc_mint"`
	LPMint    solanago.PublicKey `json:"lp_mint"`
	MarketID  solanago.PublicKey `json:"market_id"`
}

// Mints returns the two reserve mints, coin first.
func (e PoolEvent) Mints() (solanago.PublicKey, solanago.PublicKey) {
	return e.CoinMint, e.PCMint
}

// Handler receives classified pool events. It may be called concurrently.
type Handler func(PoolEvent)
