package ledger

import "time"

// ExitReason is why a position was closed.
type ExitReason string

const (
	ReasonProfitTarget ExitReason = "profit_target"
	ReasonTrailingStop ExitReason = "trailing_stop"
	ReasonTimeLimit    ExitReason = "time_limit"
)

// Valid reports whether r is one of the known exit reasons.
func (r ExitReason) Valid() bool {
	switch r {
	case ReasonProfitTarget, ReasonTrailingStop, ReasonTimeLimit:
		return true
	}
	return false
}

// Position is a live simulated holding. Mint is the unique key.
type Position struct {
	Mint        string    `json:"mint"`
	PoolID      string    `json:"pool_id"`
	BuyPrice    float64   `json:"buy_price"`
	BuyTime     time.Time `json:"buy_time"`
	TokenAmount float64   `json:"token_amount"`
	PeakPrice   float64   `json:"peak_price"`
	SolCost     float64   `json:"sol_cost"`
}

// CompletedTrade is the append-only record written once per sell.
type CompletedTrade struct {
	ID string `json:"id"`
	Position
	SellPrice   float64    `json:"sell_price"`
	SolProceeds float64    `json:"sol_proceeds"`
	Reason      ExitReason `json:"exit_reason"`
	SellTime    time.Time  `json:"sell_time"`
	ProfitLoss  float64    `json:"profit_loss"`
}

// HoldDuration is the time between buy and sell.
func (t CompletedTrade) HoldDuration() time.Duration {
	return t.SellTime.Sub(t.BuyTime)
}
