package exit

import (
	"time"

	"github.com/brojonat/poolsniper/service/ledger"
)

// Rules are the exit thresholds. Percentages are fractions: 0.15 is 15%.
type Rules struct {
	ProfitTarget float64
	TrailingStop float64
	TimeLimit    time.Duration
}

// DefaultRules returns a 15% profit target, a 5% trailing stop and a one hour hold limit.
func DefaultRules() Rules {
	return Rules{
		ProfitTarget: 0.15,
		TrailingStop: 0.05,
		TimeLimit:    60 * time.Minute,
	}
}

// TrailingArmed reports whether the position's peak has ever cleared the profit target.
func TrailingArmed(pos ledger.Position, rules Rules) bool {
	return pos.PeakPrice > pos.BuyPrice*(1+rules.ProfitTarget)
}

// Evaluate returns the first exit rule that fires for pos at the current price.
// Order: profit target, trailing stop, time limit.
func Evaluate(pos ledger.Position, current float64, now time.Time, rules Rules) (ledger.ExitReason, bool) {
	if pos.BuyPrice > 0 && (current-pos.BuyPrice)/pos.BuyPrice >= rules.ProfitTarget {
		return ledger.ReasonProfitTarget, true
	}
	if TrailingArmed(pos, rules) && current < pos.PeakPrice*(1-rules.TrailingStop) {
		return ledger.ReasonTrailingStop, true
	}
	if now.Sub(pos.BuyTime) >= rules.TimeLimit {
		return ledger.ReasonTimeLimit, true
	}
	return "", false
}
