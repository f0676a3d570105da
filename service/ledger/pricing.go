package ledger

// SlippageBand is a closed [Min, Max] range that slippage is drawn from uniformly.
type SlippageBand struct {
	Min float64
	Max float64
}

// Sample draws a slippage rate using r, which must return values in [0, 1).
func (b SlippageBand) Sample(r func() float64) float64 {
	if b.Max <= b.Min {
		return b.Min
	}
	return b.Min + r()*(b.Max-b.Min)
}

// TokensOut is the token amount received for solIn at price, after fee and slippage.
// Price is the token's cost in SOL. A non-positive price yields zero.
func TokensOut(solIn, price, fee, slippage float64) float64 {
	if price <= 0 {
		return 0
	}
	return solIn * (1 - fee) / price * (1 - slippage)
}

// SolOut is the SOL received for selling amount tokens at price, after fee and slippage.
func SolOut(amount, price, fee, slippage float64) float64 {
	if price <= 0 {
		return 0
	}
	return amount * price * (1 - fee) * (1 - slippage)
}
