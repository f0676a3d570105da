package ledger

// TradeStats aggregates realized results over completed trades.
type TradeStats struct {
	Count     int                `json:"count"`
	Wins      int                `json:"wins"`
	Losses    int                `json:"losses"`
	TotalPnL  float64            `json:"total_pnl"`
	TotalCost float64            `json:"total_cost"`
	ByReason  map[ExitReason]int `json:"by_reason"`
}

// Summarize computes stats over trades.
func Summarize(trades []CompletedTrade) TradeStats {
	stats := TradeStats{ByReason: make(map[ExitReason]int)}
	for _, t := range trades {
		stats.Add(t.Reason, 1, boolToInt(t.ProfitLoss > 0), boolToInt(t.ProfitLoss < 0), t.ProfitLoss, t.SolCost)
	}
	return stats
}

// Add folds a group of trades sharing an exit reason into the totals.
func (s *TradeStats) Add(reason ExitReason, count, wins, losses int, pnl, cost float64) {
	if s.ByReason == nil {
		s.ByReason = make(map[ExitReason]int)
	}
	s.Count += count
	s.Wins += wins
	s.Losses += losses
	s.TotalPnL += pnl
	s.TotalCost += cost
	s.ByReason[reason] += count
}

// WinRate is the fraction of trades closed at a profit.
func (s TradeStats) WinRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Count)
}

// ROI is realized PnL over committed cost.
func (s TradeStats) ROI() float64 {
	if s.TotalCost == 0 {
		return 0
	}
	return s.TotalPnL / s.TotalCost
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
