package db

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/poolsniper/service/ledger"
)

// AppendCompletedTrade inserts trade. Trades are never updated.
func (s *Store) AppendCompletedTrade(ctx context.Context, trade ledger.CompletedTrade) (err error) {
	start := time.Now()
	defer func() { s.observe("append_trade", "completed_trades", start, err) }()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO completed_trades (
			id, mint, pool_id, buy_price, buy_time, token_amount, peak_price, sol_cost,
			sell_price, sol_proceeds, exit_reason, sell_time, profit_loss
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		trade.ID, trade.Mint, trade.PoolID, trade.BuyPrice, trade.BuyTime, trade.TokenAmount,
		trade.PeakPrice, trade.SolCost, trade.SellPrice, trade.SolProceeds, string(trade.Reason),
		trade.SellTime, trade.ProfitLoss,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("trade %s: %w", trade.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// ListTradesParams filters ListTrades. Zero values match everything.
type ListTradesParams struct {
	Mint   string
	Reason ledger.ExitReason
	Since  time.Time
	Limit  int32
}

// ListTrades returns completed trades, newest first.
func (s *Store) ListTrades(ctx context.Context, params ListTradesParams) (trades []ledger.CompletedTrade, err error) {
	start := time.Now()
	defer func() { s.observe("list_trades", "completed_trades", start, err) }()

	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, mint, pool_id, buy_price, buy_time, token_amount, peak_price, sol_cost,
		       sell_price, sol_proceeds, exit_reason, sell_time, profit_loss
		FROM completed_trades
		WHERE ($1 = '' OR mint = $1)
		  AND ($2 = '' OR exit_reason = $2)
		  AND sell_time >= $3
		ORDER BY sell_time DESC, id
		LIMIT $4`,
		params.Mint, string(params.Reason), params.Since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades = []ledger.CompletedTrade{}
	for rows.Next() {
		var t ledger.CompletedTrade
		var reason string
		if err := rows.Scan(
			&t.ID, &t.Mint, &t.PoolID, &t.BuyPrice, &t.BuyTime, &t.TokenAmount, &t.PeakPrice, &t.SolCost,
			&t.SellPrice, &t.SolProceeds, &reason, &t.SellTime, &t.ProfitLoss,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Reason = ledger.ExitReason(reason)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trades: %w", err)
	}
	return trades, nil
}

// TradeStats aggregates all completed trades.
func (s *Store) TradeStats(ctx context.Context) (stats ledger.TradeStats, err error) {
	start := time.Now()
	defer func() { s.observe("trade_stats", "completed_trades", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT exit_reason,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE profit_loss > 0),
		       COUNT(*) FILTER (WHERE profit_loss < 0),
		       COALESCE(SUM(profit_loss), 0),
		       COALESCE(SUM(sol_cost), 0)
		FROM completed_trades
		GROUP BY exit_reason`)
	if err != nil {
		return stats, fmt.Errorf("failed to query trade stats: %w", err)
	}
	defer rows.Close()

	stats.ByReason = make(map[ledger.ExitReason]int)
	for rows.Next() {
		var (
			reason              string
			count, wins, losses int
			pnl, cost           float64
		)
		if err := rows.Scan(&reason, &count, &wins, &losses, &pnl, &cost); err != nil {
			return stats, fmt.Errorf("failed to scan trade stats: %w", err)
		}
		stats.Add(ledger.ExitReason(reason), count, wins, losses, pnl, cost)
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("failed to read trade stats: %w", err)
	}
	return stats, nil
}
