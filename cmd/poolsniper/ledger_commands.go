package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/brojonat/poolsniper/service/db"
	"github.com/brojonat/poolsniper/service/ledger"
	"github.com/brojonat/poolsniper/service/store"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func listPositionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List open positions from the state file",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			fs := store.NewFileStore(c.String("state-file"), slog.New(slog.NewTextHandler(io.Discard, nil)))
			positions, err := fs.LoadPositions(context.Background())
			if err != nil {
				return fmt.Errorf("failed to load positions: %w", err)
			}
			sort.Slice(positions, func(i, j int) bool {
				if positions[i].BuyTime.Equal(positions[j].BuyTime) {
					return positions[i].Mint < positions[j].Mint
				}
				return positions[i].BuyTime.Before(positions[j].BuyTime)
			})

			if c.Bool("json") {
				return outputJSON(c.App.Writer, positions)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MINT\tPOOL\tBUY PRICE\tPEAK\tTOKENS\tCOST\tHELD")
			for _, p := range positions {
				fmt.Fprintf(w, "%s\t%s\t%.10g\t%.10g\t%.4f\t%.4f\t%s\n",
					p.Mint,
					p.PoolID,
					p.BuyPrice,
					p.PeakPrice,
					p.TokenAmount,
					p.SolCost,
					time.Since(p.BuyTime).Round(time.Second),
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d positions\n", len(positions))
			return nil
		},
	}
}

func listTradesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List completed trades from the trade log, newest first",
		Aliases: []string{"ls"},
		Description: `Reads the JSON-lines trade log.

Every --jq filter is evaluated against each trade record and must produce a
truthy value for the trade to be listed.

Examples:
  poolsniper trades list --reason profit_target
  poolsniper trades list --jq '.profit_loss > 0.01' --jq '.pool_id | startswith("58oQ")'`,
		Flags: append(tradeFilterFlags(),
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter that must be truthy for each listed trade (repeatable)",
			},
		),
		Action: func(c *cli.Context) error {
			params, err := tradeParamsFromFlags(c)
			if err != nil {
				return err
			}
			filters, err := compileJQ(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			trades, err := store.NewJSONLTradeLog(c.String("trades-file")).ReadTrades()
			if err != nil {
				return fmt.Errorf("failed to read trades: %w", err)
			}

			// jq runs before the limit so --limit counts matches.
			limit := params.Limit
			params.Limit = 0
			selected := filterTrades(trades, params)
			if len(filters) > 0 {
				selected, err = filterTradesJQ(selected, filters)
				if err != nil {
					return err
				}
			}
			if limit > 0 && len(selected) > int(limit) {
				selected = selected[:limit]
			}

			return printTrades(c, selected)
		},
	}
}

func tradeStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Summarize realized PnL from the trade log",
		Action: func(c *cli.Context) error {
			trades, err := store.NewJSONLTradeLog(c.String("trades-file")).ReadTrades()
			if err != nil {
				return fmt.Errorf("failed to read trades: %w", err)
			}
			return printStats(c, ledger.Summarize(trades))
		},
	}
}

func tradeFilterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "mint",
			Usage: "Only trades for this token mint",
		},
		&cli.StringFlag{
			Name:  "reason",
			Usage: "Only trades closed for this reason (profit_target, trailing_stop, time_limit)",
		},
		&cli.DurationFlag{
			Name:  "since",
			Usage: "Only trades sold within this window (e.g. 24h)",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of trades to show",
			Value:   100,
		},
	}
}

func tradeParamsFromFlags(c *cli.Context) (db.ListTradesParams, error) {
	params := db.ListTradesParams{
		Mint:   c.String("mint"),
		Reason: ledger.ExitReason(c.String("reason")),
		Limit:  int32(c.Int("limit")),
	}
	if params.Reason != "" && !params.Reason.Valid() {
		return params, fmt.Errorf("invalid --reason %q: must be one of profit_target, trailing_stop, time_limit", params.Reason)
	}
	if since := c.Duration("since"); since > 0 {
		params.Since = time.Now().Add(-since).UTC()
	}
	return params, nil
}

// compileJQ parses and compiles each filter.
func compileJQ(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// filterTradesJQ keeps trades for which every filter yields a truthy first result.
func filterTradesJQ(trades []ledger.CompletedTrade, filters []*gojq.Code) ([]ledger.CompletedTrade, error) {
	out := make([]ledger.CompletedTrade, 0, len(trades))
	for _, trade := range trades {
		record, err := toJQInput(trade)
		if err != nil {
			return nil, err
		}
		if matchesAll(record, filters) {
			out = append(out, trade)
		}
	}
	return out, nil
}

// toJQInput converts v into the generic map form gojq operates on.
func toJQInput(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	var record interface{}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return record, nil
}

func matchesAll(record interface{}, filters []*gojq.Code) bool {
	for _, code := range filters {
		iter := code.Run(record)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// Only null and false are falsy, as in jq.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

func printTrades(c *cli.Context, trades []ledger.CompletedTrade) error {
	if c.Bool("json") {
		return outputJSON(c.App.Writer, trades)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOLD\tMINT\tREASON\tBUY\tSELL\tPNL (SOL)\tHELD")
	for _, t := range trades {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.10g\t%.10g\t%+.6f\t%s\n",
			t.SellTime.Format(time.RFC3339),
			t.Mint,
			t.Reason,
			t.BuyPrice,
			t.SellPrice,
			t.ProfitLoss,
			t.HoldDuration().Round(time.Second),
		)
	}
	w.Flush()

	fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d trades\n", len(trades))
	return nil
}

func printStats(c *cli.Context, stats ledger.TradeStats) error {
	if c.Bool("json") {
		return outputJSON(c.App.Writer, map[string]interface{}{
			"stats":    stats,
			"win_rate": stats.WinRate(),
			"roi":      stats.ROI(),
		})
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Trades:        %d\n", stats.Count)
	fmt.Fprintf(out, "Wins / Losses: %d / %d\n", stats.Wins, stats.Losses)
	fmt.Fprintf(out, "Win Rate:      %.1f%%\n", stats.WinRate()*100)
	fmt.Fprintf(out, "Total PnL:     %+.6f SOL\n", stats.TotalPnL)
	fmt.Fprintf(out, "Total Cost:    %.6f SOL\n", stats.TotalCost)
	fmt.Fprintf(out, "ROI:           %+.2f%%\n", stats.ROI()*100)
	for _, reason := range []ledger.ExitReason{ledger.ReasonProfitTarget, ledger.ReasonTrailingStop, ledger.ReasonTimeLimit} {
		fmt.Fprintf(out, "  %-14s %d\n", reason, stats.ByReason[reason])
	}
	return nil
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
