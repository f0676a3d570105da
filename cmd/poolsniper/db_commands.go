package main

import (
	"context"
	"fmt"
	"os"

	"github.com/brojonat/poolsniper/service/db"
	"github.com/urfave/cli/v2"
)

func dbTradesCommand() *cli.Command {
	return &cli.Command{
		Name:  "trades",
		Usage: "List completed trades stored in Postgres, newest first",
		Flags: tradeFilterFlags(),
		Action: func(c *cli.Context) error {
			params, err := tradeParamsFromFlags(c)
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			trades, err := store.ListTrades(context.Background(), params)
			if err != nil {
				return fmt.Errorf("failed to list trades: %w", err)
			}
			return printTrades(c, trades)
		},
	}
}

func dbStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Summarize realized PnL from Postgres",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			stats, err := store.TradeStats(context.Background())
			if err != nil {
				return fmt.Errorf("failed to compute trade stats: %w", err)
			}
			return printStats(c, stats)
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the embedded schema",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(context.Background()); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "✓ Schema applied")
			return nil
		},
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		// Try environment variable directly if flag not found
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := db.Connect(context.Background(), dbURL)
	if err != nil {
		return nil, nil, err
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}
