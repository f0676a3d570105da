package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "poolsniper",
		Usage: "Paper-trading sniper for newly created Solana liquidity pools",
		Description: `Runs the pool sniper service and inspects its state.

Use "poolsniper run" to start the service. The remaining commands read the
state file, the trade log, Postgres, NATS, Temporal or a running server.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			runCommand(),
			// Local state inspection
			{
				Name:  "positions",
				Usage: "Open position commands",
				Subcommands: []*cli.Command{
					listPositionsCommand(),
				},
			},
			{
				Name:  "trades",
				Usage: "Completed trade commands",
				Subcommands: []*cli.Command{
					listTradesCommand(),
					tradeStatsCommand(),
				},
			},
			// Database inspection commands
			{
				Name:  "db",
				Usage: "Database inspection commands",
				Subcommands: []*cli.Command{
					dbTradesCommand(),
					dbStatsCommand(),
					migrateCommand(),
				},
			},
			// NATS event streaming commands
			{
				Name:  "nats",
				Usage: "NATS event streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// Temporal schedule management
			temporalCommands(connectScheduler),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					statusCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "state-file",
				Usage:   "Position state file",
				EnvVars: []string{"STATE_FILE"},
				Value:   "data/positions.json",
			},
			&cli.StringFlag{
				Name:    "trades-file",
				Usage:   "Completed trade log (JSON lines)",
				EnvVars: []string{"TRADES_FILE"},
				Value:   "data/trades.jsonl",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "temporal-task-queue",
				Usage:   "Temporal task queue",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "poolsniper-exit-sweep",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Server URL for health and status checks",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
