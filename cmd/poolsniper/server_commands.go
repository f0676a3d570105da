package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/poolsniper/client"
	"github.com/urfave/cli/v2"
)

func newQuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func apiClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
	}
	return client.NewClient(serverURL, &http.Client{Timeout: c.Duration("timeout")}, nil), nil
}

func timeoutFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Request timeout",
		Value: 5 * time.Second,
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Flags: []cli.Flag{timeoutFlag()},
		Action: func(c *cli.Context) error {
			cl, err := apiClient(c)
			if err != nil {
				return err
			}
			if err := cl.Health(context.Background()); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Server is healthy\n")
			fmt.Fprintf(c.App.Writer, "  URL: %s\n", c.String("server-url"))
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show budget, open positions and persistence state of a running server",
		Flags: []cli.Flag{timeoutFlag()},
		Action: func(c *cli.Context) error {
			cl, err := apiClient(c)
			if err != nil {
				return err
			}
			status, err := cl.Status(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, status)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Budget:         %.6f SOL\n", status.Budget)
			fmt.Fprintf(out, "Open Positions: %d / %d\n", status.OpenPositions, status.MaxPositions)
			if status.DetectorActive != nil {
				fmt.Fprintf(out, "Detector:       %s\n", activeLabel(*status.DetectorActive))
			}
			if status.PersistenceOK {
				fmt.Fprintf(out, "Persistence:    ok\n")
			} else {
				fmt.Fprintf(out, "Persistence:    FAILING (%s)\n", status.PersistenceError)
			}
			return nil
		},
	}
}

func activeLabel(active bool) string {
	if active {
		return "subscribed"
	}
	return "not subscribed"
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "poolsniper CLI\n")
			fmt.Fprintf(c.App.Writer, "  Version: %s\n", version)
			fmt.Fprintf(c.App.Writer, "  Commit:  %s\n", commit)
			fmt.Fprintf(c.App.Writer, "  Built:   %s\n", date)
			return nil
		},
	}
}
