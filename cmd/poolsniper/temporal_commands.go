package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/poolsniper/service/temporal"
	"github.com/urfave/cli/v2"
)

// schedulerFactory opens a Scheduler for a command and returns a closer.
type schedulerFactory func(c *cli.Context) (temporal.Scheduler, func(), error)

// connectScheduler dials Temporal using the global flags.
func connectScheduler(c *cli.Context) (temporal.Scheduler, func(), error) {
	tc, err := temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		newQuietLogger(),
	)
	if err != nil {
		return nil, nil, err
	}
	return tc, tc.Close, nil
}

func temporalCommands(connect schedulerFactory) *cli.Command {
	return &cli.Command{
		Name:  "temporal",
		Usage: "Exit sweep schedule management",
		Subcommands: []*cli.Command{
			describeScheduleCommand(connect),
			upsertScheduleCommand(connect),
			pauseScheduleCommand(connect),
			resumeScheduleCommand(connect),
			deleteScheduleCommand(connect),
			triggerSweepCommand(connect),
		},
	}
}

func describeScheduleCommand(connect schedulerFactory) *cli.Command {
	return &cli.Command{
		Name:    "describe-schedule",
		Usage:   "Describe the exit sweep schedule",
		Aliases: []string{"desc"},
		Action: withScheduler(connect, func(c *cli.Context, s temporal.Scheduler) error {
			info, err := s.DescribeSweepSchedule(context.Background())
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, info)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Schedule ID:  %s\n", info.ID)
			fmt.Fprintf(out, "Interval:     %s\n", info.Interval)
			fmt.Fprintf(out, "Paused:       %v\n", info.Paused)
			if info.Note != "" {
				fmt.Fprintf(out, "Note:         %s\n", info.Note)
			}
			fmt.Fprintf(out, "Recent Runs:  %d\n", info.RecentRuns)
			if info.NextRun != nil {
				fmt.Fprintf(out, "Next Run:     %s\n", info.NextRun.Format(time.RFC3339))
			}
			return nil
		}),
	}
}

func upsertScheduleCommand(connect schedulerFactory) *cli.Command {
	return &cli.Command{
		Name:  "upsert-schedule",
		Usage: "Create the exit sweep schedule or change its interval",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "Time between sweeps",
				EnvVars: []string{"EXIT_CHECK_INTERVAL"},
				Value:   10 * time.Second,
			},
		},
		Action: withScheduler(connect, func(c *cli.Context, s temporal.Scheduler) error {
			interval := c.Duration("interval")
			if interval < time.Second {
				return fmt.Errorf("interval must be at least 1s")
			}
			if err := s.UpsertSweepSchedule(context.Background(), interval); err != nil {
				return fmt.Errorf("failed to upsert schedule: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Sweep schedule set to every %s\n", interval)
			return nil
		}),
	}
}

func pauseScheduleCommand(connect schedulerFactory) *cli.Command {
	return &cli.Command{
		Name:  "pause-schedule",
		Usage: "Pause the exit sweep schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Reason for pausing",
				Value: "Paused via CLI",
			},
		},
		Action: withScheduler(connect, func(c *cli.Context, s temporal.Scheduler) error {
			if err := s.PauseSweepSchedule(context.Background(), c.String("note")); err != nil {
				return fmt.Errorf("failed to pause schedule: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ Sweep schedule paused")
			return nil
		}),
	}
}

func resumeScheduleCommand(connect schedulerFactory) *cli.Command {
	return &cli.Command{
		Name:  "resume-schedule",
		Usage: "Resume the exit sweep schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Reason for resuming",
				Value: "Resumed via CLI",
			},
		},
		Action: withScheduler(connect, func(c *cli.Context, s temporal.Scheduler) error {
			if err := s.ResumeSweepSchedule(context.Background(), c.String("note")); err != nil {
				return fmt.Errorf("failed to resume schedule: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ Sweep schedule resumed")
			return nil
		}),
	}
}

func deleteScheduleCommand(connect schedulerFactory) *cli.Command {
	return &cli.Command{
		Name:  "delete-schedule",
		Usage: "Delete the exit sweep schedule",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "Confirm deletion",
			},
		},
		Action: withScheduler(connect, func(c *cli.Context, s temporal.Scheduler) error {
			if !c.Bool("yes") {
				return fmt.Errorf("refusing to delete schedule %s without --yes", temporal.SweepScheduleID)
			}
			if err := s.DeleteSweepSchedule(context.Background()); err != nil {
				return fmt.Errorf("failed to delete schedule: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ Sweep schedule deleted")
			return nil
		}),
	}
}

func triggerSweepCommand(connect schedulerFactory) *cli.Command {
	return &cli.Command{
		Name:  "trigger-sweep",
		Usage: "Run an exit sweep now",
		Action: withScheduler(connect, func(c *cli.Context, s temporal.Scheduler) error {
			if err := s.TriggerSweep(context.Background()); err != nil {
				return fmt.Errorf("failed to trigger sweep: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ Sweep triggered")
			return nil
		}),
	}
}

func withScheduler(connect schedulerFactory, fn func(c *cli.Context, s temporal.Scheduler) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, closer, err := connect(c)
		if err != nil {
			return err
		}
		defer closer()
		return fn(c, s)
	}
}
