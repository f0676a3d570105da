package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/poolsniper/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams sniper events from JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Stream pool and trade events",
		ArgsUsage: "[subject ...]",
		Description: `Subscribe to events published to the POOLSNIPER JetStream stream.

Subjects default to every sniper subject:
  pools.detected   every classified pool creation
  pools.qualified  every qualification verdict
  trades.closed    every completed sell

Example:
  poolsniper nats subscribe trades.closed --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "poolsniper-cli",
			},
			&cli.BoolFlag{
				Name:  "new-only",
				Usage: "Skip messages already in the stream",
			},
		},
		Action: func(c *cli.Context) error {
			subjects := c.Args().Slice()
			if len(subjects) == 0 {
				subjects = natspkg.StreamSubjects
			}
			for _, s := range subjects {
				if !knownSubject(s) {
					return fmt.Errorf("unknown subject %q", s)
				}
			}

			return streamEvents(c, subjects)
		},
	}
}

func knownSubject(s string) bool {
	switch s {
	case natspkg.SubjectPoolDetected, natspkg.SubjectPoolQualified, natspkg.SubjectTradeClosed:
		return true
	}
	for _, pattern := range natspkg.StreamSubjects {
		if s == pattern {
			return true
		}
	}
	return false
}

// streamEvents connects to NATS and prints events until interrupted.
func streamEvents(c *cli.Context, subjects []string) error {
	natsURL := c.String("nats-url")
	jsonOutput := c.Bool("json")
	out := c.App.Writer

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubjects: subjects,
		AckPolicy:      jetstream.AckExplicitPolicy,
	}
	if c.Bool("new-only") {
		consumerConfig.DeliverPolicy = jetstream.DeliverNewPolicy
	}
	if c.Bool("durable") {
		consumerConfig.Durable = c.String("consumer-name")
		consumerConfig.Name = c.String("consumer-name")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if !jsonOutput {
		fmt.Fprintf(out, "📡 Subscribing to: %v\n", subjects)
		fmt.Fprintf(out, "   NATS: %s\n", natsURL)
		fmt.Fprintf(out, "\nWaiting for events... (Ctrl-C to exit)\n\n")
	}

	msgChan := make(chan jetstream.Msg, 10)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	defer consumeCtx.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			count++
			if err := printEvent(c, msg.Subject(), msg.Data()); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "Error parsing event on %s: %v\n", msg.Subject(), err)
			}
			msg.Ack()

		case <-ctx.Done():
			if !jsonOutput {
				fmt.Fprintf(out, "\n\n✅ Received %d events\n", count)
			}
			return nil
		}
	}
}

// printEvent renders one message according to its subject.
func printEvent(c *cli.Context, subject string, data []byte) error {
	out := c.App.Writer
	if c.Bool("json") {
		fmt.Fprintln(out, string(data))
		return nil
	}

	switch subject {
	case natspkg.SubjectPoolDetected:
		var e natspkg.PoolDetectedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		fmt.Fprintf(out, "[detected]  pool=%s coin=%s pc=%s slot=%d created=%s\n",
			e.PoolID, e.CoinMint, e.PCMint, e.Slot, e.CreatedAt.Format(time.RFC3339))
	case natspkg.SubjectPoolQualified:
		var e natspkg.PoolQualifiedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		verdict := "rejected"
		if e.Suitable {
			verdict = "accepted"
		}
		fmt.Fprintf(out, "[qualified] pool=%s %s rule=%s reason=%q\n", e.PoolID, verdict, e.Rule, e.Reason)
	case natspkg.SubjectTradeClosed:
		var e natspkg.TradeClosedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		fmt.Fprintf(out, "[trade]     mint=%s reason=%s pnl=%+.6f SOL held=%s\n",
			e.Mint, e.Reason, e.ProfitLoss, e.HoldDuration().Round(time.Second))
	default:
		fmt.Fprintf(out, "[%s] %s\n", subject, string(data))
	}
	return nil
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the POOLSNIPER JetStream stream",
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, info)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(out, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(out, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(out, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(out, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(out, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(out, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(out, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(out, "Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
