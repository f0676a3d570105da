package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

// Subscription is a cancellable change feed.
type Subscription interface {
	Unsubscribe()
}

// programStream is one live program subscription.
type programStream interface {
	Recv(ctx context.Context) (*ws.ProgramResult, error)
	Close()
}

// ProgramSubscriber streams program account changes over the RPC websocket.
// Dropped connections are redialed with capped exponential backoff until Unsubscribe.
type ProgramSubscriber struct {
	wsURL      string
	commitment rpc.CommitmentType
	logger     *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	dial  func(ctx context.Context, program solana.PublicKey) (programStream, error)
	after func(d time.Duration) <-chan time.Time
}

// NewProgramSubscriber creates a subscriber for the websocket endpoint wsURL.
func NewProgramSubscriber(wsURL string, logger *slog.Logger) *ProgramSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ProgramSubscriber{
		wsURL:      wsURL,
		commitment: rpc.CommitmentConfirmed,
		logger:     logger.With("component", "program_subscriber"),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		after:      time.After,
	}
	s.dial = s.dialWebsocket
	return s
}

// WebsocketURL derives the websocket endpoint from an HTTP RPC URL.
func WebsocketURL(rpcURL string) string {
	switch {
	case strings.HasPrefix(rpcURL, "https://"):
		return "wss://" + strings.TrimPrefix(rpcURL, "https://")
	case strings.HasPrefix(rpcURL, "http://"):
		return "ws://" + strings.TrimPrefix(rpcURL, "http://")
	default:
		return rpcURL
	}
}

type programSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *programSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// SubscribeProgramChanges dials the websocket and calls notify for every account
// change owned by program. The first dial happens before returning so that a bad
// endpoint is reported to the caller.
func (s *ProgramSubscriber) SubscribeProgramChanges(
	ctx context.Context,
	program solana.PublicKey,
	notify func(AccountChange),
) (Subscription, error) {
	stream, err := s.dial(ctx, program)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	handle := &programSubscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(handle.done)
		backoff := s.minBackoff
		for {
			err := s.pump(ctx, stream, notify)
			stream.Close()
			if ctx.Err() != nil {
				return
			}

			s.logger.WarnContext(ctx, "program subscription dropped, reconnecting",
				"program", program.String(),
				"backoff", backoff,
				"error", err,
			)
			for {
				select {
				case <-ctx.Done():
					return
				case <-s.after(backoff):
				}
				backoff = min(backoff*2, s.maxBackoff)

				stream, err = s.dial(ctx, program)
				if err == nil {
					backoff = s.minBackoff
					break
				}
				s.logger.WarnContext(ctx, "program subscription redial failed",
					"program", program.String(),
					"error", err,
				)
			}
		}
	}()

	s.logger.InfoContext(ctx, "subscribed to program changes", "program", program.String())
	return handle, nil
}

type wsProgramStream struct {
	client *ws.Client
	sub    *ws.ProgramSubscription
}

func (w *wsProgramStream) Recv(ctx context.Context) (*ws.ProgramResult, error) {
	return w.sub.Recv(ctx)
}

func (w *wsProgramStream) Close() {
	w.sub.Unsubscribe()
	w.client.Close()
}

func (s *ProgramSubscriber) dialWebsocket(ctx context.Context, program solana.PublicKey) (programStream, error) {
	client, err := ws.Connect(ctx, s.wsURL)
	if err != nil {
		return nil, fmt.Errorf("connect websocket: %w", err)
	}
	sub, err := client.ProgramSubscribe(program, s.commitment)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("program subscribe: %w", err)
	}
	return &wsProgramStream{client: client, sub: sub}, nil
}

// pump forwards notifications until the stream fails or ctx is cancelled.
func (s *ProgramSubscriber) pump(ctx context.Context, stream programStream, notify func(AccountChange)) error {
	for {
		res, err := stream.Recv(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if res == nil {
			continue
		}
		notify(AccountChange{
			Account:    res.Value.Pubkey,
			Slot:       res.Context.Slot,
			ReceivedAt: time.Now().UTC(),
		})
	}
}
