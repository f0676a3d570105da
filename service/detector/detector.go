package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/poolsniper/service/metrics"
	"github.com/brojonat/poolsniper/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"golang.org/x/sync/semaphore"
)

// ChangeFeed streams account changes for a program.
type ChangeFeed interface {
	SubscribeProgramChanges(ctx context.Context, program solanago.PublicKey, notify func(solana.AccountChange)) (solana.Subscription, error)
}

// TransactionSource resolves the transaction behind an account change.
type TransactionSource interface {
	LatestSignature(ctx context.Context, account solanago.PublicKey) (solanago.Signature, error)
	GetTransaction(ctx context.Context, sig solanago.Signature) (*solana.TransactionDetails, error)
}

// Notification outcomes, used as metric labels.
const (
	outcomePoolEvent    = "pool_event"
	outcomeIgnored      = "ignored"
	outcomeDuplicate    = "duplicate"
	outcomeLookupFailed = "lookup_failed"
	outcomeDropped      = "dropped"
)

// Options configures a Detector.
type Options struct {
	Program       solanago.PublicKey
	Concurrency   int64
	LookupTimeout time.Duration
	SeenLimit     int
}

// Detector turns program account changes into PoolEvents.
type Detector struct {
	opts       Options
	feed       ChangeFeed
	txs        TransactionSource
	classifier Classifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	sem  *semaphore.Weighted
	seen *signatureSet

	mu      sync.Mutex
	sub     solana.Subscription
	cancel  context.CancelFunc
	handler Handler
	wg      sync.WaitGroup
}

// New creates a detector. A nil classifier defaults to RaydiumInitClassifier for opts.Program.
func New(opts Options, feed ChangeFeed, txs TransactionSource, classifier Classifier, m *metrics.Metrics, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 10 * time.Second
	}
	if opts.SeenLimit <= 0 {
		opts.SeenLimit = 4096
	}
	if classifier == nil {
		classifier = NewRaydiumInitClassifier(opts.Program)
	}
	return &Detector{
		opts:       opts,
		feed:       feed,
		txs:        txs,
		classifier: classifier,
		metrics:    m,
		logger:     logger.With("component", "detector"),
		now:        time.Now,
		sem:        semaphore.NewWeighted(opts.Concurrency),
		seen:       newSignatureSet(opts.SeenLimit),
	}
}

// WithClock overrides the receipt-time source.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Subscribe starts delivering pool events to handler. Only one subscription may
// be active; a second call logs a warning and does nothing.
func (d *Detector) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("detector: nil handler")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sub != nil {
		d.logger.WarnContext(ctx, "subscription already active, ignoring subscribe",
			"program", d.opts.Program.String(),
		)
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	d.handler = handler
	sub, err := d.feed.SubscribeProgramChanges(subCtx, d.opts.Program, func(change solana.AccountChange) {
		d.onChange(subCtx, change)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", d.opts.Program, err)
	}
	d.sub = sub
	d.cancel = cancel
	d.metrics.SetSubscriptionActive(true)

	d.logger.InfoContext(ctx, "detector subscribed",
		"program", d.opts.Program.String(),
		"concurrency", d.opts.Concurrency,
	)
	return nil
}

// Unsubscribe cancels the active subscription and waits for in-flight
// notifications. Without an active subscription it does nothing.
func (d *Detector) Unsubscribe() {
	d.mu.Lock()
	sub, cancel := d.sub, d.cancel
	d.sub, d.cancel = nil, nil
	d.mu.Unlock()

	if sub == nil {
		return
	}
	cancel()
	sub.Unsubscribe()
	d.wg.Wait()
	d.metrics.SetSubscriptionActive(false)
	d.logger.Info("detector unsubscribed", "program", d.opts.Program.String())
}

// Active reports whether a subscription is running.
func (d *Detector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sub != nil
}

// onChange hands the notification to a worker once a concurrency slot is free.
func (d *Detector) onChange(ctx context.Context, change solana.AccountChange) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.metrics.RecordNotification(outcomeDropped)
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		d.metrics.RecordNotification(d.process(ctx, change))
	}()
}

// process classifies one notification and returns its outcome label.
func (d *Detector) process(ctx context.Context, change solana.AccountChange) string {
	lookupCtx, cancel := context.WithTimeout(ctx, d.opts.LookupTimeout)
	defer cancel()

	logger := d.logger.With("account", change.Account.String(), "slot", change.Slot)

	sig, err := d.txs.LatestSignature(lookupCtx, change.Account)
	if err != nil {
		logger.WarnContext(ctx, "failed to resolve signature, dropping notification", "error", err)
		return outcomeLookupFailed
	}
	claimed, err := d.seen.claim(lookupCtx, sig)
	if err != nil {
		logger.WarnContext(ctx, "gave up waiting for in-flight signature, dropping notification",
			"signature", sig.String(),
			"error", err,
		)
		return outcomeLookupFailed
	}
	if !claimed {
		return outcomeDuplicate
	}

	tx, err := d.txs.GetTransaction(lookupCtx, sig)
	if err != nil {
		d.seen.release(sig)
		logger.WarnContext(ctx, "failed to fetch transaction, dropping notification",
			"signature", sig.String(),
			"error", err,
		)
		return outcomeLookupFailed
	}
	d.seen.complete(sig)

	event, ok := d.classifier.Classify(tx)
	if !ok {
		return outcomeIgnored
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = change.ReceivedAt
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now().UTC()
	}

	d.metrics.RecordPoolEvent()
	logger.InfoContext(ctx, "pool initialization detected",
		"pool", event.PoolID.String(),
		"signature", sig.String(),
		"coin_mint", event.CoinMint.String(),
		"pc_mint", event.PCMint.String(),
	)

	d.mu.Lock()
	handler := d.handler
	d.mu.Unlock()
	handler(event)
	return outcomePoolEvent
}

// signatureSet remembers recently processed signatures up to a fixed size.
// A signature being fetched is held in flight so that concurrent notifications
// for it wait for the outcome instead of being dropped.
type signatureSet struct {
	mu       sync.Mutex
	limit    int
	order    []solanago.Signature
	members  map[solanago.Signature]struct{}
	inflight map[solanago.Signature]chan struct{}
}

func newSignatureSet(limit int) *signatureSet {
	return &signatureSet{
		limit:    limit,
		members:  make(map[solanago.Signature]struct{}, limit),
		inflight: make(map[solanago.Signature]chan struct{}),
	}
}

// claim marks sig in flight and reports true, or reports false once sig has
// been processed. While another caller holds sig, claim waits for it to settle.
func (s *signatureSet) claim(ctx context.Context, sig solanago.Signature) (bool, error) {
	for {
		s.mu.Lock()
		if _, ok := s.members[sig]; ok {
			s.mu.Unlock()
			return false, nil
		}
		done, busy := s.inflight[sig]
		if !busy {
			s.inflight[sig] = make(chan struct{})
			s.mu.Unlock()
			return true, nil
		}
		s.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// complete records sig as processed and wakes any waiters.
func (s *signatureSet) complete(sig solanago.Signature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleLocked(sig)
	if _, ok := s.members[sig]; ok {
		return
	}
	s.members[sig] = struct{}{}
	s.order = append(s.order, sig)
	for len(s.order) > s.limit {
		delete(s.members, s.order[0])
		s.order = s.order[1:]
	}
}

// release drops an in-flight claim so the next caller can retry sig.
func (s *signatureSet) release(sig solanago.Signature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleLocked(sig)
}

func (s *signatureSet) settleLocked(sig solanago.Signature) {
	if done, ok := s.inflight[sig]; ok {
		close(done)
		delete(s.inflight, sig)
	}
}

func (s *signatureSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}
