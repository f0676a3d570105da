package qualifier

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/brojonat/poolsniper/service/detector"
	"github.com/brojonat/poolsniper/service/metrics"
	"github.com/brojonat/poolsniper/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// Rule names a qualification check. They double as metric labels.
type Rule string

const (
	RuleAge       Rule = "age"
	RulePairing   Rule = "pairing"
	RuleFreeze    Rule = "freeze_authority"
	RuleLiquidity Rule = "liquidity"
	RuleAccepted  Rule = "accepted"
)

// Verdict is the outcome of qualifying one pool.
type Verdict struct {
	Suitable bool               `json:"suitable"`
	Reason   string             `json:"reason"`
	Rule     Rule               `json:"rule"`
	Mint     solanago.PublicKey `json:"mint,omitempty"`
	PoolID   solanago.PublicKey `json:"pool_id,omitempty"`
}

// MintInfoSource looks up SPL mint state.
type MintInfoSource interface {
	GetMintInfo(ctx context.Context, mint solanago.PublicKey) (*solana.MintInfo, error)
}

// ReserveSource looks up pool vault balances.
type ReserveSource interface {
	GetPoolReserves(ctx context.Context, poolID solanago.PublicKey) (*solana.PoolReserves, error)
}

// Options holds the qualification thresholds.
type Options struct {
	MaxPoolAge    time.Duration
	MinLiquidity  float64
	NativeMint    solanago.PublicKey
	LookupTimeout time.Duration
}

// DefaultOptions returns a 5 minute age ceiling and a 10 SOL liquidity floor.
func DefaultOptions() Options {
	return Options{
		MaxPoolAge:    5 * time.Minute,
		MinLiquidity:  10,
		NativeMint:    solana.WrappedSOLMint,
		LookupTimeout: 10 * time.Second,
	}
}

// Qualifier decides whether a detected pool is worth buying into.
// Rules run cheapest first and stop at the first failure.
type Qualifier struct {
	opts     Options
	mints    MintInfoSource
	reserves ReserveSource
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Qualifier.
func New(opts Options, mints MintInfoSource, reserves ReserveSource, m *metrics.Metrics, logger *slog.Logger) *Qualifier {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.NativeMint.IsZero() {
		opts.NativeMint = solana.WrappedSOLMint
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 10 * time.Second
	}
	return &Qualifier{
		opts:     opts,
		mints:    mints,
		reserves: reserves,
		metrics:  m,
		logger:   logger.With("component", "qualifier"),
		now:      time.Now,
	}
}

// WithClock overrides the clock used for the age check.
func (q *Qualifier) WithClock(now func() time.Time) *Qualifier {
	q.now = now
	return q
}

// Evaluate runs the rules against event and returns the verdict.
func (q *Qualifier) Evaluate(ctx context.Context, event detector.PoolEvent) Verdict {
	v := q.evaluate(ctx, event)
	q.metrics.RecordVerdict(v.Suitable, string(v.Rule))

	logger := q.logger.With(
		"pool", event.PoolID.String(),
		"signature", event.Signature.String(),
		"rule", v.Rule,
	)
	if v.Suitable {
		logger.InfoContext(ctx, "pool qualified", "mint", v.Mint.String())
	} else {
		logger.InfoContext(ctx, "pool rejected", "reason", v.Reason)
	}
	return v
}

func (q *Qualifier) evaluate(ctx context.Context, event detector.PoolEvent) Verdict {
	age := q.now().Sub(event.Timestamp)
	if age > q.opts.MaxPoolAge {
		return reject(RuleAge, "pool age %s exceeds %s", age.Truncate(time.Second), q.opts.MaxPoolAge)
	}

	candidate, ok := q.candidateMint(event)
	if !ok {
		return reject(RulePairing, "pool %s/%s is not paired with exactly one %s",
			event.CoinMint, event.PCMint, q.opts.NativeMint)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, q.opts.LookupTimeout)
	defer cancel()

	info, err := q.mints.GetMintInfo(lookupCtx, candidate)
	if err != nil {
		return reject(RuleFreeze, "mint info for %s unavailable: %v", candidate, err)
	}
	if info.FreezeAuthority != nil {
		return reject(RuleFreeze, "mint %s has freeze authority %s", candidate, info.FreezeAuthority)
	}

	reserves, err := q.reserves.GetPoolReserves(lookupCtx, event.PoolID)
	if err != nil {
		return reject(RuleLiquidity, "reserves for pool %s unavailable: %v", event.PoolID, err)
	}
	native := reserves.NativeReserve
	if math.IsNaN(native) || math.IsInf(native, 0) {
		return reject(RuleLiquidity, "reserves for pool %s are not a usable amount", event.PoolID)
	}
	if native < q.opts.MinLiquidity {
		return reject(RuleLiquidity, "native reserve %.4f below minimum %.4f", native, q.opts.MinLiquidity)
	}

	return Verdict{
		Suitable: true,
		Reason:   fmt.Sprintf("age %s, native reserve %.4f", age.Truncate(time.Second), native),
		Rule:     RuleAccepted,
		Mint:     candidate,
		PoolID:   event.PoolID,
	}
}

// candidateMint returns the non-native mint when exactly one side is native.
func (q *Qualifier) candidateMint(event detector.PoolEvent) (solanago.PublicKey, bool) {
	coin, pc := event.Mints()
	native := q.opts.NativeMint
	switch {
	case coin.Equals(native) && !pc.Equals(native) && !pc.IsZero():
		return pc, true
	case pc.Equals(native) && !coin.Equals(native) && !coin.IsZero():
		return coin, true
	default:
		return solanago.PublicKey{}, false
	}
}

func reject(rule Rule, format string, args ...any) Verdict {
	return Verdict{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}
