package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/brojonat/poolsniper/service/metrics"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client provides the chain lookups the sniper consumes: causal transactions,
// mint state, pool reserves and spot prices. All calls are bounded by ctx.
type Client struct {
	rpc     RPCClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a new Solana client.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:     rpcClient,
		logger:  logger.With("component", "solana_client"),
		metrics: m,
	}
}

// observe records an RPC call outcome.
func (c *Client) observe(method string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, time.Since(start).Seconds())
}

// LatestSignature returns the most recent transaction signature touching account.
func (c *Client) LatestSignature(ctx context.Context, account solana.PublicKey) (solana.Signature, error) {
	limit := 1
	start := time.Now()
	sigs, err := c.rpc.GetSignaturesForAddress(ctx, account, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	c.observe("GetSignaturesForAddress", start, err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("get signatures for %s: %w", account, err)
	}
	if len(sigs) == 0 || sigs[0] == nil {
		return solana.Signature{}, fmt.Errorf("signatures for %s: %w", account, ErrNotFound)
	}
	return sigs[0].Signature, nil
}

// GetTransaction fetches and flattens a confirmed transaction.
func (c *Client) GetTransaction(ctx context.Context, sig solana.Signature) (*TransactionDetails, error) {
	maxVersion := uint64(0)
	start := time.Now()
	result, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	c.observe("GetTransaction", start, err)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("transaction %s: %w", sig, ErrNotFound)
		}
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}

	details, err := parseTransactionResult(sig, result)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "fetched transaction",
		"signature", sig.String(),
		"slot", details.Slot,
		"instructions", len(details.Instructions),
		"logs", len(details.LogMessages),
	)
	return details, nil
}

// GetMintInfo fetches and decodes an SPL token mint account.
func (c *Client) GetMintInfo(ctx context.Context, mint solana.PublicKey) (*MintInfo, error) {
	data, err := c.accountData(ctx, mint)
	if err != nil {
		return nil, err
	}
	info, err := decodeMint(mint, data)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// mintSize is the length of the base SPL mint layout.
const mintSize = 82

// decodeMint decodes the SPL mint prefix. Token-2022 extensions after it are ignored.
func decodeMint(mint solana.PublicKey, data []byte) (*MintInfo, error) {
	if len(data) < mintSize {
		return nil, fmt.Errorf("%w: mint %s account is %d bytes", ErrUnavailable, mint, len(data))
	}
	var decoded token.Mint
	if err := decoded.UnmarshalWithDecoder(bin.NewBinDecoder(data[:mintSize])); err != nil {
		return nil, fmt.Errorf("decode mint %s: %w", mint, err)
	}
	if !decoded.IsInitialized {
		return nil, fmt.Errorf("%w: mint %s is not initialized", ErrUnavailable, mint)
	}
	return &MintInfo{
		Mint:            mint,
		MintAuthority:   decoded.MintAuthority,
		FreezeAuthority: decoded.FreezeAuthority,
		Decimals:        decoded.Decimals,
		Supply:          decoded.Supply,
	}, nil
}

// GetPoolReserves returns the SOL and token vault balances of an AMM v4 pool.
func (c *Client) GetPoolReserves(ctx context.Context, poolID solana.PublicKey) (*PoolReserves, error) {
	data, err := c.accountData(ctx, poolID)
	if err != nil {
		return nil, err
	}
	state, err := DecodeAMMPoolState(data)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", poolID, err)
	}
	nativeVault, otherVault, nativeMint, otherMint, err := state.NativeSide()
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", poolID, err)
	}

	native, err := c.tokenBalance(ctx, nativeVault)
	if err != nil {
		return nil, err
	}
	other, err := c.tokenBalance(ctx, otherVault)
	if err != nil {
		return nil, err
	}

	return &PoolReserves{
		NativeReserve: native,
		OtherReserve:  other,
		NativeMint:    nativeMint,
		OtherMint:     otherMint,
	}, nil
}

// GetCurrentPrice returns the token's price in SOL from the pool's reserve ratio.
func (c *Client) GetCurrentPrice(ctx context.Context, poolID solana.PublicKey) (float64, error) {
	reserves, err := c.GetPoolReserves(ctx, poolID)
	if err != nil {
		return 0, err
	}
	return SpotPrice(reserves)
}

// SpotPrice is the native reserve divided by the token reserve.
func SpotPrice(r *PoolReserves) (float64, error) {
	if r == nil || !(r.NativeReserve > 0) || !(r.OtherReserve > 0) {
		return 0, fmt.Errorf("%w: empty reserves", ErrUnavailable)
	}
	price := r.NativeReserve / r.OtherReserve
	if math.IsInf(price, 0) || math.IsNaN(price) || price <= 0 {
		return 0, fmt.Errorf("%w: price %v", ErrUnavailable, price)
	}
	return price, nil
}

func (c *Client) accountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	start := time.Now()
	result, err := c.rpc.GetAccountInfo(ctx, account)
	c.observe("GetAccountInfo", start, err)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("account %s: %w", account, ErrNotFound)
		}
		return nil, fmt.Errorf("get account %s: %w", account, err)
	}
	if result == nil || result.Value == nil || result.Value.Data == nil {
		return nil, fmt.Errorf("account %s: %w", account, ErrNotFound)
	}
	return result.Value.Data.GetBinary(), nil
}

// tokenBalance returns a token account balance in UI units.
func (c *Client) tokenBalance(ctx context.Context, account solana.PublicKey) (float64, error) {
	start := time.Now()
	result, err := c.rpc.GetTokenAccountBalance(ctx, account)
	c.observe("GetTokenAccountBalance", start, err)
	if err != nil {
		return 0, fmt.Errorf("get token balance %s: %w", account, err)
	}
	if result == nil || result.Value == nil {
		return 0, fmt.Errorf("token balance %s: %w", account, ErrUnavailable)
	}
	raw, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: token balance %s amount %q", ErrUnavailable, account, result.Value.Amount)
	}
	return float64(raw) / math.Pow10(int(result.Value.Decimals)), nil
}
