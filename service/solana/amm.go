package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Raydium AMM v4 pool state layout. The account is 752 bytes: 32 u64 parameters,
// 80 bytes of swap accumulators, then the pubkeys below.
const (
	ammV4AccountSize   = 752
	ammV4BaseVaultOff  = 336
	ammV4QuoteVaultOff = 368
	ammV4BaseMintOff   = 400
	ammV4QuoteMintOff  = 432
	ammV4LPMintOff     = 464
	ammV4OpenOrdersOff = 496
	ammV4MarketIDOff   = 528
)

// AMMPoolState holds the fields of an AMM v4 pool account needed for pricing.
type AMMPoolState struct {
	BaseVault  solana.PublicKey
	QuoteVault solana.PublicKey
	BaseMint   solana.PublicKey
	QuoteMint  solana.PublicKey
	LPMint     solana.PublicKey
	OpenOrders solana.PublicKey
	MarketID   solana.PublicKey
}

// DecodeAMMPoolState decodes the fixed-offset fields of an AMM v4 pool account.
func DecodeAMMPoolState(data []byte) (*AMMPoolState, error) {
	if len(data) < ammV4AccountSize {
		return nil, fmt.Errorf("%w: pool account is %d bytes, want %d", ErrUnavailable, len(data), ammV4AccountSize)
	}
	key := func(off int) solana.PublicKey {
		return solana.PublicKeyFromBytes(data[off : off+solana.PublicKeyLength])
	}
	state := &AMMPoolState{
		BaseVault:  key(ammV4BaseVaultOff),
		QuoteVault: key(ammV4QuoteVaultOff),
		BaseMint:   key(ammV4BaseMintOff),
		QuoteMint:  key(ammV4QuoteMintOff),
		LPMint:     key(ammV4LPMintOff),
		OpenOrders: key(ammV4OpenOrdersOff),
		MarketID:   key(ammV4MarketIDOff),
	}
	if state.BaseVault.IsZero() || state.QuoteVault.IsZero() {
		return nil, fmt.Errorf("%w: pool account has empty vaults", ErrUnavailable)
	}
	return state, nil
}

// NativeSide reports which vault holds wrapped SOL.
// It returns the native vault, the other vault, and the two mints in the same order.
func (s *AMMPoolState) NativeSide() (nativeVault, otherVault, nativeMint, otherMint solana.PublicKey, err error) {
	switch {
	case s.QuoteMint.Equals(WrappedSOLMint) && !s.BaseMint.Equals(WrappedSOLMint):
		return s.QuoteVault, s.BaseVault, s.QuoteMint, s.BaseMint, nil
	case s.BaseMint.Equals(WrappedSOLMint) && !s.QuoteMint.Equals(WrappedSOLMint):
		return s.BaseVault, s.QuoteVault, s.BaseMint, s.QuoteMint, nil
	default:
		err = fmt.Errorf("%w: pool is not paired with wrapped SOL", ErrUnavailable)
		return
	}
}
