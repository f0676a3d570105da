package solana

import (
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrNotFound is returned when an account or transaction does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is returned when data exists but cannot yield a usable value.
	ErrUnavailable = errors.New("unavailable")
)

// TransactionDetails is the part of a confirmed transaction the detector classifies.
// AccountKeys includes addresses loaded from lookup tables, writable first.
type TransactionDetails struct {
	Signature    solana.Signature
	Slot         uint64
	BlockTime    time.Time // zero when the node did not report one
	AccountKeys  solana.PublicKeySlice
	Instructions []solana.CompiledInstruction
	LogMessages  []string
	Failed       bool
}

// Account returns the key at index, or false when index is out of range.
func (t *TransactionDetails) Account(index uint16) (solana.PublicKey, bool) {
	if int(index) >= len(t.AccountKeys) {
		return solana.PublicKey{}, false
	}
	return t.AccountKeys[index], true
}

// MintInfo is the decoded state of an SPL token mint.
type MintInfo struct {
	Mint            solana.PublicKey
	MintAuthority   *solana.PublicKey
	FreezeAuthority *solana.PublicKey
	Decimals        uint8
	Supply          uint64
}

// PoolReserves are the pool vault balances in UI units.
type PoolReserves struct {
	NativeReserve float64
	OtherReserve  float64
	NativeMint    solana.PublicKey
	OtherMint     solana.PublicKey
}

// AccountChange is one program account notification.
type AccountChange struct {
	Account    solana.PublicKey
	Slot       uint64
	ReceivedAt time.Time
}
