package detector

import (
	"strings"

	"github.com/brojonat/poolsniper/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// Classifier decides whether a transaction initialized a pool and extracts its fields.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(tx *solana.TransactionDetails) (PoolEvent, bool)
}

// Account positions in the AMM v4 initialize2 instruction.
const (
	initPoolIndex     = 4
	initLPMintIndex   = 7
	initCoinMintIndex = 8
	initPCMintIndex   = 9
	initMarketIndex   = 16
	initMinAccounts   = initMarketIndex + 1
)

// InitializeMarker is the log line fragment the AMM program emits on pool creation.
const InitializeMarker = "initialize2"

// RaydiumInitClassifier matches AMM v4 initialize2 instructions by their log
// marker and reads the pool fields from fixed account positions.
// It is a heuristic: downstream qualification re-checks everything it reports.
type RaydiumInitClassifier struct {
	Program solanago.PublicKey
	Marker  string
}

// NewRaydiumInitClassifier returns a classifier for the given AMM program.
func NewRaydiumInitClassifier(program solanago.PublicKey) *RaydiumInitClassifier {
	return &RaydiumInitClassifier{Program: program, Marker: InitializeMarker}
}

func (c *RaydiumInitClassifier) Classify(tx *solana.TransactionDetails) (PoolEvent, bool) {
	if tx == nil || tx.Failed || !c.hasMarker(tx.LogMessages) {
		return PoolEvent{}, false
	}

	for _, ix := range tx.Instructions {
		program, ok := tx.Account(ix.ProgramIDIndex)
		if !ok || !program.Equals(c.Program) {
			continue
		}
		if len(ix.Accounts) < initMinAccounts {
			continue
		}

		var keys [initMinAccounts]solanago.PublicKey
		resolved := true
		for _, pos := range []int{initPoolIndex, initLPMintIndex, initCoinMintIndex, initPCMintIndex, initMarketIndex} {
			key, ok := tx.Account(ix.Accounts[pos])
			if !ok {
				resolved = false
				break
			}
			keys[pos] = key
		}
		if !resolved {
			continue
		}

		return PoolEvent{
			PoolID:    keys[initPoolIndex],
			Signature: tx.Signature,
			Slot:      tx.Slot,
			Timestamp: tx.BlockTime,
			CoinMint:  keys[initCoinMintIndex],
			PCMint:    keys[initPCMintIndex],
			LPMint:    keys[initLPMintIndex],
			MarketID:  keys[initMarketIndex],
		}, true
	}
	return PoolEvent{}, false
}

func (c *RaydiumInitClassifier) hasMarker(logs []string) bool {
	marker := c.Marker
	if marker == "" {
		marker = InitializeMarker
	}
	for _, line := range logs {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
