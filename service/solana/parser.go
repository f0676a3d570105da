package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Well-known Solana program IDs and mints
var (
	// TokenProgramID is the SPL Token program
	TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// Token2022ProgramID is the Token Extensions program (Token-2022)
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

	// RaydiumAMMV4ProgramID is the Raydium liquidity pool v4 program
	RaydiumAMMV4ProgramID = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")

	// WrappedSOLMint is the native SOL wrapper mint
	WrappedSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

// parseTransactionResult flattens a GetTransaction response into TransactionDetails.
func parseTransactionResult(sig solana.Signature, result *rpc.GetTransactionResult) (*TransactionDetails, error) {
	if result == nil || result.Transaction == nil {
		return nil, fmt.Errorf("transaction %s: %w", sig, ErrNotFound)
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	details := &TransactionDetails{
		Signature:    sig,
		Slot:         result.Slot,
		Instructions: tx.Message.Instructions,
	}
	if result.BlockTime != nil {
		details.BlockTime = result.BlockTime.Time().UTC()
	}

	keys := make(solana.PublicKeySlice, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	if result.Meta != nil {
		// Versioned transactions index lookup-table addresses after the static keys.
		keys = append(keys, result.Meta.LoadedAddresses.Writable...)
		keys = append(keys, result.Meta.LoadedAddresses.ReadOnly...)
		details.LogMessages = result.Meta.LogMessages
		details.Failed = result.Meta.Err != nil
	}
	details.AccountKeys = keys

	for i, ix := range details.Instructions {
		if int(ix.ProgramIDIndex) >= len(keys) {
			return nil, fmt.Errorf("instruction %d: program index %d out of range (%d keys)", i, ix.ProgramIDIndex, len(keys))
		}
	}

	return details, nil
}
