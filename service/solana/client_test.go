package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
type mockRPCClient struct {
	signatures   []*rpc.TransactionSignature
	sigErr       error
	transactions map[solana.Signature]*rpc.GetTransactionResult
	txErr        error
	accounts     map[solana.PublicKey][]byte
	balances     map[solana.PublicKey]*rpc.UiTokenAmount
}

func (m *mockRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	if m.sigErr != nil {
		return nil, m.sigErr
	}
	return m.signatures, nil
}

func (m *mockRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	if m.txErr != nil {
		return nil, m.txErr
	}
	result, ok := m.transactions[signature]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return result, nil
}

func (m *mockRPCClient) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	data, ok := m.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{
		Value: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(data)},
	}, nil
}

func (m *mockRPCClient) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (*rpc.GetTokenAccountBalanceResult, error) {
	amount, ok := m.balances[account]
	if !ok {
		return nil, errors.New("account not found")
	}
	return &rpc.GetTokenAccountBalanceResult{Value: amount}, nil
}

func newTestClient(mock *mockRPCClient) *Client {
	return NewClient(mock, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLatestSignature(t *testing.T) {
	sig := solana.MustSignatureFromBase58("5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW")
	account := solana.MustPublicKeyFromBase58("DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK")

	client := newTestClient(&mockRPCClient{
		signatures: []*rpc.TransactionSignature{{Signature: sig, Slot: 10}},
	})
	got, err := client.LatestSignature(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, sig, got)

	empty := newTestClient(&mockRPCClient{})
	_, err = empty.LatestSignature(context.Background(), account)
	assert.ErrorIs(t, err, ErrNotFound)

	failing := newTestClient(&mockRPCClient{sigErr: errors.New("429 Too Many Requests")})
	_, err = failing.LatestSignature(context.Background(), account)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

// transactionResult builds a GetTransactionResult the way a node would return it.
func transactionResult(t *testing.T, tx *solana.Transaction, logs []string, loaded []solana.PublicKey) *rpc.GetTransactionResult {
	t.Helper()

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	writable := make([]string, 0, len(loaded))
	for _, k := range loaded {
		writable = append(writable, k.String())
	}
	logsJSON, err := json.Marshal(logs)
	require.NoError(t, err)
	writableJSON, err := json.Marshal(writable)
	require.NoError(t, err)

	body := fmt.Sprintf(`{
		"slot": 250000000,
		"blockTime": 1700000000,
		"transaction": [%q, "base64"],
		"meta": {
			"err": null,
			"fee": 5000,
			"logMessages": %s,
			"loadedAddresses": {"writable": %s, "readonly": []}
		}
	}`, base64.StdEncoding.EncodeToString(raw), logsJSON, writableJSON)

	var result rpc.GetTransactionResult
	require.NoError(t, json.Unmarshal([]byte(body), &result))
	return &result
}

func TestGetTransaction(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()
	lookedUp := solana.NewWallet().PublicKey()
	sig := solana.MustSignatureFromBase58("5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW")

	tx := &solana.Transaction{
		Signatures: []solana.Signature{sig},
		Message: solana.Message{
			Header:      solana.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: solana.PublicKeySlice{payer, pool, RaydiumAMMV4ProgramID},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 2, Accounts: []uint16{0, 1}, Data: solana.Base58{1, 2, 3}},
			},
		},
	}
	logs := []string{
		"Program 675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8 invoke [1]",
		"Program log: initialize2: InitializeInstruction2 { nonce: 254 }",
	}

	mock := &mockRPCClient{transactions: map[solana.Signature]*rpc.GetTransactionResult{
		sig: transactionResult(t, tx, logs, []solana.PublicKey{lookedUp}),
	}}
	client := newTestClient(mock)

	details, err := client.GetTransaction(context.Background(), sig)
	require.NoError(t, err)

	assert.Equal(t, sig, details.Signature)
	assert.Equal(t, uint64(250000000), details.Slot)
	assert.Equal(t, int64(1700000000), details.BlockTime.Unix())
	assert.Equal(t, solana.PublicKeySlice{payer, pool, RaydiumAMMV4ProgramID, lookedUp}, details.AccountKeys)
	require.Len(t, details.Instructions, 1)
	assert.Equal(t, uint16(2), details.Instructions[0].ProgramIDIndex)
	assert.Equal(t, logs, details.LogMessages)
	assert.False(t, details.Failed)

	key, ok := details.Account(3)
	assert.True(t, ok)
	assert.Equal(t, lookedUp, key)
	_, ok = details.Account(4)
	assert.False(t, ok)

	other := solana.MustSignatureFromBase58("4ZKbLwP3KpYqRBgyUNVmvhSb6pJ6JZ5wMHGVXWdHYFYbRHPu5q3qsZgeLPHkpVRz1cWPYAjnYWwpuqhtjs3DWC9z")
	_, err = client.GetTransaction(context.Background(), other)
	assert.ErrorIs(t, err, ErrNotFound)
}

// mintData encodes an SPL mint account.
func mintData(mintAuthority, freezeAuthority *solana.PublicKey, supply uint64, decimals uint8) []byte {
	data := make([]byte, mintSize)
	if mintAuthority != nil {
		binary.LittleEndian.PutUint32(data[0:4], 1)
		copy(data[4:36], mintAuthority[:])
	}
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	data[45] = 1
	if freezeAuthority != nil {
		binary.LittleEndian.PutUint32(data[46:50], 1)
		copy(data[50:82], freezeAuthority[:])
	}
	return data
}

func TestGetMintInfo(t *testing.T) {
	revoked := solana.NewWallet().PublicKey()
	frozen := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()

	client := newTestClient(&mockRPCClient{accounts: map[solana.PublicKey][]byte{
		revoked: mintData(nil, nil, 1_000_000_000_000, 6),
		frozen:  append(mintData(&authority, &authority, 42, 9), make([]byte, 100)...),
	}})

	info, err := client.GetMintInfo(context.Background(), revoked)
	require.NoError(t, err)
	assert.Nil(t, info.FreezeAuthority)
	assert.Nil(t, info.MintAuthority)
	assert.Equal(t, uint8(6), info.Decimals)
	assert.Equal(t, uint64(1_000_000_000_000), info.Supply)

	info, err = client.GetMintInfo(context.Background(), frozen)
	require.NoError(t, err)
	require.NotNil(t, info.FreezeAuthority)
	assert.Equal(t, authority, *info.FreezeAuthority)
	assert.Equal(t, uint64(42), info.Supply)

	_, err = client.GetMintInfo(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecodeMintShortAccount(t *testing.T) {
	_, err := decodeMint(solana.NewWallet().PublicKey(), make([]byte, 40))
	assert.ErrorIs(t, err, ErrUnavailable)
}

// poolData encodes an AMM v4 pool account with the given vaults and mints.
func poolData(baseVault, quoteVault, baseMint, quoteMint solana.PublicKey) []byte {
	data := make([]byte, ammV4AccountSize)
	copy(data[ammV4BaseVaultOff:], baseVault[:])
	copy(data[ammV4QuoteVaultOff:], quoteVault[:])
	copy(data[ammV4BaseMintOff:], baseMint[:])
	copy(data[ammV4QuoteMintOff:], quoteMint[:])
	return data
}

func TestGetPoolReservesAndPrice(t *testing.T) {
	pool := solana.NewWallet().PublicKey()
	tokenMint := solana.NewWallet().PublicKey()
	baseVault := solana.NewWallet().PublicKey()
	quoteVault := solana.NewWallet().PublicKey()

	mock := &mockRPCClient{
		accounts: map[solana.PublicKey][]byte{
			pool: poolData(baseVault, quoteVault, tokenMint, WrappedSOLMint),
		},
		balances: map[solana.PublicKey]*rpc.UiTokenAmount{
			baseVault:  {Amount: "5000000000000", Decimals: 6},
			quoteVault: {Amount: "25000000000", Decimals: 9},
		},
	}
	client := newTestClient(mock)

	reserves, err := client.GetPoolReserves(context.Background(), pool)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, reserves.NativeReserve, 1e-9)
	assert.InDelta(t, 5_000_000.0, reserves.OtherReserve, 1e-6)
	assert.Equal(t, WrappedSOLMint, reserves.NativeMint)
	assert.Equal(t, tokenMint, reserves.OtherMint)

	price, err := client.GetCurrentPrice(context.Background(), pool)
	require.NoError(t, err)
	assert.InDelta(t, 5e-6, price, 1e-15)

	t.Run("unparseable balance", func(t *testing.T) {
		mock.balances[quoteVault] = &rpc.UiTokenAmount{Amount: "lots", Decimals: 9}
		_, err := client.GetPoolReserves(context.Background(), pool)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("pool without wrapped SOL", func(t *testing.T) {
		unpaired := solana.NewWallet().PublicKey()
		mock.accounts[unpaired] = poolData(baseVault, quoteVault, tokenMint, solana.NewWallet().PublicKey())
		_, err := client.GetPoolReserves(context.Background(), unpaired)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("truncated pool account", func(t *testing.T) {
		short := solana.NewWallet().PublicKey()
		mock.accounts[short] = make([]byte, 100)
		_, err := client.GetPoolReserves(context.Background(), short)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestSpotPrice(t *testing.T) {
	_, err := SpotPrice(nil)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = SpotPrice(&PoolReserves{NativeReserve: 10, OtherReserve: 0})
	assert.ErrorIs(t, err, ErrUnavailable)

	price, err := SpotPrice(&PoolReserves{NativeReserve: 10, OtherReserve: 4})
	require.NoError(t, err)
	assert.Equal(t, 2.5, price)
}

func TestNativeSideBaseIsSOL(t *testing.T) {
	baseVault := solana.NewWallet().PublicKey()
	quoteVault := solana.NewWallet().PublicKey()
	tokenMint := solana.NewWallet().PublicKey()

	state, err := DecodeAMMPoolState(poolData(baseVault, quoteVault, WrappedSOLMint, tokenMint))
	require.NoError(t, err)

	nativeVault, otherVault, nativeMint, otherMint, err := state.NativeSide()
	require.NoError(t, err)
	assert.Equal(t, baseVault, nativeVault)
	assert.Equal(t, quoteVault, otherVault)
	assert.Equal(t, WrappedSOLMint, nativeMint)
	assert.Equal(t, tokenMint, otherMint)
}

func TestWebsocketURL(t *testing.T) {
	assert.Equal(t, "wss://api.mainnet-beta.solana.com", WebsocketURL("https://api.mainnet-beta.solana.com"))
	assert.Equal(t, "ws://localhost:8899", WebsocketURL("http://localhost:8899"))
	assert.Equal(t, "wss://already", WebsocketURL("wss://already"))
}
