package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/nftcard/card"
	"xdao.co/nftcard/ledger"
)

var (
	contractAddr = common.HexToAddress("0x00000000000000000000000000000000000C0DE0")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	chainID      = big.NewInt(11155111)
)

// fakeChain answers view calls from fixed state and records sent transactions.
// Methods of the embedded interface that a test does not expect will panic.
type fakeChain struct {
	bind.ContractBackend

	mu        sync.Mutex
	sent      []*types.Transaction
	misses    int
	callErr   error
	mintedID  *big.Int
	receiptOK bool
}

func (f *fakeChain) CodeAt(ctx context.Context, addr common.Address, block *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (f *fakeChain) PendingCodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (f *fakeChain) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeChain) HeaderByNumber(ctx context.Context, n *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (f *fakeChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 200_000, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.misses > 0 {
		f.misses--
		return nil, ethereum.NotFound
	}
	status := types.ReceiptStatusSuccessful
	if !f.receiptOK {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{
		Status:      status,
		TxHash:      hash,
		BlockNumber: big.NewInt(10),
		GasUsed:     150_000,
		Logs:        []*types.Log{mintedLog(f.mintedID, alice)},
	}, nil
}

func (f *fakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	m, err := parsedABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := m.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case "totalSupply":
		return m.Outputs.Pack(big.NewInt(3))
	case "getTokensByOwner":
		if args[0].(common.Address) != alice {
			return m.Outputs.Pack([]*big.Int{})
		}
		return m.Outputs.Pack([]*big.Int{big.NewInt(0), big.NewInt(2)})
	case "getCardInfo":
		return m.Outputs.Pack(struct {
			Creator     common.Address
			Name        string
			Description string
			CreatedAt   *big.Int
		}{alice, "Ada L", "Engineer", big.NewInt(1709294400)})
	case "tokenURI":
		return m.Outputs.Pack("ipfs://bafkreexample/" + args[0].(*big.Int).String())
	case "ownerOf":
		return m.Outputs.Pack(alice)
	case "name":
		return m.Outputs.Pack("NFT Business Card")
	case "symbol":
		return m.Outputs.Pack("CARD")
	}
	return nil, errors.New("unexpected method " + m.Name)
}

func mintedLog(id *big.Int, creator common.Address) *types.Log {
	return &types.Log{
		Address: contractAddr,
		Topics: []common.Hash{
			parsedABI.Events["CardMinted"].ID,
			common.BigToHash(id),
			common.BytesToHash(creator.Bytes()),
		},
	}
}

func signer(t *testing.T) (*bind.TransactOpts, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	require.NoError(t, err)
	return opts, key
}

func TestContract_Views(t *testing.T) {
	c := New(contractAddr, &fakeChain{}, Options{})
	ctx := t.Context()

	n, err := c.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n.Int64())

	ids, err := c.TokensOwnedBy(ctx, alice)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, int64(2), ids[1].Int64())

	rec, err := c.CardRecord(ctx, big.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, alice, rec.Creator)
	assert.Equal(t, "Ada L", rec.Name)
	assert.Equal(t, "Engineer", rec.Description)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), rec.CreatedAt)
	assert.Equal(t, int64(2), rec.TokenID.Int64())

	uri, err := c.MetadataLocatorOf(ctx, big.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, "ipfs://bafkreexample/2", uri)

	owner, err := c.OwnerOf(ctx, big.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, alice, owner)

	name, err := c.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "NFT Business Card", name)
}

func TestContract_CallFailureIsLedgerKind(t *testing.T) {
	c := New(contractAddr, &fakeChain{callErr: errors.New("execution reverted")}, Options{})
	_, err := c.TotalSupply(t.Context())
	require.Error(t, err)
	assert.True(t, card.IsKind(err, card.KindLedger))
}

func TestContract_MintWithoutSigner(t *testing.T) {
	c := New(contractAddr, &fakeChain{}, Options{})
	_, err := c.Mint(t.Context(), alice, "Ada", "bio", "ipfs://x")
	assert.True(t, card.IsKind(err, card.KindLedger))
	assert.ErrorIs(t, err, ledger.ErrNoSigner)
}

func TestContract_MintAndWait(t *testing.T) {
	chain := &fakeChain{misses: 2, mintedID: big.NewInt(5), receiptOK: true}
	opts, _ := signer(t)
	c := New(contractAddr, chain, Options{Signer: opts, PollMin: time.Millisecond, PollMax: 2 * time.Millisecond})

	pending, err := c.Mint(t.Context(), alice, "Ada L", "Engineer", "https://ipfs.io/ipfs/bafk")
	require.NoError(t, err)
	require.Len(t, chain.sent, 1)
	assert.Equal(t, chain.sent[0].Hash(), pending.Hash)
	assert.Equal(t, contractAddr, *chain.sent[0].To())

	m, err := parsedABI.MethodById(chain.sent[0].Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "mintCard", m.Name)
	args, err := m.Inputs.Unpack(chain.sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, []any{alice, "Ada L", "Engineer", "https://ipfs.io/ipfs/bafk"}, args)

	receipt, err := pending.Wait(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(5), receipt.TokenID.Int64())
	assert.Equal(t, uint64(10), receipt.BlockNumber)
}

func TestContract_RevertedMint(t *testing.T) {
	chain := &fakeChain{mintedID: big.NewInt(1)}
	opts, _ := signer(t)
	c := New(contractAddr, chain, Options{Signer: opts, PollMin: time.Millisecond, PollMax: time.Millisecond})

	pending, err := c.Mint(t.Context(), alice, "Ada", "bio", "ipfs://x")
	require.NoError(t, err)
	_, err = pending.Wait(t.Context())
	assert.True(t, card.IsKind(err, card.KindLedger))
	assert.ErrorIs(t, err, ledger.ErrReverted)
}

func TestContract_WaitHonoursContext(t *testing.T) {
	chain := &fakeChain{misses: 1 << 30, receiptOK: true}
	opts, _ := signer(t)
	c := New(contractAddr, chain, Options{Signer: opts, PollMin: time.Millisecond, PollMax: time.Millisecond})

	pending, err := c.Mint(t.Context(), alice, "Ada", "bio", "ipfs://x")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = pending.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMintedTokenID(t *testing.T) {
	id, err := MintedTokenID([]*types.Log{{Topics: []common.Hash{{}}}, mintedLog(big.NewInt(42), alice)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.Int64())

	_, err = MintedTokenID(nil)
	assert.ErrorIs(t, err, ledger.ErrNoMintEvent)
}

func TestDecodeBytecode(t *testing.T) {
	b, err := DecodeBytecode(" 0x6080\n")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, b)

	_, err = DecodeBytecode("")
	assert.Error(t, err)
	_, err = DecodeBytecode("0xzz")
	assert.Error(t, err)
}

func TestDeploy(t *testing.T) {
	chain := &fakeChain{receiptOK: true, mintedID: big.NewInt(0)}
	opts, _ := signer(t)

	// The fake receipt carries no contract address.
	_, _, err := Deploy(t.Context(), chain, opts, []byte{0x60, 0x80}, "sepolia", Options{PollMin: time.Millisecond, PollMax: time.Millisecond})
	require.Error(t, err)
	assert.True(t, card.IsKind(err, card.KindLedger))
	require.Len(t, chain.sent, 1)
	assert.Nil(t, chain.sent[0].To())

	_, _, err = Deploy(t.Context(), chain, nil, []byte{0x60}, "sepolia", Options{})
	assert.True(t, card.IsKind(err, card.KindLedger))
}
