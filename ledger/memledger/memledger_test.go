package memledger

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/nftcard/card"
	"xdao.co/nftcard/ledger"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
)

func TestMintAssignsSequentialIDs(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New().WithClock(func() time.Time { return created })
	ctx := t.Context()

	for i := range 3 {
		owner := alice
		if i == 1 {
			owner = bob
		}
		p, err := l.Mint(ctx, owner, "Card", "bio", "ipfs://meta")
		require.NoError(t, err)
		r, err := p.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(i), r.TokenID.Int64())
		assert.Equal(t, p.Hash, r.TxHash)
	}

	n, err := l.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n.Int64())

	ids, err := l.TokensOwnedBy(ctx, alice)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, []int64{0, 2}, []int64{ids[0].Int64(), ids[1].Int64()})

	rec, err := l.CardRecord(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, bob, rec.Creator)
	assert.Equal(t, created, rec.CreatedAt)

	uri, err := l.MetadataLocatorOf(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "ipfs://meta", uri)
}

func TestUnknownTokenIsLedgerError(t *testing.T) {
	l := New()
	_, err := l.CardRecord(t.Context(), big.NewInt(7))
	assert.True(t, card.IsKind(err, card.KindLedger))
	assert.ErrorIs(t, err, ledger.ErrTokenNotFound)
}

func TestFailureInjection(t *testing.T) {
	l := New()
	ctx := t.Context()
	boom := errors.New("rpc down")

	l.FailOn("Mint", boom)
	_, err := l.Mint(ctx, alice, "a", "b", "c")
	assert.True(t, card.IsKind(err, card.KindLedger))
	assert.ErrorIs(t, err, boom)

	l.FailOn("Mint", nil)
	_, err = l.Mint(ctx, alice, "a", "b", "c")
	require.NoError(t, err)

	l.FailToken(0, boom)
	_, err = l.OwnerOf(ctx, big.NewInt(0))
	assert.ErrorIs(t, err, boom)
}

func TestTransfer(t *testing.T) {
	l := New()
	ctx := t.Context()
	_, err := l.Mint(ctx, alice, "a", "b", "c")
	require.NoError(t, err)
	require.NoError(t, l.Transfer(big.NewInt(0), bob))

	owner, err := l.OwnerOf(ctx, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, bob, owner)

	rec, err := l.CardRecord(ctx, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, alice, rec.Creator)
}
