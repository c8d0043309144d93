package cardsvc

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/nftcard/card"
	"xdao.co/nftcard/cidutil"
	"xdao.co/nftcard/ledger/memledger"
	"xdao.co/nftcard/locator"
	"xdao.co/nftcard/publisher"
	"xdao.co/nftcard/resolver"
	"xdao.co/nftcard/storage/memory"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
)

type fixture struct {
	svc   *Service
	led   *memledger.Ledger
	store *memory.CAS
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	led := memledger.New()
	pub := publisher.New(store, publisher.Options{
		ExternalURL: "https://cards.example",
		Now:         func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	res := resolver.New(resolver.Options{Fetcher: resolver.NewCASFetcher(store)})
	return fixture{svc: New(pub, led, res, Options{}), led: led, store: store}
}

func (f fixture) mint(t *testing.T, owner common.Address, name string) *Minted {
	t.Helper()
	m, err := f.svc.Mint(t.Context(), card.Input{DisplayName: name, Bio: name + " bio"}, owner)
	require.NoError(t, err)
	return m
}

func TestMintThenResolve(t *testing.T) {
	f := newFixture(t)
	m := f.mint(t, alice, "Ada L")
	assert.Equal(t, int64(0), m.TokenID.Int64())
	assert.Equal(t, "Ada L's card", m.Publication.Metadata.Name)

	rec, err := f.led.CardRecord(t.Context(), m.TokenID)
	require.NoError(t, err)
	assert.Equal(t, "Ada L", rec.Name)
	assert.Equal(t, "Ada L bio", rec.Description)

	c, err := f.svc.Card(t.Context(), m.TokenID)
	require.NoError(t, err)
	assert.True(t, c.OK(), "reason=%s detail=%s", c.Reason, c.Detail)
	assert.Equal(t, "Ada L's card", c.Name)
	assert.Equal(t, "Ada L", c.CreatorName)
	assert.Equal(t, alice.Hex(), c.Creator)
	assert.Equal(t, alice.Hex(), c.Owner)
	assert.Equal(t, "https://cards.example", c.ExternalURL)
	assert.Equal(t, m.Publication.MetadataURI, c.MetadataURI)
}

func TestMintKeepsPaddedFields(t *testing.T) {
	f := newFixture(t)
	in := card.Input{DisplayName: " Ada L ", Bio: "  Engineer\n"}
	m, err := f.svc.Mint(t.Context(), in, alice)
	require.NoError(t, err)

	rec, err := f.led.CardRecord(t.Context(), m.TokenID)
	require.NoError(t, err)
	assert.Equal(t, in.DisplayName, rec.Name)
	assert.Equal(t, in.Bio, rec.Description)
	assert.Equal(t, in.Bio, m.Publication.Metadata.Description)
}

func TestMintValidationSkipsLedger(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Mint(t.Context(), card.Input{DisplayName: "", Bio: "x"}, alice)
	assert.True(t, card.IsKind(err, card.KindValidation))

	n, err := f.led.TotalSupply(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n.Int64())
	assert.Zero(t, f.store.Len())
}

func TestMintLedgerFailure(t *testing.T) {
	f := newFixture(t)
	f.led.FailOn("Mint", errors.New("insufficient funds"))
	_, err := f.svc.Mint(t.Context(), card.Input{DisplayName: "Ada", Bio: "x"}, alice)
	assert.True(t, card.IsKind(err, card.KindLedger))
}

func TestAllCardsNewestFirstSkippingFailures(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, "Zero")
	f.mint(t, bob, "One")
	f.mint(t, alice, "Two")
	f.led.FailToken(1, errors.New("flaky node"))

	cards, err := f.svc.AllCards(t.Context())
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "2", cards[0].TokenID)
	assert.Equal(t, "0", cards[1].TokenID)
	for _, c := range cards {
		assert.True(t, c.OK())
	}
}

func TestAllCardsSupplyFailure(t *testing.T) {
	f := newFixture(t)
	f.led.FailOn("TotalSupply", errors.New("rpc down"))
	_, err := f.svc.AllCards(t.Context())
	assert.True(t, card.IsKind(err, card.KindLedger))
}

func TestOwnedCards(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, "Zero")
	f.mint(t, bob, "One")
	f.mint(t, alice, "Two")

	cards, err := f.svc.OwnedCards(t.Context(), alice)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "0", cards[0].TokenID)
	assert.Equal(t, "2", cards[1].TokenID)
	assert.Equal(t, alice.Hex(), cards[1].Owner)

	none, err := f.svc.OwnedCards(t.Context(), common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMissingMetadataDegradesCard(t *testing.T) {
	f := newFixture(t)
	id, err := cidutil.CIDv1RawSHA256CID([]byte("never stored"))
	require.NoError(t, err)
	uri := locator.ContentAddressed(id).GatewayURL(locator.DefaultGatewayBase)
	_, err = f.led.Mint(t.Context(), alice, "Ghost", "on-chain bio", uri)
	require.NoError(t, err)

	c, err := f.svc.Card(t.Context(), big.NewInt(0))
	require.NoError(t, err)
	assert.True(t, c.Degraded())
	assert.Equal(t, resolver.ReasonFetchFailed, c.Reason)
	assert.Equal(t, "Ghost", c.Name)
	assert.Equal(t, "on-chain bio", c.Description)
	assert.NotEmpty(t, c.FallbackImage)
}
