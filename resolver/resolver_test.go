package resolver

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/nftcard/avatar"
	"xdao.co/nftcard/cache"
	"xdao.co/nftcard/card"
	"xdao.co/nftcard/cidutil"
	"xdao.co/nftcard/locator"
	"xdao.co/nftcard/publisher"
	"xdao.co/nftcard/storage/memory"
)

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	minted  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

// gateway serves /ipfs/<cid> from a memory store and counts requests.
type gateway struct {
	cas  *memory.CAS
	hits atomic.Int32
	// status, when non-zero, is returned for every request.
	status int
	// override replaces the body of every successful response.
	override []byte
	delay    time.Duration
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.hits.Add(1)
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-r.Context().Done():
			return
		}
	}
	if g.status != 0 {
		w.WriteHeader(g.status)
		return
	}
	id, err := cidutil.Decode(strings.TrimPrefix(r.URL.Path, "/ipfs/"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b, err := g.cas.Get(r.Context(), id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if g.override != nil {
		b = g.override
	}
	_, _ = w.Write(b)
}

func setup(t *testing.T) (*gateway, string) {
	t.Helper()
	g := &gateway{cas: memory.New()}
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return g, srv.URL + "/ipfs"
}

func publish(t *testing.T, g *gateway, base string, in card.Input) *publisher.Publication {
	t.Helper()
	pub, err := publisher.New(g.cas, publisher.Options{GatewayBase: base, ExternalURL: "https://cards.example"}).
		Publish(context.Background(), in, creator)
	require.NoError(t, err)
	return pub
}

func onChain(id int64, name, desc, uri string) OnChain {
	return OnChain{
		TokenID:     big.NewInt(id),
		Name:        name,
		Description: desc,
		Creator:     creator,
		Owner:       owner,
		CreatedAt:   minted,
		MetadataURI: uri,
	}
}

func TestResolve_RoundTrip(t *testing.T) {
	g, base := setup(t)
	pub := publish(t, g, base, card.Input{DisplayName: "Ada L", Bio: "Engineer"})

	r := New(Options{GatewayBase: base})
	c := r.Resolve(t.Context(), onChain(7, "Ada L", "on-chain bio", pub.MetadataURI))

	require.Equal(t, StatusOK, c.Status, "reason=%s detail=%s", c.Reason, c.Detail)
	assert.Equal(t, "Engineer", c.Description)
	assert.Equal(t, "Ada L's card", c.Name)
	assert.Equal(t, "Ada L", c.CreatorName)
	assert.Equal(t, "7", c.TokenID)
	assert.Equal(t, creator.Hex(), c.Creator)
	assert.Equal(t, owner.Hex(), c.Owner)
	assert.Equal(t, minted, c.CreatedAt)
	assert.Equal(t, pub.Metadata.Image, c.Image)
	assert.Equal(t, "https://cards.example", c.ExternalURL)
	assert.Contains(t, c.Attributes, card.Attribute{TraitType: card.TraitCreator, Value: "Ada L"})
	assert.Equal(t, avatar.Fallback("Ada L").String(), c.FallbackImage)
	assert.Empty(t, c.Reason)
}

func TestResolve_IPFSSchemeIsNormalized(t *testing.T) {
	g, base := setup(t)
	pub := publish(t, g, base, card.Input{DisplayName: "Ada L", Bio: "Engineer"})

	c := New(Options{GatewayBase: base}).Resolve(t.Context(), onChain(1, "Ada L", "", pub.MetadataLocator.String()))
	require.True(t, c.OK())
	assert.Equal(t, pub.MetadataURI, c.MetadataURI)
}

func TestResolve_Non2xxDegrades(t *testing.T) {
	g, base := setup(t)
	pub := publish(t, g, base, card.Input{DisplayName: "Ada L", Bio: "Engineer"})
	g.status = http.StatusBadGateway

	c := New(Options{GatewayBase: base}).Resolve(t.Context(), onChain(3, "Ada L", "on-chain bio", pub.MetadataURI))

	assert.Equal(t, StatusDegraded, c.Status)
	assert.Equal(t, ReasonFetchFailed, c.Reason)
	assert.Equal(t, "http 502", c.Detail)
	assert.Equal(t, "Ada L", c.Name)
	assert.Equal(t, "on-chain bio", c.Description)
	assert.Equal(t, "3", c.TokenID)
	assert.Empty(t, c.Image)
	assert.NotEmpty(t, c.FallbackImage)
}

func TestResolve_UnreachableGatewayDegrades(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL + "/ipfs"
	srv.Close()

	id, err := cidutil.CIDv1RawSHA256CID([]byte("{}"))
	require.NoError(t, err)
	c := New(Options{GatewayBase: base}).Resolve(t.Context(), onChain(1, "Ada", "bio", "ipfs://"+id.String()))
	assert.Equal(t, ReasonFetchFailed, c.Reason)
	assert.NotEmpty(t, c.Detail)
}

func TestResolve_TimeoutDegrades(t *testing.T) {
	g, base := setup(t)
	pub := publish(t, g, base, card.Input{DisplayName: "Ada L", Bio: "Engineer"})
	g.delay = time.Second

	c := New(Options{GatewayBase: base, Timeout: 20 * time.Millisecond}).Resolve(t.Context(), onChain(1, "Ada L", "bio", pub.MetadataURI))
	assert.Equal(t, ReasonFetchFailed, c.Reason)
	assert.Equal(t, "timeout", c.Detail)
}

func TestResolve_ParseFailureDegrades(t *testing.T) {
	g, base := setup(t)
	id, err := g.cas.Put(t.Context(), []byte("<html>not json</html>"))
	require.NoError(t, err)

	c := New(Options{GatewayBase: base}).Resolve(t.Context(), onChain(2, "Bob", "bio", base+"/"+id.String()))
	assert.Equal(t, StatusDegraded, c.Status)
	assert.Equal(t, ReasonParseFailed, c.Reason)
	assert.Equal(t, "Bob", c.Name)
	assert.Equal(t, "bio", c.Description)
}

func TestResolve_IntegrityCheck(t *testing.T) {
	g, base := setup(t)
	pub := publish(t, g, base, card.Input{DisplayName: "Ada L", Bio: "Engineer"})
	g.override = []byte(`{"name":"Mallory's card","description":"tampered"}`)

	c := New(Options{GatewayBase: base}).Resolve(t.Context(), onChain(1, "Ada L", "bio", pub.MetadataURI))
	assert.Equal(t, ReasonIntegrityFailure, c.Reason)
	assert.Equal(t, "Ada L", c.Name)
}

func TestResolve_StrictRejectsUnverifiable(t *testing.T) {
	inline := locator.InlineData([]byte(`{"name":"x"}`), "application/json").String()
	dagPB := "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

	permissive := New(Options{Fetcher: NewCASFetcher(memory.New())})
	assert.True(t, permissive.Resolve(t.Context(), onChain(1, "A", "b", inline)).OK())

	strict := New(Options{Mode: Strict, Fetcher: NewCASFetcher(memory.New())})
	for _, uri := range []string{inline, dagPB} {
		c := strict.Resolve(t.Context(), onChain(1, "A", "b", uri))
		assert.Equal(t, ReasonIntegrityFailure, c.Reason, uri)
	}
}

func TestResolve_UnsupportedLocator(t *testing.T) {
	r := New(Options{Fetcher: NewCASFetcher(memory.New())})
	for _, uri := range []string{"", "https://example.com/card.json", "ftp://x"} {
		c := r.Resolve(t.Context(), onChain(1, "A", "b", uri))
		assert.Equal(t, StatusDegraded, c.Status, uri)
		assert.Equal(t, ReasonUnsupported, c.Reason, uri)
	}
}

func TestResolve_CacheServesRepeatFetches(t *testing.T) {
	g, base := setup(t)
	pub := publish(t, g, base, card.Input{DisplayName: "Ada L", Bio: "Engineer"})

	mc, err := cache.NewMemory(t.Context(), cache.MemoryConfig{LifeWindow: time.Minute})
	require.NoError(t, err)
	defer mc.Close()

	r := New(Options{GatewayBase: base, Cache: mc})
	oc := onChain(1, "Ada L", "bio", pub.MetadataURI)
	a := r.Resolve(t.Context(), oc)
	b := r.Resolve(t.Context(), oc)

	assert.Equal(t, a, b)
	assert.EqualValues(t, 1, g.hits.Load())
}

func TestResolve_CASFetcher(t *testing.T) {
	cas := memory.New()
	pub, err := publisher.New(cas, publisher.Options{}).Publish(t.Context(), card.Input{DisplayName: "Ada L", Bio: "Engineer"}, creator)
	require.NoError(t, err)

	c := New(Options{Fetcher: NewCASFetcher(memory.New(), cas)}).Resolve(t.Context(), onChain(1, "Ada L", "bio", pub.MetadataURI))
	require.True(t, c.OK(), c.Detail)
	assert.Equal(t, "Engineer", c.Description)
}

func TestResolve_ImageNormalization(t *testing.T) {
	cas := memory.New()
	imgID, err := cidutil.CIDv1RawSHA256CID([]byte("png"))
	require.NoError(t, err)

	cases := []struct{ image, want string }{
		{"ipfs://" + imgID.String(), "https://gw.example/ipfs/" + imgID.String()},
		{"https://ipfs.io/ipfs/" + imgID.String(), "https://gw.example/ipfs/" + imgID.String()},
		{"data:image/svg+xml;base64,PHN2Zy8+", "data:image/svg+xml;base64,PHN2Zy8+"},
		{"https://cdn.example/a.png", "https://cdn.example/a.png"},
		{"ipfs://not-a-cid", ""},
		{"", ""},
	}
	r := New(Options{GatewayBase: "https://gw.example/ipfs", Fetcher: NewCASFetcher(cas)})
	for _, tc := range cases {
		meta := card.Metadata{Name: "n", Description: "d", Image: tc.image}
		body, err := meta.CanonicalJSON()
		require.NoError(t, err)
		id, err := cas.Put(t.Context(), body)
		require.NoError(t, err)

		c := r.Resolve(t.Context(), onChain(1, "A", "b", "ipfs://"+id.String()))
		require.True(t, c.OK(), c.Detail)
		assert.Equal(t, tc.want, c.Image, tc.image)
	}
}

func TestResolveAll_PreservesOrder(t *testing.T) {
	g, base := setup(t)
	var records []OnChain
	for i := range 12 {
		name := fmt.Sprintf("User %d", i)
		pub := publish(t, g, base, card.Input{DisplayName: name, Bio: fmt.Sprintf("bio %d", i)})
		uri := pub.MetadataURI
		if i%4 == 3 {
			uri = "not a locator"
		}
		records = append(records, onChain(int64(i), name, "", uri))
	}

	cards := New(Options{GatewayBase: base, Concurrency: 3}).ResolveAll(t.Context(), records)
	require.Len(t, cards, len(records))
	for i, c := range cards {
		assert.Equal(t, fmt.Sprint(i), c.TokenID)
		if i%4 == 3 {
			assert.True(t, c.Degraded())
			continue
		}
		assert.Equal(t, fmt.Sprintf("bio %d", i), c.Description)
	}
}

func TestLoadingAndExplorer(t *testing.T) {
	r := New(Options{ExplorerBase: "https://sepolia.etherscan.io/", Contract: "0xC0FFEE"})
	c := r.Loading(onChain(42, "Ada L", "bio", "ipfs://x"))

	assert.Equal(t, StatusLoading, c.Status)
	assert.Equal(t, "Ada L", c.Name)
	assert.Equal(t, "https://sepolia.etherscan.io/token/0xC0FFEE?a=42", c.ExplorerURL)
}
