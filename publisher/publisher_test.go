package publisher

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/nftcard/avatar"
	"xdao.co/nftcard/card"
	"xdao.co/nftcard/locator"
	"xdao.co/nftcard/metrics"
	"xdao.co/nftcard/storage"
	"xdao.co/nftcard/storage/memory"
)

var creator = common.HexToAddress("0x00000000000000000000000000000000000000A1")

var fixedNow = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

// recordingCAS logs every call made against the wrapped store.
type recordingCAS struct {
	storage.CAS
	mu    sync.Mutex
	calls []string
	puts  [][]byte
}

func (r *recordingCAS) Put(ctx context.Context, b []byte) (cid.Cid, error) {
	r.mu.Lock()
	r.calls = append(r.calls, "put")
	r.puts = append(r.puts, b)
	r.mu.Unlock()
	return r.CAS.Put(ctx, b)
}

func (r *recordingCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, "get")
	r.mu.Unlock()
	return r.CAS.Get(ctx, id)
}

// flakyCAS fails the first n puts as unavailable.
type flakyCAS struct {
	storage.CAS
	failures int
	attempts int
}

func (f *flakyCAS) Put(ctx context.Context, b []byte) (cid.Cid, error) {
	f.attempts++
	if f.attempts <= f.failures {
		return cid.Undef, storage.Unavailable("flaky", errors.New("connection reset"))
	}
	return f.CAS.Put(ctx, b)
}

func newPublisher(cas storage.CAS) *Publisher {
	return New(cas, Options{ExternalURL: "https://cards.example", Now: fixedNow})
}

func TestPublish_AdaL_DefaultAvatar(t *testing.T) {
	cas := &recordingCAS{CAS: memory.New()}
	pub, err := newPublisher(cas).Publish(t.Context(), card.Input{DisplayName: "Ada L", Bio: "Engineer"}, creator)
	require.NoError(t, err)

	assert.Equal(t, "Ada L's card", pub.Metadata.Name)
	assert.Equal(t, "Engineer", pub.Metadata.Description)
	assert.Equal(t, creator.Hex(), pub.Metadata.Creator)
	assert.Equal(t, "https://cards.example", pub.Metadata.ExternalURL)
	assert.Contains(t, pub.Metadata.Attributes, card.Attribute{TraitType: card.TraitCreator, Value: "Ada L"})
	v, ok := pub.Metadata.Attribute(card.TraitCreatedAt)
	require.True(t, ok)
	assert.Equal(t, "2024-03-01T12:00:00.000Z", v)

	// Only the metadata touches the store.
	assert.Equal(t, []string{"put"}, cas.calls)

	require.Equal(t, locator.KindInlineData, pub.ImageLocator.Kind())
	assert.Equal(t, avatar.Default("Ada L").String(), pub.Metadata.Image)
	assert.True(t, strings.HasPrefix(pub.Metadata.Image, "data:image/svg+xml;base64,"))
	svg, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(pub.Metadata.Image, "data:image/svg+xml;base64,"))
	require.NoError(t, err)
	assert.Contains(t, string(svg), ">AL<")
	assert.Contains(t, string(svg), avatar.Palette[len("Ada L")%len(avatar.Palette)])

	assert.Equal(t, locator.DefaultGatewayBase+"/"+pub.MetadataLocator.CID().String(), pub.MetadataURI)
	stored, err := cas.CAS.Get(t.Context(), pub.MetadataLocator.CID())
	require.NoError(t, err)
	assert.Equal(t, pub.MetadataJSON, stored)
}

func TestPublish_KeepsFieldsAsEntered(t *testing.T) {
	in := card.Input{DisplayName: "Ada L ", Bio: "  Engineer\n"}
	pub, err := newPublisher(memory.New()).Publish(t.Context(), in, creator)
	require.NoError(t, err)

	assert.Equal(t, in.Bio, pub.Metadata.Description)
	assert.Equal(t, card.CardName(in.DisplayName), pub.Metadata.Name)
	assert.Contains(t, pub.Metadata.Attributes, card.Attribute{TraitType: card.TraitCreator, Value: in.DisplayName})

	svg, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(pub.Metadata.Image, "data:image/svg+xml;base64,"))
	require.NoError(t, err)
	assert.Contains(t, string(svg), `fill="`+avatar.Background(in.DisplayName)+`"`)
	assert.NotEqual(t, avatar.Background("Ada L"), avatar.Background(in.DisplayName))
	assert.Equal(t, avatar.Default(in.DisplayName).String(), pub.Metadata.Image)

	// The stored record round-trips the bio byte for byte.
	id, err := memory.New().Put(t.Context(), pub.MetadataJSON)
	require.NoError(t, err)
	require.True(t, id.Equals(pub.MetadataLocator.CID()))
	meta, err := card.ParseMetadata(pub.MetadataJSON)
	require.NoError(t, err)
	assert.Equal(t, in.Bio, meta.Description)
}

func TestPublish_UploadsAvatarBeforeMetadata(t *testing.T) {
	cas := &recordingCAS{CAS: memory.New()}
	png := []byte("\x89PNG\r\n\x1a\nfake")
	in := card.Input{DisplayName: "Grace", Bio: "Admiral", Avatar: &card.Blob{Data: png, MIMEType: "image/png"}}

	pub, err := New(cas, Options{GatewayBase: "https://gw.example/ipfs/", Now: fixedNow}).Publish(t.Context(), in, creator)
	require.NoError(t, err)

	require.Len(t, cas.puts, 2)
	assert.Equal(t, png, cas.puts[0])
	assert.Equal(t, pub.MetadataJSON, cas.puts[1])

	require.Equal(t, locator.KindContentAddressed, pub.ImageLocator.Kind())
	assert.False(t, pub.ImageLocator.Equal(pub.MetadataLocator))
	assert.Equal(t, "https://gw.example/ipfs/"+pub.ImageLocator.CID().String(), pub.Metadata.Image)
	assert.Equal(t, "https://gw.example/ipfs/"+pub.MetadataLocator.CID().String(), pub.MetadataURI)
}

func TestPublish_IdenticalMetadataSameLocator(t *testing.T) {
	p := newPublisher(memory.New())
	in := card.Input{DisplayName: "Ada L", Bio: "Engineer"}

	a, err := p.Publish(t.Context(), in, creator)
	require.NoError(t, err)
	b, err := p.Publish(t.Context(), in, creator)
	require.NoError(t, err)

	assert.True(t, a.MetadataLocator.Equal(b.MetadataLocator))
	assert.Equal(t, a.MetadataURI, b.MetadataURI)
}

func TestPublish_ValidationMakesNoCalls(t *testing.T) {
	for _, in := range []card.Input{
		{DisplayName: "", Bio: "Engineer"},
		{DisplayName: "Ada", Bio: "  "},
		{DisplayName: strings.Repeat("x", card.MaxDisplayNameLen+1), Bio: "b", Avatar: &card.Blob{Data: []byte("x")}},
	} {
		cas := &recordingCAS{CAS: memory.New()}
		_, err := newPublisher(cas).Publish(t.Context(), in, creator)
		require.Error(t, err)
		assert.True(t, card.IsKind(err, card.KindValidation), "got %v", err)
		assert.Empty(t, cas.calls)
	}
}

func TestPublish_StorageFailure(t *testing.T) {
	cas := &flakyCAS{CAS: memory.New(), failures: 1}
	pub, err := newPublisher(cas).Publish(t.Context(), card.Input{DisplayName: "Ada", Bio: "b"}, creator)
	require.Error(t, err)
	assert.Nil(t, pub)
	assert.True(t, card.IsKind(err, card.KindStorage))
	assert.Equal(t, 1, cas.attempts)
}

func TestPublish_AvatarFailureSkipsMetadata(t *testing.T) {
	cas := &flakyCAS{CAS: memory.New(), failures: 1}
	in := card.Input{DisplayName: "Ada", Bio: "b", Avatar: &card.Blob{Data: []byte("img")}}
	_, err := newPublisher(cas).Publish(t.Context(), in, creator)
	require.Error(t, err)
	assert.True(t, card.IsKind(err, card.KindStorage))
	assert.Equal(t, 1, cas.attempts)
}

func TestPublish_RetriesWhenEnabled(t *testing.T) {
	cas := &flakyCAS{CAS: memory.New(), failures: 2}
	p := New(cas, Options{MaxAttempts: 3, RetryMin: time.Millisecond, RetryMax: 2 * time.Millisecond, Now: fixedNow})

	_, err := p.Publish(t.Context(), card.Input{DisplayName: "Ada", Bio: "b"}, creator)
	require.NoError(t, err)
	assert.Equal(t, 3, cas.attempts)
}

// hangingCAS blocks every put until the caller gives up.
type hangingCAS struct{ storage.CAS }

func (hangingCAS) Put(ctx context.Context, _ []byte) (cid.Cid, error) {
	<-ctx.Done()
	return cid.Undef, storage.Unavailable("hanging", ctx.Err())
}

func TestPublish_TimeoutIsStorageUnavailable(t *testing.T) {
	p := New(hangingCAS{memory.New()}, Options{Timeout: 20 * time.Millisecond, Now: fixedNow})

	_, err := p.Publish(t.Context(), card.Input{DisplayName: "Ada", Bio: "b"}, creator)
	require.Error(t, err)
	assert.True(t, card.IsKind(err, card.KindStorage))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
}

func TestPublish_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(memory.New(), Options{Metrics: metrics.New(reg), Now: fixedNow})
	_, err := p.Publish(t.Context(), card.Input{DisplayName: "Ada", Bio: "b"}, creator)
	require.NoError(t, err)
	_, err = p.Publish(t.Context(), card.Input{}, creator)
	require.Error(t, err)

	n, err := testutil.GatherAndCount(reg, "nftcard_publisher_publications_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
