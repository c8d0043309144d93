// Package publisher turns card form fields into an immutable metadata record
// on a content-addressed store and returns its locator.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"xdao.co/nftcard/avatar"
	"xdao.co/nftcard/card"
	"xdao.co/nftcard/locator"
	"xdao.co/nftcard/metrics"
	"xdao.co/nftcard/storage"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 1
)

type Options struct {
	// GatewayBase prefixes CIDs in the returned URIs. Defaults to
	// locator.DefaultGatewayBase.
	GatewayBase string
	// ExternalURL is written to external_url (the application origin).
	ExternalURL string
	// Timeout bounds one whole publication (image and metadata uploads).
	Timeout time.Duration
	// MaxAttempts per upload; values <= 1 disable retries.
	MaxAttempts int
	RetryMin    time.Duration
	RetryMax    time.Duration

	Now     func() time.Time
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Publication is the outcome of a successful Publish.
type Publication struct {
	Metadata     card.Metadata
	MetadataJSON []byte

	MetadataLocator locator.Locator
	// MetadataURI is the gateway URL handed to the ledger as the token URI.
	MetadataURI string

	ImageLocator locator.Locator
	ImageURI     string
}

type Publisher struct {
	cas  storage.CAS
	opts Options
	log  zerolog.Logger
}

// New returns a Publisher writing to cas. The zero Options value is usable;
// the default Logger discards output.
func New(cas storage.CAS, opts Options) *Publisher {
	if opts.GatewayBase == "" {
		opts.GatewayBase = locator.DefaultGatewayBase
	}
	opts.GatewayBase = strings.TrimRight(opts.GatewayBase, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryMin <= 0 {
		opts.RetryMin = 200 * time.Millisecond
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{cas: cas, opts: opts, log: opts.Logger.With().Str("component", "publisher").Logger()}
}

// Publish validates in, uploads the avatar (if any) and then the metadata
// JSON. Nothing is returned unless both uploads succeed.
func (p *Publisher) Publish(ctx context.Context, in card.Input, creator common.Address) (*Publication, error) {
	start := time.Now()
	pub, err := p.publish(ctx, in, creator)
	outcome := "ok"
	if err != nil {
		outcome = string(card.KindOf(err))
	}
	p.opts.Metrics.ObservePublish(outcome, time.Since(start))
	return pub, err
}

func (p *Publisher) publish(ctx context.Context, in card.Input, creator common.Address) (*Publication, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if p.cas == nil {
		return nil, card.NewError(card.KindStorage, "publish", "no content store configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	// Fields are used exactly as entered; trimming only decides emptiness.
	displayName := in.DisplayName
	log := p.log.With().Str("creator", creator.Hex()).Logger()

	var image locator.Locator
	if in.HasAvatar() {
		id, err := p.put(ctx, "image", in.Avatar.Data)
		if err != nil {
			log.Error().Err(err).Msg("avatar upload failed")
			return nil, card.WrapError(card.KindStorage, "upload image", err)
		}
		image = locator.ContentAddressed(id)
		log.Debug().Str("cid", id.String()).Int("bytes", len(in.Avatar.Data)).Msg("avatar uploaded")
	} else {
		image = avatar.Default(displayName)
	}
	imageURI := p.render(image)

	meta := card.Metadata{
		Name:        card.CardName(displayName),
		Description: in.Bio,
		Image:       imageURI,
		Attributes:  card.StandardAttributes(displayName, p.opts.Now()),
		ExternalURL: p.opts.ExternalURL,
		Creator:     creator.Hex(),
	}
	body, err := meta.CanonicalJSON()
	if err != nil {
		return nil, card.WrapError(card.KindStorage, "encode metadata", err)
	}

	id, err := p.put(ctx, "metadata", body)
	if err != nil {
		log.Error().Err(err).Msg("metadata upload failed")
		return nil, card.WrapError(card.KindStorage, "upload metadata", err)
	}
	metaLoc := locator.ContentAddressed(id)

	log.Info().Str("cid", id.String()).Str("name", meta.Name).Msg("card metadata published")
	return &Publication{
		Metadata:        meta,
		MetadataJSON:    body,
		MetadataLocator: metaLoc,
		MetadataURI:     metaLoc.GatewayURL(p.opts.GatewayBase),
		ImageLocator:    image,
		ImageURI:        imageURI,
	}, nil
}

// render maps a locator to the string stored in the image field: a gateway
// URL for content, the data URI itself for inline data.
func (p *Publisher) render(l locator.Locator) string {
	if l.Kind() == locator.KindInlineData {
		return l.String()
	}
	return l.GatewayURL(p.opts.GatewayBase)
}

// put writes data, retrying unavailable-backend errors up to MaxAttempts
// with jittered exponential backoff.
func (p *Publisher) put(ctx context.Context, object string, data []byte) (cid.Cid, error) {
	b := &backoff.Backoff{
		Min:    p.opts.RetryMin,
		Max:    p.opts.RetryMax,
		Factor: 2,
		Jitter: true,
	}
	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		id, err := p.cas.Put(ctx, data)
		if err == nil {
			p.opts.Metrics.AddUploadBytes(object, len(data))
			return id, nil
		}
		lastErr = err
		if ctx.Err() != nil || !storage.IsUnavailable(err) || attempt == p.opts.MaxAttempts {
			break
		}
		wait := b.Duration()
		p.log.Warn().Err(err).Str("object", object).Int("attempt", attempt).Dur("wait", wait).Msg("upload failed, retrying")
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return cid.Undef, errors.Join(lastErr, ctx.Err())
		case <-t.C:
		}
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return cid.Undef, fmt.Errorf("publication timed out after %s: %w", p.opts.Timeout, lastErr)
	}
	return cid.Undef, lastErr
}
