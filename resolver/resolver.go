// Package resolver turns an on-chain token record into a render-ready card.
//
// Resolution never fails: fetch, parse and integrity problems collapse into
// a degraded card that still carries the ledger's own name and description.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"xdao.co/nftcard/avatar"
	"xdao.co/nftcard/card"
	"xdao.co/nftcard/cidutil"
	"xdao.co/nftcard/locator"
)

type Resolver struct {
	opts    Options
	fetcher Fetcher
	log     zerolog.Logger
}

func New(opts Options) *Resolver {
	if opts.GatewayBase == "" {
		opts.GatewayBase = locator.DefaultGatewayBase
	}
	opts.GatewayBase = strings.TrimRight(opts.GatewayBase, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = &GatewayFetcher{Base: opts.GatewayBase}
	}
	return &Resolver{
		opts:    opts,
		fetcher: fetcher,
		log:     opts.Logger.With().Str("component", "resolver").Logger(),
	}
}

// Loading is the placeholder shown while a resolution is in flight.
func (r *Resolver) Loading(oc OnChain) Card {
	c := r.base(oc)
	c.Status = StatusLoading
	return c
}

// Resolve fetches and merges the metadata oc.MetadataURI points at.
func (r *Resolver) Resolve(ctx context.Context, oc OnChain) Card {
	c := r.resolve(ctx, oc)
	r.opts.Metrics.ObserveResolve(string(c.Status), c.Reason)
	if c.Degraded() {
		r.log.Warn().
			Str("token", c.TokenID).
			Str("uri", oc.MetadataURI).
			Str("reason", c.Reason).
			Str("detail", c.Detail).
			Msg("card degraded")
	}
	return c
}

// ResolveAll resolves cards concurrently, at most Options.Concurrency at a
// time. The result is in input order.
func (r *Resolver) ResolveAll(ctx context.Context, records []OnChain) []Card {
	out := make([]Card, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, oc := range records {
		g.Go(func() error {
			out[i] = r.Resolve(gctx, oc)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Resolver) resolve(ctx context.Context, oc OnChain) Card {
	c := r.base(oc)

	loc, err := locator.Parse(oc.MetadataURI)
	if err != nil {
		return degrade(c, ReasonUnsupported, err.Error())
	}
	c.MetadataURI = loc.GatewayURL(r.opts.GatewayBase)

	var body []byte
	switch loc.Kind() {
	case locator.KindInlineData:
		if r.opts.Mode == Strict {
			return degrade(c, ReasonIntegrityFailure, "inline metadata is not content-addressed")
		}
		body = loc.Data()
	case locator.KindContentAddressed:
		if r.opts.Mode == Strict && (loc.Path() != "" || !cidutil.Verifiable(loc.CID())) {
			return degrade(c, ReasonIntegrityFailure, fmt.Sprintf("cid %s is not verifiable", loc.CID()))
		}
		b, reason, det := r.fetch(ctx, loc)
		if reason != "" {
			return degrade(c, reason, det)
		}
		body = b
	}

	meta, err := card.ParseMetadata(body)
	if err != nil {
		return degrade(c, ReasonParseFailed, err.Error())
	}
	return r.merge(c, meta)
}

// fetch returns the verified bytes for loc, or a degradation reason and detail.
func (r *Resolver) fetch(ctx context.Context, loc locator.Locator) ([]byte, string, string) {
	key := loc.String()
	verify := loc.Path() == "" && cidutil.Verifiable(loc.CID())

	if r.opts.Cache != nil {
		b, ok, err := r.opts.Cache.Get(ctx, key)
		if err != nil {
			r.log.Debug().Err(err).Str("key", key).Msg("cache get failed")
		}
		r.opts.Metrics.ObserveCache(ok)
		if ok && (!verify || cidutil.Matches(loc.CID(), b)) {
			return b, "", ""
		}
	}

	fctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	b, err := r.fetcher.Fetch(fctx, loc)
	if err != nil {
		if errors.Is(err, locator.ErrUnsupported) {
			return nil, ReasonUnsupported, err.Error()
		}
		return nil, ReasonFetchFailed, detail(err)
	}
	if verify && !cidutil.Matches(loc.CID(), b) {
		return nil, ReasonIntegrityFailure, fmt.Sprintf("content does not hash to %s", loc.CID())
	}

	if r.opts.Cache != nil {
		if err := r.opts.Cache.Set(ctx, key, b); err != nil {
			r.log.Debug().Err(err).Str("key", key).Msg("cache set failed")
		}
	}
	return b, "", ""
}

// merge layers the metadata record over the ledger fields. Identity fields
// are never overwritten.
func (r *Resolver) merge(c Card, meta card.Metadata) Card {
	if meta.Name != "" {
		c.Name = meta.Name
	}
	if meta.Description != "" {
		c.Description = meta.Description
	}
	c.Attributes = meta.Attributes
	c.ExternalURL = meta.ExternalURL
	c.Image = r.normalizeImage(meta.Image)
	c.Status = StatusOK
	return c
}

// normalizeImage rewrites content-addressed image references onto the
// gateway and passes inline data through. Unusable references are dropped
// so the fallback glyph is shown.
func (r *Resolver) normalizeImage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(raw), "data:") {
		return raw
	}
	u, err := locator.Normalize(raw, r.opts.GatewayBase)
	switch {
	case err == nil:
		return u
	case errors.Is(err, locator.ErrUnsupported) && isHTTP(raw):
		// A plain web URL is still displayable.
		return raw
	default:
		return ""
	}
}

func (r *Resolver) base(oc OnChain) Card {
	c := Card{
		Creator:       oc.Creator.Hex(),
		CreatedAt:     oc.CreatedAt.UTC(),
		MetadataURI:   oc.MetadataURI,
		CreatorName:   oc.Name,
		Name:          oc.Name,
		Description:   oc.Description,
		FallbackImage: avatar.Fallback(oc.Name).String(),
	}
	if oc.TokenID != nil {
		c.TokenID = oc.TokenID.String()
	}
	if oc.Owner != (common.Address{}) {
		c.Owner = oc.Owner.Hex()
	}
	if r.opts.ExplorerBase != "" && r.opts.Contract != "" && c.TokenID != "" {
		c.ExplorerURL = fmt.Sprintf("%s/token/%s?a=%s", strings.TrimRight(r.opts.ExplorerBase, "/"), r.opts.Contract, c.TokenID)
	}
	return c
}

func isHTTP(s string) bool {
	s = strings.ToLower(s)
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

func degrade(c Card, reason, det string) Card {
	c.Status = StatusDegraded
	c.Reason = reason
	c.Detail = det
	return c
}

// CIDOf extracts the metadata CID from a token URI, if it has one.
func CIDOf(uri string) (cid.Cid, bool) {
	l, err := locator.Parse(uri)
	if err != nil || l.Kind() != locator.KindContentAddressed {
		return cid.Undef, false
	}
	return l.CID(), true
}
