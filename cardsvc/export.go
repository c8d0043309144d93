package cardsvc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ipfs/go-cid"

	"xdao.co/nftcard/card"
	"xdao.co/nftcard/resolver"
	"xdao.co/nftcard/storage"
)

// Blocks are the stored objects behind one token.
type Blocks struct {
	TokenID  *big.Int
	Metadata cid.Cid
	// Image is cid.Undef when the card image is inline (the default
	// avatar) or lives outside the content store.
	Image cid.Cid
}

// Labels names the blocks as card-<id>/metadata and card-<id>/image.
func (b Blocks) Labels() map[string]cid.Cid {
	prefix := "card-" + b.TokenID.String() + "/"
	out := map[string]cid.Cid{prefix + "metadata": b.Metadata}
	if b.Image.Defined() {
		out[prefix+"image"] = b.Image
	}
	return out
}

// CIDs lists the defined blocks, metadata first.
func (b Blocks) CIDs() []cid.Cid {
	if b.Image.Defined() {
		return []cid.Cid{b.Metadata, b.Image}
	}
	return []cid.Cid{b.Metadata}
}

// Blocks finds the metadata block through the token URI and the image
// block through the metadata record read from cas.
func (s *Service) Blocks(ctx context.Context, cas storage.CAS, tokenID *big.Int) (Blocks, error) {
	uri, err := s.led.MetadataLocatorOf(ctx, tokenID)
	if err != nil {
		return Blocks{}, asLedgerError("token uri", err)
	}
	metaID, ok := resolver.CIDOf(uri)
	if !ok {
		return Blocks{}, card.NewError(card.KindFetch, "card blocks",
			fmt.Sprintf("token %s metadata %q is not content-addressed", tokenID, uri))
	}
	body, err := cas.Get(ctx, metaID)
	if err != nil {
		return Blocks{}, card.WrapError(card.KindStorage, "read metadata "+metaID.String(), err)
	}
	meta, err := card.ParseMetadata(body)
	if err != nil {
		return Blocks{}, card.WrapError(card.KindParse, "card blocks", err)
	}
	out := Blocks{TokenID: new(big.Int).Set(tokenID), Metadata: metaID}
	if imgID, ok := resolver.CIDOf(meta.Image); ok {
		out.Image = imgID
	}
	return out, nil
}
