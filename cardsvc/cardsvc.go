// Package cardsvc composes the publisher, the ledger and the resolver into
// the application's use cases: minting a card and browsing the gallery.
package cardsvc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"xdao.co/nftcard/card"
	"xdao.co/nftcard/ledger"
	"xdao.co/nftcard/publisher"
	"xdao.co/nftcard/resolver"
)

const (
	DefaultConfirmTimeout  = 5 * time.Minute
	DefaultReadConcurrency = 8
)

type Options struct {
	// ConfirmTimeout bounds the wait for a mint to be mined.
	ConfirmTimeout time.Duration
	// ReadConcurrency caps parallel ledger reads while listing cards.
	ReadConcurrency int
	Logger          zerolog.Logger
}

type Service struct {
	pub  *publisher.Publisher
	led  ledger.Ledger
	res  *resolver.Resolver
	opts Options
	log  zerolog.Logger
}

func New(pub *publisher.Publisher, led ledger.Ledger, res *resolver.Resolver, opts Options) *Service {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.ReadConcurrency <= 0 {
		opts.ReadConcurrency = DefaultReadConcurrency
	}
	return &Service{
		pub:  pub,
		led:  led,
		res:  res,
		opts: opts,
		log:  opts.Logger.With().Str("component", "cardsvc").Logger(),
	}
}

// Minted is a confirmed mint.
type Minted struct {
	TokenID     *big.Int
	TxHash      common.Hash
	BlockNumber uint64
	Publication *publisher.Publication
}

// Mint publishes the card content and then records it on the ledger for
// account. Nothing reaches the ledger unless publication succeeded.
func (s *Service) Mint(ctx context.Context, in card.Input, account common.Address) (*Minted, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	pub, err := s.pub.Publish(ctx, in, account)
	if err != nil {
		return nil, err
	}
	// The ledger keeps the display name itself; the metadata carries the
	// derived card name.
	pending, err := s.led.Mint(ctx, account, in.DisplayName, in.Bio, pub.MetadataURI)
	if err != nil {
		return nil, asLedgerError("mint", err)
	}
	s.log.Info().Str("tx", pending.Hash.Hex()).Str("uri", pub.MetadataURI).Msg("mint pending")

	wctx, cancel := context.WithTimeout(ctx, s.opts.ConfirmTimeout)
	defer cancel()
	receipt, err := pending.Wait(wctx)
	if err != nil {
		return nil, asLedgerError("confirm mint", err)
	}
	s.log.Info().
		Str("tx", receipt.TxHash.Hex()).
		Str("token", receipt.TokenID.String()).
		Uint64("block", receipt.BlockNumber).
		Msg("card minted")
	return &Minted{
		TokenID:     receipt.TokenID,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		Publication: pub,
	}, nil
}

func asLedgerError(op string, err error) error {
	if card.IsKind(err, card.KindLedger) {
		return err
	}
	return card.WrapError(card.KindLedger, op, err)
}

// OnChain reads the ledger's view of one token. owner is used as-is when
// set, otherwise it is read from the ledger.
func (s *Service) OnChain(ctx context.Context, tokenID *big.Int, owner common.Address) (resolver.OnChain, error) {
	rec, err := s.led.CardRecord(ctx, tokenID)
	if err != nil {
		return resolver.OnChain{}, asLedgerError("card record", err)
	}
	uri, err := s.led.MetadataLocatorOf(ctx, tokenID)
	if err != nil {
		return resolver.OnChain{}, asLedgerError("token uri", err)
	}
	if owner == (common.Address{}) {
		if owner, err = s.led.OwnerOf(ctx, tokenID); err != nil {
			return resolver.OnChain{}, asLedgerError("owner of", err)
		}
	}
	return resolver.OnChain{
		TokenID:     new(big.Int).Set(tokenID),
		Name:        rec.Name,
		Description: rec.Description,
		Creator:     rec.Creator,
		Owner:       owner,
		CreatedAt:   rec.CreatedAt,
		MetadataURI: uri,
	}, nil
}

// Card resolves a single token.
func (s *Service) Card(ctx context.Context, tokenID *big.Int) (resolver.Card, error) {
	oc, err := s.OnChain(ctx, tokenID, common.Address{})
	if err != nil {
		return resolver.Card{}, err
	}
	return s.res.Resolve(ctx, oc), nil
}

// OwnedCards resolves the tokens held by owner, in ledger order.
func (s *Service) OwnedCards(ctx context.Context, owner common.Address) ([]resolver.Card, error) {
	ids, err := s.led.TokensOwnedBy(ctx, owner)
	if err != nil {
		return nil, asLedgerError("tokens by owner", err)
	}
	records := s.readAll(ctx, ids, owner)
	return s.res.ResolveAll(ctx, records), nil
}

// AllCards resolves every minted token, newest first. Tokens whose ledger
// reads fail are left out.
func (s *Service) AllCards(ctx context.Context) ([]resolver.Card, error) {
	n, err := s.led.TotalSupply(ctx)
	if err != nil {
		return nil, asLedgerError("total supply", err)
	}
	if !n.IsInt64() {
		return nil, card.WrapError(card.KindLedger, "total supply", fmt.Errorf("supply %s out of range", n))
	}
	ids := make([]*big.Int, 0, n.Int64())
	for i := n.Int64() - 1; i >= 0; i-- {
		ids = append(ids, big.NewInt(i))
	}
	records := s.readAll(ctx, ids, common.Address{})
	return s.res.ResolveAll(ctx, records), nil
}

// readAll reads ledger records concurrently, keeping the order of ids and
// skipping tokens that fail.
func (s *Service) readAll(ctx context.Context, ids []*big.Int, owner common.Address) []resolver.OnChain {
	out := make([]resolver.OnChain, len(ids))
	ok := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ReadConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			oc, err := s.OnChain(gctx, id, owner)
			if err != nil {
				s.log.Warn().Err(err).Str("token", id.String()).Msg("skipping token")
				return nil
			}
			out[i], ok[i] = oc, true
			return nil
		})
	}
	_ = g.Wait()

	records := make([]resolver.OnChain, 0, len(ids))
	for i := range out {
		if ok[i] {
			records = append(records, out[i])
		}
	}
	return records
}
