// Package ledger describes the card contract as seen by the rest of the
// module: mint a card, enumerate tokens, and read each token's record.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoSigner      = errors.New("ledger: no signing account configured")
	ErrNoMintEvent   = errors.New("ledger: receipt carries no CardMinted event")
	ErrReverted      = errors.New("ledger: transaction reverted")
	ErrTokenNotFound = errors.New("ledger: token does not exist")
)

// Record is the minimal card data the contract stores per token.
type Record struct {
	TokenID     *big.Int
	Creator     common.Address
	Name        string
	Description string
	CreatedAt   time.Time
}

// Receipt is a confirmed mint.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	// TokenID comes from the CardMinted event.
	TokenID *big.Int
}

// Pending is a submitted, unconfirmed transaction.
type Pending struct {
	Hash common.Hash
	wait func(ctx context.Context) (*Receipt, error)
}

func NewPending(hash common.Hash, wait func(ctx context.Context) (*Receipt, error)) *Pending {
	return &Pending{Hash: hash, wait: wait}
}

// Wait blocks until the transaction is mined or ctx ends.
func (p *Pending) Wait(ctx context.Context) (*Receipt, error) {
	return p.wait(ctx)
}

// Ledger is the card contract. Implementations wrap every failure in a
// card.Error of kind LedgerCallFailed.
type Ledger interface {
	Mint(ctx context.Context, to common.Address, name, description, metadataURI string) (*Pending, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
	TokensOwnedBy(ctx context.Context, owner common.Address) ([]*big.Int, error)
	CardRecord(ctx context.Context, tokenID *big.Int) (Record, error)
	MetadataLocatorOf(ctx context.Context, tokenID *big.Int) (string, error)
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
}
