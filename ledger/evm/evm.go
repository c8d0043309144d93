// Package evm binds the card contract on an EVM chain through go-ethereum.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"xdao.co/nftcard/card"
	"xdao.co/nftcard/ledger"
	"xdao.co/nftcard/metrics"
)

// Backend is what the binding needs from a node; *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Options struct {
	// Signer signs mint transactions. Read-only when nil.
	Signer *bind.TransactOpts
	// PollMin and PollMax bound the receipt polling interval.
	PollMin time.Duration
	PollMax time.Duration

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Contract is a ledger.Ledger over a deployed card contract.
type Contract struct {
	address  common.Address
	backend  Backend
	contract *bind.BoundContract
	opts     Options
	log      zerolog.Logger
}

var _ ledger.Ledger = (*Contract)(nil)

func New(address common.Address, backend Backend, opts Options) *Contract {
	if opts.PollMin <= 0 {
		opts.PollMin = 500 * time.Millisecond
	}
	if opts.PollMax <= 0 {
		opts.PollMax = 10 * time.Second
	}
	return &Contract{
		address:  address,
		backend:  backend,
		contract: bind.NewBoundContract(address, parsedABI, backend, backend, backend),
		opts:     opts,
		log:      opts.Logger.With().Str("component", "ledger").Str("contract", address.Hex()).Logger(),
	}
}

func (c *Contract) Address() common.Address { return c.address }

func (c *Contract) Mint(ctx context.Context, to common.Address, name, description, metadataURI string) (*ledger.Pending, error) {
	const method = "mintCard"
	if c.opts.Signer == nil {
		return nil, c.fail(method, ledger.ErrNoSigner)
	}
	opts := *c.opts.Signer
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, method, to, name, description, metadataURI)
	if err != nil {
		return nil, c.fail(method, err)
	}
	c.opts.Metrics.ObserveLedgerCall(method, nil)
	c.log.Info().Str("tx", tx.Hash().Hex()).Str("to", to.Hex()).Msg("mint submitted")

	hash := tx.Hash()
	return ledger.NewPending(hash, func(ctx context.Context) (*ledger.Receipt, error) {
		r, err := c.waitMined(ctx, hash)
		if err != nil {
			return nil, card.WrapError(card.KindLedger, "wait for "+method, err)
		}
		return r, nil
	}), nil
}

// waitMined polls for the receipt with capped exponential backoff.
func (c *Contract) waitMined(ctx context.Context, hash common.Hash) (*ledger.Receipt, error) {
	b := newPollBackoff(c.opts)
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return receiptFrom(receipt)
		case !errors.Is(err, ethereum.NotFound):
			c.log.Debug().Err(err).Str("tx", hash.Hex()).Msg("receipt lookup failed")
		}
		if err := sleep(ctx, b.Duration()); err != nil {
			return nil, err
		}
	}
}

func newPollBackoff(opts Options) *backoff.Backoff {
	return &backoff.Backoff{Min: opts.PollMin, Max: opts.PollMax, Factor: 1.5, Jitter: true}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func receiptFrom(r *types.Receipt) (*ledger.Receipt, error) {
	out := &ledger.Receipt{TxHash: r.TxHash, GasUsed: r.GasUsed}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.Status != types.ReceiptStatusSuccessful {
		return out, fmt.Errorf("%w: %s", ledger.ErrReverted, r.TxHash.Hex())
	}
	id, err := MintedTokenID(r.Logs)
	if err != nil {
		return out, err
	}
	out.TokenID = id
	return out, nil
}

// MintedTokenID extracts the token id from the first CardMinted log.
func MintedTokenID(logs []*types.Log) (*big.Int, error) {
	ev := parsedABI.Events["CardMinted"]
	for _, l := range logs {
		if l == nil || len(l.Topics) < 2 || l.Topics[0] != ev.ID {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[1].Bytes()), nil
	}
	return nil, ledger.ErrNoMintEvent
}

func (c *Contract) TotalSupply(ctx context.Context) (*big.Int, error) {
	var n *big.Int
	if err := c.call(ctx, &n, "totalSupply"); err != nil {
		return nil, err
	}
	return n, nil
}

func (c *Contract) TokensOwnedBy(ctx context.Context, owner common.Address) ([]*big.Int, error) {
	var ids []*big.Int
	if err := c.call(ctx, &ids, "getTokensByOwner", owner); err != nil {
		return nil, err
	}
	return ids, nil
}

type cardInfo struct {
	Creator     common.Address
	Name        string
	Description string
	CreatedAt   *big.Int
}

func (c *Contract) CardRecord(ctx context.Context, tokenID *big.Int) (ledger.Record, error) {
	var out []any
	if err := c.callRaw(ctx, &out, "getCardInfo", tokenID); err != nil {
		return ledger.Record{}, err
	}
	info := *abi.ConvertType(out[0], new(cardInfo)).(*cardInfo)
	rec := ledger.Record{
		TokenID:     new(big.Int).Set(tokenID),
		Creator:     info.Creator,
		Name:        info.Name,
		Description: info.Description,
	}
	if info.CreatedAt != nil {
		rec.CreatedAt = time.Unix(info.CreatedAt.Int64(), 0).UTC()
	}
	return rec, nil
}

func (c *Contract) MetadataLocatorOf(ctx context.Context, tokenID *big.Int) (string, error) {
	var uri string
	if err := c.call(ctx, &uri, "tokenURI", tokenID); err != nil {
		return "", err
	}
	return uri, nil
}

func (c *Contract) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	var owner common.Address
	if err := c.call(ctx, &owner, "ownerOf", tokenID); err != nil {
		return common.Address{}, err
	}
	return owner, nil
}

// Name and Symbol read the ERC-721 collection metadata.
func (c *Contract) Name(ctx context.Context) (string, error) {
	var s string
	err := c.call(ctx, &s, "name")
	return s, err
}

func (c *Contract) Symbol(ctx context.Context) (string, error) {
	var s string
	err := c.call(ctx, &s, "symbol")
	return s, err
}

// call runs a view method with a single return value and converts it into out.
func (c *Contract) call(ctx context.Context, out any, method string, params ...any) error {
	var res []any
	if err := c.callRaw(ctx, &res, method, params...); err != nil {
		return err
	}
	if len(res) != 1 {
		return c.fail(method, fmt.Errorf("expected 1 return value, got %d", len(res)))
	}
	// ConvertType writes through the out pointer.
	abi.ConvertType(res[0], out)
	return nil
}

func (c *Contract) callRaw(ctx context.Context, out *[]any, method string, params ...any) error {
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, out, method, params...)
	if err != nil {
		return c.fail(method, err)
	}
	c.opts.Metrics.ObserveLedgerCall(method, nil)
	return nil
}

func (c *Contract) fail(method string, err error) error {
	c.opts.Metrics.ObserveLedgerCall(method, err)
	return card.WrapError(card.KindLedger, method, err)
}
