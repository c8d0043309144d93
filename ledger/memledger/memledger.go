// Package memledger is an in-process card ledger for tests and local
// development. It mirrors the contract: token ids start at zero, each mint
// records the creator, name and description, and the metadata locator is
// returned by MetadataLocatorOf.
package memledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"xdao.co/nftcard/card"
	"xdao.co/nftcard/ledger"
)

type token struct {
	rec   ledger.Record
	owner common.Address
	uri   string
}

type Ledger struct {
	mu     sync.RWMutex
	tokens []token
	now    func() time.Time
	fail   map[string]error
}

var _ ledger.Ledger = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{now: time.Now, fail: map[string]error{}}
}

// WithClock sets the creation timestamp source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// FailOn makes every later call to method return err; a nil err clears it.
// Method names follow the Ledger interface ("Mint", "CardRecord", ...).
func (l *Ledger) FailOn(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.fail, method)
		return
	}
	l.fail[method] = err
}

// FailToken makes reads of a single token fail, as a flaky node would.
func (l *Ledger) FailToken(id int64, err error) {
	l.FailOn(tokenKey(id), err)
}

func tokenKey(id int64) string { return fmt.Sprintf("token:%d", id) }

func (l *Ledger) check(method string, id *big.Int) error {
	if err := l.fail[method]; err != nil {
		return card.WrapError(card.KindLedger, method, err)
	}
	if id != nil && id.IsInt64() {
		if err := l.fail[tokenKey(id.Int64())]; err != nil {
			return card.WrapError(card.KindLedger, method, err)
		}
	}
	return nil
}

func (l *Ledger) Mint(ctx context.Context, to common.Address, name, description, metadataURI string) (*ledger.Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, card.WrapError(card.KindLedger, "Mint", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.check("Mint", nil); err != nil {
		return nil, err
	}
	id := big.NewInt(int64(len(l.tokens)))
	l.tokens = append(l.tokens, token{
		rec: ledger.Record{
			TokenID:     id,
			Creator:     to,
			Name:        name,
			Description: description,
			CreatedAt:   l.now().UTC().Truncate(time.Second),
		},
		owner: to,
		uri:   metadataURI,
	})
	hash := common.BytesToHash(crypto.Keccak256(id.Bytes(), to.Bytes(), []byte(metadataURI)))
	receipt := &ledger.Receipt{
		TxHash:      hash,
		BlockNumber: uint64(len(l.tokens)),
		TokenID:     new(big.Int).Set(id),
	}
	return ledger.NewPending(hash, func(ctx context.Context) (*ledger.Receipt, error) {
		if err := ctx.Err(); err != nil {
			return nil, card.WrapError(card.KindLedger, "wait for Mint", err)
		}
		return receipt, nil
	}), nil
}

func (l *Ledger) TotalSupply(ctx context.Context) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.check("TotalSupply", nil); err != nil {
		return nil, err
	}
	return big.NewInt(int64(len(l.tokens))), nil
}

func (l *Ledger) TokensOwnedBy(ctx context.Context, owner common.Address) ([]*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.check("TokensOwnedBy", nil); err != nil {
		return nil, err
	}
	var ids []*big.Int
	for _, t := range l.tokens {
		if t.owner == owner {
			ids = append(ids, new(big.Int).Set(t.rec.TokenID))
		}
	}
	return ids, nil
}

func (l *Ledger) get(method string, id *big.Int) (token, error) {
	if err := l.check(method, id); err != nil {
		return token{}, err
	}
	if id == nil || id.Sign() < 0 || !id.IsInt64() || id.Int64() >= int64(len(l.tokens)) {
		return token{}, card.WrapError(card.KindLedger, method, ledger.ErrTokenNotFound)
	}
	return l.tokens[id.Int64()], nil
}

func (l *Ledger) CardRecord(ctx context.Context, tokenID *big.Int) (ledger.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, err := l.get("CardRecord", tokenID)
	if err != nil {
		return ledger.Record{}, err
	}
	rec := t.rec
	rec.TokenID = new(big.Int).Set(t.rec.TokenID)
	return rec, nil
}

func (l *Ledger) MetadataLocatorOf(ctx context.Context, tokenID *big.Int) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, err := l.get("MetadataLocatorOf", tokenID)
	if err != nil {
		return "", err
	}
	return t.uri, nil
}

func (l *Ledger) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, err := l.get("OwnerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return t.owner, nil
}

// Transfer moves a token to a new owner.
func (l *Ledger) Transfer(tokenID *big.Int, to common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.get("Transfer", tokenID); err != nil {
		return err
	}
	l.tokens[tokenID.Int64()].owner = to
	return nil
}
