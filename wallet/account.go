package wallet

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account is an unlocked signing key.
type Account struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewAccount wraps a raw 32-byte private key.
func NewAccount(raw []byte) (*Account, error) {
	key, err := toKey(raw)
	if err != nil {
		return nil, err
	}
	return &Account{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (a *Account) Address() common.Address { return a.address }

// TransactOpts returns a signer bound to chainID for contract transactions.
func (a *Account) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("wallet: chain id required")
	}
	return bind.NewKeyedTransactorWithChainID(a.key, chainID)
}

// SignHash signs a 32-byte digest; the signature is in [R || S || V] form.
func (a *Account) SignHash(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, a.key)
}
