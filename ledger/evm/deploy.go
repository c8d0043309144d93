package evm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"xdao.co/nftcard/card"
)

var errNoCode = errors.New("no contract code after deployment")

// DeployInfo is printed after a successful deployment.
type DeployInfo struct {
	Network         string    `json:"network"`
	ContractAddress string    `json:"contractAddress"`
	DeployerAddress string    `json:"deployerAddress"`
	DeploymentTime  time.Time `json:"deploymentTime"`
	TransactionHash string    `json:"transactionHash"`
	Name            string    `json:"name,omitempty"`
	Symbol          string    `json:"symbol,omitempty"`
	TotalSupply     string    `json:"totalSupply,omitempty"`
}

// DecodeBytecode accepts creation bytecode as hex, with or without 0x.
func DecodeBytecode(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	b, err := hexutil.Decode("0x" + s)
	if err != nil {
		return nil, fmt.Errorf("bytecode: %w", err)
	}
	if len(b) == 0 {
		return nil, errors.New("bytecode: empty")
	}
	return b, nil
}

// Deploy sends the creation transaction, waits for it to be mined, checks
// that code exists at the new address and reads back the collection
// metadata as a smoke test.
func Deploy(ctx context.Context, backend Backend, signer *bind.TransactOpts, bytecode []byte, network string, opts Options) (*Contract, *DeployInfo, error) {
	if signer == nil {
		return nil, nil, card.WrapError(card.KindLedger, "deploy", errors.New("no signer"))
	}
	txOpts := *signer
	txOpts.Context = ctx

	addr, tx, _, err := bind.DeployContract(&txOpts, parsedABI, bytecode, backend)
	if err != nil {
		return nil, nil, card.WrapError(card.KindLedger, "deploy", err)
	}
	opts.Signer = signer
	c := New(addr, backend, opts)
	c.log.Info().Str("tx", tx.Hash().Hex()).Msg("deployment submitted")

	if _, err := c.waitDeployed(ctx, tx.Hash()); err != nil {
		return nil, nil, card.WrapError(card.KindLedger, "wait for deployment", err)
	}
	code, err := backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, nil, card.WrapError(card.KindLedger, "verify deployment", err)
	}
	if len(code) == 0 {
		return nil, nil, card.WrapError(card.KindLedger, "verify deployment", errNoCode)
	}

	info := &DeployInfo{
		Network:         network,
		ContractAddress: addr.Hex(),
		DeployerAddress: signer.From.Hex(),
		DeploymentTime:  time.Now().UTC(),
		TransactionHash: tx.Hash().Hex(),
	}
	// The smoke test is informational; a failure is logged, not fatal.
	if name, err := c.Name(ctx); err == nil {
		info.Name = name
	} else {
		c.log.Warn().Err(err).Msg("name() failed after deployment")
	}
	if sym, err := c.Symbol(ctx); err == nil {
		info.Symbol = sym
	}
	if n, err := c.TotalSupply(ctx); err == nil {
		info.TotalSupply = n.String()
	}
	return c, info, nil
}

func (c *Contract) waitDeployed(ctx context.Context, hash common.Hash) (common.Address, error) {
	b := newPollBackoff(c.opts)
	for {
		r, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			if r.ContractAddress == (common.Address{}) {
				return common.Address{}, errors.New("receipt has no contract address")
			}
			return r.ContractAddress, nil
		}
		if err := sleep(ctx, b.Duration()); err != nil {
			return common.Address{}, err
		}
	}
}
