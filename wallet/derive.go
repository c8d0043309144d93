package wallet

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of a raw secp256k1 private key.
const KeySize = 32

const deriveSalt = "xdao-nftcard-wallet-v1"

// DeriveRoleKey deterministically derives a role key from a root key with
// HKDF-SHA256. Outputs that are not valid secp256k1 scalars are skipped by
// bumping a counter in the info string.
func DeriveRoleKey(root []byte, role string) ([]byte, error) {
	if len(root) != KeySize {
		return nil, fmt.Errorf("root key must be %d bytes", KeySize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	for i := 0; i < 16; i++ {
		info := "role:" + role
		if i > 0 {
			info += "#" + strconv.Itoa(i)
		}
		out := make([]byte, KeySize)
		if _, err := io.ReadFull(hkdf.New(sha256.New, root, []byte(deriveSalt), []byte(info)), out); err != nil {
			return nil, err
		}
		if _, err := crypto.ToECDSA(out); err == nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("could not derive a valid key for role %q", role)
}

// AddressOf returns the account address for a raw private key.
func AddressOf(raw []byte) (string, error) {
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func toKey(raw []byte) (*ecdsa.PrivateKey, error) {
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid secp256k1 key: %w", err)
	}
	return key, nil
}
