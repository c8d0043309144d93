package wallet

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func testRoot() []byte {
	root := make([]byte, KeySize)
	for i := range root {
		root[i] = byte(i + 1)
	}
	return root
}

func TestDeriveRoleKeyDeterministic(t *testing.T) {
	root := testRoot()
	a, err := DeriveRoleKey(root, "minter")
	if err != nil {
		t.Fatalf("DeriveRoleKey: %v", err)
	}
	b, err := DeriveRoleKey(root, "minter")
	if err != nil {
		t.Fatalf("DeriveRoleKey: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("expected deterministic derivation")
	}
	c, err := DeriveRoleKey(root, "deployer")
	if err != nil {
		t.Fatalf("DeriveRoleKey: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Fatalf("expected different roles to derive different keys")
	}
	if _, err := DeriveRoleKey(root[:4], "minter"); err == nil {
		t.Fatalf("expected short root to be rejected")
	}
	if _, err := DeriveRoleKey(root, "bad role"); err == nil {
		t.Fatalf("expected invalid role to be rejected")
	}
}

func TestStoreInitDeriveLoad(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	root := testRoot()
	addr, path, err := s.Init("alice", root, false)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		t.Fatalf("unexpected address %q", addr)
	}
	if fi, err := os.Stat(path); err != nil || fi.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 key file, got %v %v", fi, err)
	}
	if _, _, err := s.Init("alice", root, false); err == nil {
		t.Fatalf("expected existing key to be kept without overwrite")
	}

	roleAddr, _, err := s.Derive("alice", "minter", false)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if roleAddr == addr {
		t.Fatalf("role key must differ from root key")
	}

	acct, err := s.Load("", "alice", "minter", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if acct.Address().Hex() != roleAddr {
		t.Fatalf("Load address = %s, want %s", acct.Address().Hex(), roleAddr)
	}

	byFile, err := s.Load("", "", "", filepath.Join(s.Directory, "alice", "root.key"))
	if err != nil {
		t.Fatalf("Load file: %v", err)
	}
	if byFile.Address().Hex() != addr {
		t.Fatalf("file address = %s, want %s", byFile.Address().Hex(), addr)
	}

	if _, err := s.Load("", "", "", ""); err == nil {
		t.Fatalf("expected error without a signer")
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "alice" || entries[0].Address != addr {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if len(entries[0].Roles) != 1 || entries[0].Roles[0] != "minter" {
		t.Fatalf("unexpected roles %+v", entries[0].Roles)
	}
}

func TestListMissingDirectory(t *testing.T) {
	s := &Store{Directory: filepath.Join(t.TempDir(), "nope")}
	entries, err := s.List()
	if err != nil || entries != nil {
		t.Fatalf("expected empty list, got %v %v", entries, err)
	}
}

func TestParseKeyHex(t *testing.T) {
	raw := testRoot()
	got, err := ParseKeyHex("  0x" + hex.EncodeToString(raw) + "\n")
	if err != nil {
		t.Fatalf("ParseKeyHex: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("round trip mismatch")
	}
	if _, err := ParseKeyHex("abcd"); err == nil {
		t.Fatalf("expected short key to fail")
	}
	if _, err := ParseKeyHex(strings.Repeat("00", KeySize)); err == nil {
		t.Fatalf("expected zero key to fail")
	}
}

func TestAccountSigns(t *testing.T) {
	acct, err := NewAccount(testRoot())
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	digest := crypto.Keccak256([]byte("hello"))
	sig, err := acct.SignHash(digest)
	if err != nil {
		t.Fatalf("SignHash: %v", err)
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != acct.Address() {
		t.Fatalf("recovered address mismatch")
	}

	opts, err := acct.TransactOpts(big.NewInt(31337))
	if err != nil {
		t.Fatalf("TransactOpts: %v", err)
	}
	if opts.From != acct.Address() {
		t.Fatalf("TransactOpts.From = %s", opts.From.Hex())
	}
	if _, err := acct.TransactOpts(nil); err == nil {
		t.Fatalf("expected chain id to be required")
	}
}

func TestGenerateKey(t *testing.T) {
	raw, err := GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if _, err := NewAccount(raw); err != nil {
		t.Fatalf("generated key invalid: %v", err)
	}
}
