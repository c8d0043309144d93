package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Store keeps keys under Directory as <name>/root.key and
// <name>/roles/<role>.key, each a single hex line.
type Store struct {
	Directory string
}

type Entry struct {
	Name    string
	Address string
	Roles   []string
}

func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".xdao", "nftcard", "keys"), nil
}

// Open returns a Store rooted at dir, or at DefaultDirectory when dir is empty.
func Open(dir string) (*Store, error) {
	if dir == "" {
		var err error
		dir, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &Store{Directory: dir}, nil
}

func (s *Store) rootPath(name string) string {
	return filepath.Join(s.Directory, name, "root.key")
}

func (s *Store) rolePath(name, role string) string {
	return filepath.Join(s.Directory, name, "roles", role+".key")
}

func checkIdent(kind, v string) error {
	if v == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	for _, c := range v {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %s", c, kind)
	}
	return nil
}

func CheckName(name string) error { return checkIdent("name", name) }

func CheckRole(role string) error { return checkIdent("role", role) }

// ParseKeyHex decodes a hex private key, with or without 0x.
func ParseKeyHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("expected key length of %d bytes, got %d", KeySize, len(raw))
	}
	if _, err := toKey(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GenerateKey returns a fresh random private key.
func GenerateKey(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	for {
		raw := make([]byte, KeySize)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, err
		}
		if _, err := crypto.ToECDSA(raw); err == nil {
			return raw, nil
		}
	}
}

func writeKey(path string, raw []byte, overwrite bool) error {
	if len(raw) != KeySize {
		return fmt.Errorf("expected key length of %d bytes", KeySize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(hex.EncodeToString(raw) + "\n"); err != nil {
		return err
	}
	return f.Close()
}

func readKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseKeyHex(string(data))
}

// Init stores raw as the root key for name and returns its address.
func (s *Store) Init(name string, raw []byte, overwrite bool) (address, path string, err error) {
	if err := CheckName(name); err != nil {
		return "", "", err
	}
	if _, err := toKey(raw); err != nil {
		return "", "", err
	}
	path = s.rootPath(name)
	if err := writeKey(path, raw, overwrite); err != nil {
		return "", "", err
	}
	address, err = AddressOf(raw)
	return address, path, err
}

// Derive writes the role key for name derived from its root key.
func (s *Store) Derive(name, role string, overwrite bool) (address, path string, err error) {
	if err := CheckName(name); err != nil {
		return "", "", err
	}
	if err := CheckRole(role); err != nil {
		return "", "", err
	}
	root, err := readKey(s.rootPath(name))
	if err != nil {
		return "", "", err
	}
	raw, err := DeriveRoleKey(root, role)
	if err != nil {
		return "", "", err
	}
	path = s.rolePath(name, role)
	if err := writeKey(path, raw, overwrite); err != nil {
		return "", "", err
	}
	address, err = AddressOf(raw)
	return address, path, err
}

// Address returns the address of the root key, or of the role key when role is set.
func (s *Store) Address(name, role string) (string, error) {
	raw, err := s.load(name, role)
	if err != nil {
		return "", err
	}
	return AddressOf(raw)
}

func (s *Store) load(name, role string) ([]byte, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	if role == "" {
		return readKey(s.rootPath(name))
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	return readKey(s.rolePath(name, role))
}

// Load resolves a signing account from, in order: an explicit hex key, a key
// file, or a stored name and optional role.
func (s *Store) Load(keyHex, name, role, keyFile string) (*Account, error) {
	var raw []byte
	var err error
	switch {
	case keyHex != "":
		raw, err = ParseKeyHex(keyHex)
	case keyFile != "":
		raw, err = readKey(keyFile)
	case name != "":
		raw, err = s.load(name, role)
	default:
		return nil, errors.New("no signer provided")
	}
	if err != nil {
		return nil, err
	}
	return NewAccount(raw)
}

func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []Entry
	for _, name := range names {
		entry := Entry{Name: name}
		if addr, err := s.Address(name, ""); err == nil {
			entry.Address = addr
		}
		if roleEntries, err := os.ReadDir(filepath.Join(s.Directory, name, "roles")); err == nil {
			for _, r := range roleEntries {
				if !r.IsDir() && strings.HasSuffix(r.Name(), ".key") {
					entry.Roles = append(entry.Roles, strings.TrimSuffix(r.Name(), ".key"))
				}
			}
			sort.Strings(entry.Roles)
		}
		out = append(out, entry)
	}
	return out, nil
}
