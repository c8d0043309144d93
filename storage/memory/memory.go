// Package memory is an in-process CAS, used by tests and single-process
// development setups.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/nftcard/cidutil"
	"xdao.co/nftcard/storage"
)

// CAS keeps objects in a map keyed by CID string. It is safe for concurrent use.
type CAS struct {
	mu sync.RWMutex
	m  map[string][]byte

	puts int
}

var _ storage.CAS = (*CAS)(nil)

func New() *CAS {
	return &CAS{m: make(map[string][]byte)}
}

func (c *CAS) Put(ctx context.Context, b []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, storage.Unavailable("memory", err)
	}
	id, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return cid.Undef, err
	}
	k := id.String()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	if existing, ok := c.m[k]; ok {
		if !bytes.Equal(existing, b) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	}
	c.m[k] = append([]byte(nil), b...)
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	if err := ctx.Err(); err != nil {
		return nil, storage.Unavailable("memory", err)
	}
	c.mu.RLock()
	b, ok := c.m[id.String()]
	c.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := append([]byte(nil), b...)
	if !cidutil.Matches(id, out) {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (c *CAS) Has(_ context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.m[id.String()]
	return ok
}

// Len returns the number of distinct objects stored.
func (c *CAS) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Puts returns the number of Put calls observed, including idempotent repeats.
func (c *CAS) Puts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.puts
}
