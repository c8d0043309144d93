// Package cache stores immutable content bytes keyed by CID string.
//
// Entries never go stale: a CID names exactly one byte string. Eviction is
// only a memory bound.
package cache

import "context"

// Cache is safe for concurrent use. Errors from Get are treated by callers
// as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}
