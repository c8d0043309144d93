package cache

import (
	"context"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"
)

type MemoryConfig struct {
	// LifeWindow is how long an entry lives before bigcache may evict it.
	LifeWindow time.Duration
	// MaxSizeMB caps total memory; 0 means no limit.
	MaxSizeMB int
	// MaxEntrySize is the expected entry size in bytes, used for
	// preallocation only.
	MaxEntrySize int
}

// Memory is an in-process cache backed by bigcache.
type Memory struct {
	c *bigcache.BigCache
}

var _ Cache = (*Memory)(nil)

func NewMemory(ctx context.Context, cfg MemoryConfig) (*Memory, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = time.Hour
	}
	bc := bigcache.DefaultConfig(cfg.LifeWindow)
	bc.Shards = 64
	bc.CleanWindow = cfg.LifeWindow / 2
	bc.HardMaxCacheSize = cfg.MaxSizeMB
	if cfg.MaxEntrySize > 0 {
		bc.MaxEntrySize = cfg.MaxEntrySize
	}
	bc.Verbose = false

	c, err := bigcache.New(ctx, bc)
	if err != nil {
		return nil, err
	}
	return &Memory{c: c}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := m.c.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	return m.c.Set(key, value)
}

func (m *Memory) Len() int { return m.c.Len() }

func (m *Memory) Close() error { return m.c.Close() }
