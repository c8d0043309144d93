package memory

import (
	"context"
	"testing"

	"xdao.co/nftcard/storage"
	"xdao.co/nftcard/storage/testkit"
)

func TestMemory_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return New()
	})
}

func TestMemory_CanceledContextIsUnavailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Put(ctx, []byte("x"))
	if !storage.IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestMemory_PutCounts(t *testing.T) {
	c := New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Put(ctx, []byte("same")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if c.Len() != 1 || c.Puts() != 3 {
		t.Fatalf("unexpected counts: len=%d puts=%d", c.Len(), c.Puts())
	}
}
