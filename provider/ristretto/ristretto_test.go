package ristretto

import (
	"context"
	"strconv"
	"testing"

	pr "github.com/unkn0wn-root/tally/provider"
	"github.com/unkn0wn-root/tally/provider/providertest"
)

func TestContract(t *testing.T) {
	providertest.Run(t, func(t *testing.T) pr.Provider {
		p, err := New(Config{MaxEntries: 10_000})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return p
	})
}

func TestIndexStaysBoundedUnderEviction(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{MaxEntries: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	for i := 0; i < 1000; i++ {
		_ = p.Set(ctx, "app.users:"+strconv.Itoa(i), "v") // rejections are fine here
	}
	// every key the index still holds must be the one the cache serves
	indexed := 0
	p.index.Range(func(k, _ any) bool {
		indexed++
		return true
	})
	if indexed > 64+1 {
		t.Fatalf("index holds %d keys for a 64-entry cache", indexed)
	}

	n, err := p.DelPrefix(ctx, "app.users:")
	if err != nil {
		t.Fatalf("DelPrefix: %v", err)
	}
	if n != indexed {
		t.Fatalf("DelPrefix removed %d, index had %d", n, indexed)
	}
	for i := 0; i < 1000; i++ {
		if _, ok, _ := p.Get(ctx, "app.users:"+strconv.Itoa(i)); ok {
			t.Fatalf("key %d survived DelPrefix", i)
		}
	}
}

func TestNewRequiresCapacity(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for zero MaxEntries")
	}
}
