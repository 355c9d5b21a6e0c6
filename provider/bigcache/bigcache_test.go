package bigcache

import (
	"context"
	"testing"

	pr "github.com/unkn0wn-root/tally/provider"
	"github.com/unkn0wn-root/tally/provider/providertest"
)

func TestContract(t *testing.T) {
	providertest.Run(t, func(t *testing.T) pr.Provider {
		p, err := New(Config{Shards: 16, MaxEntriesInWindow: 1000, MaxEntrySize: 256})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return p
	})
}

func TestLen(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{Shards: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close(ctx)

	_ = p.Set(ctx, "a", "1")
	_ = p.Set(ctx, "b", "2")
	if p.Len() != 2 {
		t.Fatalf("Len: %d", p.Len())
	}
	if _, err := p.DelPrefix(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if p.Len() != 1 {
		t.Fatalf("Len after DelPrefix: %d", p.Len())
	}
}
