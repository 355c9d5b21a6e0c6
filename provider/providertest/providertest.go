// Package providertest holds the behaviour every provider.Provider must share.
// Provider packages call Run from their own tests.
package providertest

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"

	pr "github.com/unkn0wn-root/tally/provider"
)

// Run exercises p against the provider contract. newProvider must return an
// empty provider; Run closes it.
func Run(t *testing.T, newProvider func(t *testing.T) pr.Provider) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(t *testing.T, p pr.Provider)
	}{
		{"GetSetDel", testGetSetDel},
		{"BinaryValues", testBinaryValues},
		{"DelPrefix", testDelPrefix},
		{"IncrBy", testIncrBy},
		{"IncrByOverwritesGarbage", testIncrByGarbage},
		{"ConcurrentIncrBy", testConcurrentIncr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newProvider(t)
			t.Cleanup(func() { _ = p.Close(context.Background()) })
			tc.fn(t, p)
		})
	}
}

func testGetSetDel(t *testing.T, p pr.Provider) {
	ctx := context.Background()
	if _, ok, err := p.Get(ctx, "app.users:1"); ok || err != nil {
		t.Fatalf("empty Get: ok=%v err=%v", ok, err)
	}
	if err := p.Set(ctx, "app.users:1", "ada"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := p.Get(ctx, "app.users:1"); !ok || err != nil || v != "ada" {
		t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
	}
	if err := p.Set(ctx, "app.users:1", "grace"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, _, _ := p.Get(ctx, "app.users:1"); v != "grace" {
		t.Fatalf("overwrite not visible: %q", v)
	}
	if err := p.Del(ctx, "app.users:1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "app.users:1"); ok {
		t.Fatalf("Get after Del should miss")
	}
	if err := p.Del(ctx, "app.users:1"); err != nil {
		t.Fatalf("Del of missing key: %v", err)
	}
}

func testBinaryValues(t *testing.T, p pr.Provider) {
	ctx := context.Background()
	v := string([]byte{0, 1, 2, 0xff, 0xfe, 'T', 'L', 'L', 'Y', 0})
	if err := p.Set(ctx, "bin", v); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := p.Get(ctx, "bin")
	if !ok || err != nil || got != v {
		t.Fatalf("binary value changed: %q ok=%v err=%v", got, ok, err)
	}
}

func testDelPrefix(t *testing.T, p pr.Provider) {
	ctx := context.Background()
	gone := []string{"app.users:1", "app.users:2", "app.users:1/card"}
	kept := []string{"app.usersx:1", "app.followers:1", "other.users:1"}
	for _, k := range append(append([]string{}, gone...), kept...) {
		if err := p.Set(ctx, k, "v"); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	n, err := p.DelPrefix(ctx, "app.users:")
	if err != nil {
		t.Fatalf("DelPrefix: %v", err)
	}
	if n != len(gone) {
		t.Fatalf("removed %d keys, want %d", n, len(gone))
	}
	for _, k := range gone {
		if _, ok, _ := p.Get(ctx, k); ok {
			t.Fatalf("%s survived DelPrefix", k)
		}
	}
	var left []string
	for _, k := range kept {
		if _, ok, _ := p.Get(ctx, k); ok {
			left = append(left, k)
		}
	}
	sort.Strings(left)
	if len(left) != len(kept) {
		t.Fatalf("unrelated keys removed, left=%v", left)
	}
}

func testIncrBy(t *testing.T, p pr.Provider) {
	ctx := context.Background()
	n, err := p.IncrBy(ctx, "app.followers:1", 1)
	if err != nil || n != 1 {
		t.Fatalf("first IncrBy: n=%d err=%v", n, err)
	}
	if v, ok, _ := p.Get(ctx, "app.followers:1"); !ok || v != "1" {
		t.Fatalf("stored text: %q ok=%v", v, ok)
	}
	if n, _ = p.IncrBy(ctx, "app.followers:1", 4); n != 5 {
		t.Fatalf("IncrBy 4: %d", n)
	}
	if n, _ = p.IncrBy(ctx, "app.followers:1", -7); n != -2 {
		t.Fatalf("IncrBy -7: %d", n)
	}
	if n, _ = p.IncrBy(ctx, "app.unread:1", -1); n != -1 {
		t.Fatalf("decrement of missing key: %d", n)
	}
	if err := p.Set(ctx, "app.responses:1", "41"); err != nil {
		t.Fatal(err)
	}
	if n, _ = p.IncrBy(ctx, "app.responses:1", 1); n != 42 {
		t.Fatalf("IncrBy over Set value: %d", n)
	}
}

func testIncrByGarbage(t *testing.T, p pr.Provider) {
	ctx := context.Background()
	if err := p.Set(ctx, "app.followers:9", "not a number"); err != nil {
		t.Fatal(err)
	}
	n, err := p.IncrBy(ctx, "app.followers:9", 1)
	if err != nil || n != 1 {
		t.Fatalf("IncrBy over garbage: n=%d err=%v", n, err)
	}
}

func testConcurrentIncr(t *testing.T, p pr.Provider) {
	ctx := context.Background()
	const workers, per = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				_, _ = p.IncrBy(ctx, "app.followers:c", 1)
			}
		}()
	}
	wg.Wait()
	v, _, _ := p.Get(ctx, "app.followers:c")
	if v != strconv.Itoa(workers*per) {
		t.Fatalf("lost increments: %s", v)
	}
}
