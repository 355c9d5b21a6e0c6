package tally

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeCounter is one counter with a durable row and an optional cached copy.
type fakeCounter struct {
	row       int64
	cached    int64
	hasCache  bool
	rowWrites int
	cacheSets int
	failWrite error
	failRead  error
}

func (f *fakeCounter) ops() Ops {
	return Ops{
		ReadRow: func(context.Context) (int64, error) {
			if f.failRead != nil {
				return 0, f.failRead
			}
			return f.row, nil
		},
		ReadCache: func(context.Context) (int64, bool) { return f.cached, f.hasCache },
		WriteRow: func(_ context.Context, v int64) error {
			if f.failWrite != nil {
				return f.failWrite
			}
			f.rowWrites++
			f.row = v
			return nil
		},
		WriteCache: func(_ context.Context, v int64) bool {
			f.cacheSets++
			f.cached, f.hasCache = v, true
			return true
		},
	}
}

func TestReconcileConvergesToMax(t *testing.T) {
	ctx := context.Background()
	vals := []int64{-3, 0, 1, 5, 1 << 40}
	for _, row := range vals {
		for _, cached := range vals {
			t.Run(fmt.Sprintf("row=%d/cached=%d", row, cached), func(t *testing.T) {
				f := &fakeCounter{row: row, cached: cached, hasCache: true}
				res, err := Reconcile(ctx, f.ops())
				if err != nil {
					t.Fatalf("Reconcile: %v", err)
				}
				want := max(row, cached)
				if res.Value != want {
					t.Fatalf("value: got %d want %d", res.Value, want)
				}
				if f.row != want || f.cached != want {
					t.Fatalf("sides not converged: row=%d cached=%d want %d", f.row, f.cached, want)
				}
				if row > cached {
					if res.Outcome != OutcomeCacheRefreshed || f.cacheSets != 1 || f.rowWrites != 0 {
						t.Fatalf("row ahead: outcome=%v cacheSets=%d rowWrites=%d", res.Outcome, f.cacheSets, f.rowWrites)
					}
				} else {
					if res.Outcome != OutcomeRowWritten || f.rowWrites != 1 || f.cacheSets != 0 {
						t.Fatalf("cache ahead/equal: outcome=%v cacheSets=%d rowWrites=%d", res.Outcome, f.cacheSets, f.rowWrites)
					}
				}
			})
		}
	}
}

func TestReconcileNoCacheWritesNothing(t *testing.T) {
	f := &fakeCounter{row: 9}
	res, err := Reconcile(context.Background(), f.ops())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Value != 9 || res.Outcome != OutcomeNoCache || res.Hit {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.rowWrites != 0 || f.cacheSets != 0 {
		t.Fatalf("bootstrap must not write: rowWrites=%d cacheSets=%d", f.rowWrites, f.cacheSets)
	}
}

// A cached zero is a value, not an absence.
func TestReconcileCachedZeroIsAValue(t *testing.T) {
	f := &fakeCounter{row: 0, cached: 0, hasCache: true}
	res, err := Reconcile(context.Background(), f.ops())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Outcome != OutcomeRowWritten || !res.Hit {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestReconcileIsAFixedPoint(t *testing.T) {
	ctx := context.Background()
	f := &fakeCounter{row: 4, cached: 11, hasCache: true}
	first, err := Reconcile(ctx, f.ops())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := Reconcile(ctx, f.ops())
		if err != nil {
			t.Fatalf("Reconcile #%d: %v", i, err)
		}
		if again.Value != first.Value || f.row != 11 || f.cached != 11 {
			t.Fatalf("not idempotent: %+v row=%d cached=%d", again, f.row, f.cached)
		}
	}
}

func TestReconcileWriteFailureStillReturnsCached(t *testing.T) {
	boom := errors.New("db down")
	f := &fakeCounter{row: 2, cached: 6, hasCache: true, failWrite: boom}
	res, err := Reconcile(context.Background(), f.ops())
	if !errors.Is(err, boom) {
		t.Fatalf("want write error, got %v", err)
	}
	if res.Value != 6 || res.Outcome != OutcomeRowWritten {
		t.Fatalf("caller must still see the cached winner: %+v", res)
	}
	if f.cached != 6 {
		t.Fatalf("cache must keep the winner for a retry, got %d", f.cached)
	}
}

func TestReconcileRowReadFailure(t *testing.T) {
	boom := errors.New("no row")
	f := &fakeCounter{cached: 6, hasCache: true, failRead: boom}
	if _, err := Reconcile(context.Background(), f.ops()); !errors.Is(err, boom) {
		t.Fatalf("want read error, got %v", err)
	}
	if f.rowWrites != 0 || f.cacheSets != 0 {
		t.Fatalf("nothing should be written when the row cannot be read")
	}
}

func TestOutcomeString(t *testing.T) {
	cases := map[Outcome]string{
		OutcomeNoCache:        "no_cache",
		OutcomeCacheRefreshed: "cache_refreshed",
		OutcomeRowWritten:     "row_written",
		Outcome(0):            "outcome(0)",
	}
	for o, want := range cases {
		if o.String() != want {
			t.Fatalf("%d: got %q want %q", o, o.String(), want)
		}
	}
}
