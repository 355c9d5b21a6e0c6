package tally

import (
	"context"
	"fmt"
)

// Outcome says which branch a reconciliation took.
type Outcome uint8

const (
	// OutcomeNoCache: nothing cached; the row value was returned untouched.
	OutcomeNoCache Outcome = iota + 1
	// OutcomeCacheRefreshed: the row was ahead; its value was written into the cache.
	OutcomeCacheRefreshed
	// OutcomeRowWritten: the cache was ahead or equal; its value was persisted.
	OutcomeRowWritten
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoCache:
		return "no_cache"
	case OutcomeCacheRefreshed:
		return "cache_refreshed"
	case OutcomeRowWritten:
		return "row_written"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Ops is the capability record one reconciliation works through.
// ReadCache reports ok=false when there is no cached value, which is not the same as 0.
// WriteCache is fail-open; WriteRow is the durable path and its error is returned.
type Ops struct {
	ReadRow    func(ctx context.Context) (int64, error)
	ReadCache  func(ctx context.Context) (int64, bool)
	WriteRow   func(ctx context.Context, value int64) error
	WriteCache func(ctx context.Context, value int64) bool
}

// Result of a reconciliation. Value is always max(row, cached) when a cached
// value existed, or the row value otherwise.
type Result struct {
	Value   int64
	Row     int64
	Cached  int64
	Hit     bool // a cached value existed
	Outcome Outcome
	// CacheWritten is false when the refresh branch could not write the cache.
	CacheWritten bool
}

// Reconcile converges the durable and cached copies of one counter:
//
//	no cached value  -> return row, write nothing
//	row > cached     -> write row into the cache, return row
//	cached >= row    -> persist cached through WriteRow, return cached
//
// Neither side is ever lowered. When WriteRow fails the cached value is still
// returned, together with the error, and the cache keeps the winner so a later
// call retries the write.
func Reconcile(ctx context.Context, ops Ops) (Result, error) {
	row, err := ops.ReadRow(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Row: row}

	cached, ok := ops.ReadCache(ctx)
	if !ok {
		res.Value = row
		res.Outcome = OutcomeNoCache
		return res, nil
	}
	res.Hit = true
	res.Cached = cached

	if row > cached {
		res.Value = row
		res.Outcome = OutcomeCacheRefreshed
		res.CacheWritten = ops.WriteCache(ctx, row)
		return res, nil
	}

	res.Value = cached
	res.Outcome = OutcomeRowWritten
	if err := ops.WriteRow(ctx, cached); err != nil {
		return res, err
	}
	return res, nil
}
