package tally

import (
	"fmt"
)

// WriteBackError reports that reconciliation picked the cached value but could
// not persist it through the row-update gateway. The cache still holds the
// winning value, so the next reconciliation retries the write.
type WriteBackError struct {
	Counter string
	ID      string
	Column  string
	Value   int64
	Err     error
}

func (e *WriteBackError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("write back %s=%d for %s %q: %v", e.Column, e.Value, e.Counter, e.ID, e.Err)
	}
	return fmt.Sprintf("write back %d for %s %q: %v", e.Value, e.Counter, e.ID, e.Err)
}

func (e *WriteBackError) Unwrap() error { return e.Err }

// RowReadError reports that the durable value could not be read, so nothing
// was reconciled.
type RowReadError struct {
	Counter string
	ID      string
	Err     error
}

func (e *RowReadError) Error() string {
	return fmt.Sprintf("read row for %s %q: %v", e.Counter, e.ID, e.Err)
}

func (e *RowReadError) Unwrap() error { return e.Err }

// UnknownCounterError is returned for names that were not registered with the Reconciler.
type UnknownCounterError struct {
	Name string
}

func (e *UnknownCounterError) Error() string {
	return fmt.Sprintf("tally: unknown counter %q", e.Name)
}
