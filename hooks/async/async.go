// Package asynchook moves hook delivery off the request path.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{DiscardEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker, queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := tally.NewCache(tally.Options{Provider: p, Hooks: hooks})
//
// Events are dropped, not queued without bound, when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/tally"
)

type Hooks struct {
	inner   tally.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ tally.Hooks = (*Hooks)(nil)

func New(inner tally.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) BackendError(op, key string, err error) {
	h.try(func() { h.inner.BackendError(op, key, err) })
}

func (h *Hooks) TimedDiscarded(key, reason string) {
	h.try(func() { h.inner.TimedDiscarded(key, reason) })
}

func (h *Hooks) Reconciled(counter string, o tally.Outcome, v int64) {
	h.try(func() { h.inner.Reconciled(counter, o, v) })
}

func (h *Hooks) WriteBackFailed(counter, id string, err error) {
	h.try(func() { h.inner.WriteBackFailed(counter, id, err) })
}

func (h *Hooks) InvalidateFailed(key string, err error) {
	h.try(func() { h.inner.InvalidateFailed(key, err) })
}
