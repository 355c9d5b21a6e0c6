// Package sloghooks logs tally hook events through log/slog, with sampling
// for the noisy ones and redacted keys.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tally"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	DiscardEvery   uint64
	ReconcileEvery uint64
	// Optional key redactor. Defaults to a SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	discardCtr   atomic.Uint64
	reconcileCtr atomic.Uint64
}

var _ tally.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n <= 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) BackendError(op, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tally.backend_error", "op", op, "key", h.redact(key), "err", err)
}

func (h *Hooks) TimedDiscarded(key, reason string) {
	if h.l == nil || !sample(h.opts.DiscardEvery, &h.discardCtr) {
		return
	}
	h.l.Debug("tally.timed_discarded", "key", h.redact(key), "reason", reason)
}

func (h *Hooks) Reconciled(counter string, outcome tally.Outcome, value int64) {
	if h.l == nil || !sample(h.opts.ReconcileEvery, &h.reconcileCtr) {
		return
	}
	h.l.Debug("tally.reconciled", "counter", counter, "outcome", outcome.String(), "value", value)
}

func (h *Hooks) WriteBackFailed(counter, id string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("tally.write_back_failed", "counter", counter, "id", h.redact(id), "err", err)
}

func (h *Hooks) InvalidateFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("tally.invalidate_failed", "key", h.redact(key), "err", err)
}
