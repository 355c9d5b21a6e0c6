// Package promhooks counts tally hook events as Prometheus metrics.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tally"
)

type Hooks struct {
	backendErrors    *prometheus.CounterVec
	timedDiscards    *prometheus.CounterVec
	reconciliations  *prometheus.CounterVec
	writeBackErrors  *prometheus.CounterVec
	invalidateErrors prometheus.Counter
}

var _ tally.Hooks = (*Hooks)(nil)

// New creates the collectors under namespace and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func New(namespace string, reg prometheus.Registerer) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &Hooks{
		backendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_backend_errors_total",
				Help:      "Cache provider calls that failed and were treated as a miss",
			},
			[]string{"op"},
		),
		timedDiscards: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_timed_discards_total",
				Help:      "Timed entries discarded on read by reason",
			},
			[]string{"reason"},
		),
		reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "counter_reconciliations_total",
				Help:      "Counter reconciliations by counter and outcome",
			},
			[]string{"counter", "outcome"},
		),
		writeBackErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "counter_write_back_errors_total",
				Help:      "Durable write-backs that failed during reconciliation",
			},
			[]string{"counter"},
		),
		invalidateErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "readmodel_invalidate_errors_total",
				Help:      "Read-model invalidations where both the generation bump and key removal failed",
			},
		),
	}
	for _, c := range []prometheus.Collector{
		h.backendErrors, h.timedDiscards, h.reconciliations, h.writeBackErrors, h.invalidateErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) BackendError(op, _ string, _ error) {
	h.backendErrors.WithLabelValues(op).Inc()
}

func (h *Hooks) TimedDiscarded(_, reason string) {
	h.timedDiscards.WithLabelValues(reason).Inc()
}

func (h *Hooks) Reconciled(counter string, outcome tally.Outcome, _ int64) {
	h.reconciliations.WithLabelValues(counter, outcome.String()).Inc()
}

func (h *Hooks) WriteBackFailed(counter, _ string, _ error) {
	h.writeBackErrors.WithLabelValues(counter).Inc()
}

func (h *Hooks) InvalidateFailed(string, error) {
	h.invalidateErrors.Inc()
}

// Multi fans every event out to several hook sets in order.
type Multi []tally.Hooks

var _ tally.Hooks = Multi(nil)

func (m Multi) BackendError(op, key string, err error) {
	for _, h := range m {
		h.BackendError(op, key, err)
	}
}

func (m Multi) TimedDiscarded(key, reason string) {
	for _, h := range m {
		h.TimedDiscarded(key, reason)
	}
}

func (m Multi) Reconciled(counter string, o tally.Outcome, v int64) {
	for _, h := range m {
		h.Reconciled(counter, o, v)
	}
}

func (m Multi) WriteBackFailed(counter, id string, err error) {
	for _, h := range m {
		h.WriteBackFailed(counter, id, err)
	}
}

func (m Multi) InvalidateFailed(key string, err error) {
	for _, h := range m {
		h.InvalidateFailed(key, err)
	}
}
