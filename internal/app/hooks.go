package app

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tally"
	asynchook "github.com/unkn0wn-root/tally/hooks/async"
	promhooks "github.com/unkn0wn-root/tally/hooks/prom"
	"github.com/unkn0wn-root/tally/sloghooks"
)

// Hooks fans cache events out to Prometheus (when enabled) and to a sampled
// slog sink drained by a background worker.
type Hooks struct {
	tally.Hooks
	logs *asynchook.Hooks
}

// NewHooks builds the service hook chain. reg may be nil when metrics are off.
func NewHooks(cfg MetricsConfig, reg prometheus.Registerer, l *slog.Logger) (*Hooks, error) {
	if l == nil {
		l = slog.Default()
	}
	logs := asynchook.New(sloghooks.New(l, sloghooks.Options{DiscardEvery: 100, ReconcileEvery: 100}), 1, 1024)
	chain := promhooks.Multi{logs}
	if cfg.Enabled {
		ph, err := promhooks.New(cfg.Namespace, reg)
		if err != nil {
			logs.Close()
			return nil, err
		}
		chain = append(promhooks.Multi{ph}, chain...)
	}
	return &Hooks{Hooks: chain, logs: logs}, nil
}

// Close drains queued log events.
func (h *Hooks) Close() {
	if h != nil && h.logs != nil {
		h.logs.Close()
	}
}
