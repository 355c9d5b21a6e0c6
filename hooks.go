package tally

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they run on request paths.
type Hooks interface {
	// A provider call failed and the result was folded into miss/false.
	// op ∈ {"get", "set", "remove", "remove_prefix", "incr", "decr"}
	BackendError(op, key string, err error)

	// A timed read discarded the stored entry and removed the key.
	// reason ∈ {"expired", "corrupt", "decode", "stale"}
	TimedDiscarded(key, reason string)

	// A reconciliation finished. value is what the caller received.
	Reconciled(counter string, outcome Outcome, value int64)

	// The durable write-back of a reconciliation failed.
	WriteBackFailed(counter, id string, err error)

	// A read-model invalidation could not bump its generation or remove its key.
	InvalidateFailed(key string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) BackendError(string, string, error)    {}
func (NopHooks) TimedDiscarded(string, string)         {}
func (NopHooks) Reconciled(string, Outcome, int64)     {}
func (NopHooks) WriteBackFailed(string, string, error) {}
func (NopHooks) InvalidateFailed(string, error)        {}
