package tally

// Fields carries structured context for one log line: keys, counters, ids, errors.
type Fields map[string]any

// Logger is the leveled sink the cache, the reconciler and readmodel write to.
// Adapters for zap, logrus and slog live under log/. A nil Logger in options
// means NopLogger.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger drops everything.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
