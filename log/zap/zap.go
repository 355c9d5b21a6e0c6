// Package zap adapts a *zap.Logger to tally.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/tally"
)

var _ tally.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New scopes l to the cache with a "module" field, as the service loggers do.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l.With(zap.String("module", "tally"))}
}

func (z Logger) Debug(msg string, f tally.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f tally.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f tally.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f tally.Fields) { z.L.Error(msg, fields(f)...) }

// fields keeps a stable key order and logs errors as errors.
func fields(f tally.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
