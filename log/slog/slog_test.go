package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"testing"

	"github.com/unkn0wn-root/tally"
)

func TestLoggerWritesAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := New(stdslog.New(stdslog.NewJSONHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo})))

	l.Debug("filtered", nil)
	l.Warn("cache operation failed", tally.Fields{"op": "get", "key": "app.users:1"})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["level"] != "WARN" || rec["module"] != "tally" || rec["op"] != "get" || rec["key"] != "app.users:1" {
		t.Fatalf("record: %v", rec)
	}
}
