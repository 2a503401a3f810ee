package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/logging"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := logging.ParseLevel(in); got != want {
			t.Fatalf("%q: want %s got %s", in, want, got)
		}
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, "warn", "json")
	log.Info("hidden")
	log.Warn("shown", "cmp", "test")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("want 1 line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "shown" || rec["cmp"] != "test" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestPrettyFormat(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	logging.New(&buf, "debug", "pretty").Debug("hello", "cmp", "test")
	if !strings.Contains(buf.String(), "hello") || !strings.Contains(buf.String(), "cmp=test") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
