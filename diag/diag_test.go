package diag

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrefixWriter(t *testing.T) {
	var buf bytes.Buffer
	pw := NewPrefixWriter(&buf, "[tag]")

	pw.Write([]byte("one\ntw"))
	pw.Write([]byte("o\nthree"))
	if got := buf.String(); got != "[tag] one\n[tag] two\n" {
		t.Errorf("unexpected output before flush: %q", got)
	}

	if err := pw.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := buf.String(); got != "[tag] one\n[tag] two\n[tag] three\n" {
		t.Errorf("unexpected output after flush: %q", got)
	}
}

func TestNew_EveryLineTagged(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Tag, slog.LevelDebug)

	logger.Info("started")
	logger.Debug("executing", "sql", "SELECT 1")
	logger.Warn("multi\nline")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, Tag+" ") {
			t.Errorf("line not tagged: %q", l)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("ab", 3); got != "ab" {
		t.Errorf("Truncate = %q", got)
	}
}
