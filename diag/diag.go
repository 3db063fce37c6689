// Package diag builds the bridge's diagnostics logger. Diagnostics go to a
// stream separate from the protocol (stderr in practice) and every line
// carries a fixed tag so a host can tell bridge output apart from its own.
package diag

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Tag is the default line prefix.
const Tag = "[sqlbridge]"

// New returns a text logger writing to w with every line prefixed by tag.
func New(w io.Writer, tag string, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(NewPrefixWriter(w, tag), &slog.HandlerOptions{
		Level: level,
	}))
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// PrefixWriter writes complete lines to an underlying writer, each starting
// with a fixed prefix. A trailing partial line is held until its newline
// arrives or Flush is called.
type PrefixWriter struct {
	mu     sync.Mutex
	w      io.Writer
	prefix []byte
	buf    []byte
}

// NewPrefixWriter returns a PrefixWriter; a space is appended to a
// non-empty prefix.
func NewPrefixWriter(w io.Writer, prefix string) *PrefixWriter {
	p := []byte(prefix)
	if len(p) > 0 {
		p = append(p, ' ')
	}
	return &PrefixWriter{w: w, prefix: p}
}

func (pw *PrefixWriter) Write(p []byte) (int, error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.buf = append(pw.buf, p...)
	var out bytes.Buffer
	for {
		i := bytes.IndexByte(pw.buf, '\n')
		if i < 0 {
			break
		}
		out.Write(pw.prefix)
		out.Write(pw.buf[:i+1])
		pw.buf = pw.buf[i+1:]
	}
	if out.Len() > 0 {
		if _, err := pw.w.Write(out.Bytes()); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush writes any buffered partial line followed by a newline.
func (pw *PrefixWriter) Flush() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if len(pw.buf) == 0 {
		return nil
	}
	line := append(append(append([]byte{}, pw.prefix...), pw.buf...), '\n')
	pw.buf = nil
	_, err := pw.w.Write(line)
	return err
}

// Printf writes one free-form diagnostic line. It is used for startup
// failures, before a structured logger is useful.
func Printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", Tag, fmt.Sprintf(format, args...))
}

// Truncate shortens s to at most n bytes for logging, marking the cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
