package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tomyedwab/sqlbridge/bridge/types"
)

// Dispatcher turns one syntactically valid JSON request into a response.
type Dispatcher interface {
	DispatchJSON(ctx context.Context, raw json.RawMessage) types.Response
}

type readResult struct {
	line []byte
	err  error
}

// Serve reads newline-delimited JSON requests from r and writes exactly one
// response line to w for each non-blank request line. Requests are handled
// strictly in order; each response is flushed before the next line is read.
//
// Serve returns nil when r reaches end of input or ctx is cancelled, and an
// error only when reading or writing fails.
func Serve(ctx context.Context, r io.Reader, w io.Writer, d Dispatcher, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "Loop")

	// Reads happen on a separate goroutine so cancellation is not blocked by
	// a pending read. The reader only advances when asked.
	br := bufio.NewReader(r)
	next := make(chan struct{})
	lines := make(chan readResult, 1)
	go func() {
		for range next {
			line, err := br.ReadBytes('\n')
			lines <- readResult{line: line, err: err}
			if err != nil {
				return
			}
		}
	}()
	defer close(next)

	bw := bufio.NewWriter(w)
	logger.Info("ready, waiting for commands")
	for {
		next <- struct{}{}
		var res readResult
		select {
		case <-ctx.Done():
			logger.Info("shutting down", "reason", ctx.Err())
			return nil
		case res = <-lines:
		}

		if len(res.line) > 0 {
			if err := handleLine(ctx, res.line, bw, d, logger); err != nil {
				return err
			}
		}
		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				logger.Info("input closed, shutting down")
				return nil
			}
			return fmt.Errorf("read request: %w", res.err)
		}
	}
}

func handleLine(ctx context.Context, line []byte, w *bufio.Writer, d Dispatcher, logger *slog.Logger) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	// Only syntax is checked here; the shape of the request is the
	// dispatcher's concern.
	var resp types.Response
	var raw json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		logger.Warn("JSON decode error", "error", err)
		resp = types.Failure(types.JSONError, err.Error())
	} else {
		logger.Debug("received request", "bytes", len(raw))
		resp = d.DispatchJSON(ctx, raw)
	}
	return writeResponse(w, resp, logger)
}

// writeResponse writes resp as one line and flushes it.
func writeResponse(w *bufio.Writer, resp types.Response, logger *slog.Logger) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		logger.Error("failed to encode response", "error", err)
		payload, err = json.Marshal(types.Failure(types.InternalError, "encode response: "+err.Error()))
		if err != nil {
			return fmt.Errorf("encode error response: %w", err)
		}
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush response: %w", err)
	}
	return nil
}
