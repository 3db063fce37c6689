package bridge

import (
	"context"
	"fmt"
	"io"

	"github.com/tomyedwab/sqlbridge/engine"
)

// StartupError means the bridge could not start serving at all.
type StartupError struct {
	Engine string
	Err    error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("cannot start engine %q: %v", e.Engine, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// Run loads the configured engine and serves requests from r to w until r
// is exhausted or ctx is cancelled. The session is closed on the way out.
// A failure to load the engine is returned as *StartupError.
func Run(ctx context.Context, cfg Config, r io.Reader, w io.Writer) error {
	cfg = cfg.defaults()
	eng, err := engine.Load(ctx, cfg.Engine)
	if err != nil {
		return &StartupError{Engine: cfg.Engine, Err: err}
	}

	session := NewSession(eng, cfg)
	defer session.Close()

	cfg.Logger.Info("bridge started", "version", version.String(), "engine", cfg.Engine)
	return Serve(ctx, r, w, NewRouter(session, cfg), cfg.Logger)
}
