// Package client runs a bridge as a subprocess and talks to it over its
// stdin and stdout, one request line and one response line at a time.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tomyedwab/sqlbridge/bridge/types"
	"github.com/tomyedwab/sqlbridge/value"
)

const defaultGracePeriod = 500 * time.Millisecond

// Config describes how to launch the bridge.
type Config struct {
	// Command is the bridge executable. Required.
	Command string
	Args    []string
	// Env is the child environment. Nil inherits the current one.
	Env []string
	Dir string

	// GracePeriod is how long Shutdown waits after closing the bridge's
	// input before killing it. Default: 500ms.
	GracePeriod time.Duration

	// Stderr receives the bridge's diagnostic lines verbatim. If nil they
	// are logged through Logger.
	Stderr io.Writer

	// Logger for operational logging. Uses slog.Default() if nil.
	Logger *slog.Logger
}

func (cfg Config) defaults() Config {
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

type initParams struct {
	path, name string
}

// Client owns one bridge process. Calls are serialized; it is safe for
// concurrent use.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	proc   *process
	state  ProcessState
	stale  int // responses still owed for abandoned calls
	init   *initParams
	closed bool
}

// Start launches the bridge.
func Start(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("client: Command is required")
	}
	cfg = cfg.defaults()
	c := &Client{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "BridgeClient"),
		state:  StateStarting,
	}
	p, err := spawn(cfg, c.logger)
	if err != nil {
		c.state = StateFailed
		return nil, err
	}
	c.proc = p
	c.state = StateRunning
	return c, nil
}

// SessionID identifies the current bridge process. It changes on restart.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc == nil {
		return ""
	}
	return c.proc.id
}

// State returns the lifecycle state of the bridge process.
func (c *Client) State() ProcessState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Client) stateLocked() ProcessState {
	if c.state == StateRunning && c.proc.hasExited() {
		c.state = StateFailed
	}
	return c.state
}

// Call sends command with params and returns the raw data of a success
// response. An error response is returned as *BridgeError.
func (c *Client) Call(ctx context.Context, command string, params map[string]value.Value) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call(ctx, command, params)
}

func (c *Client) call(ctx context.Context, command string, params map[string]value.Value) (json.RawMessage, error) {
	if c.closed {
		return nil, ErrClosed
	}
	p := c.proc
	if c.stateLocked() != StateRunning {
		return nil, fmt.Errorf("%w: %v", ErrExited, p.err)
	}

	payload, err := json.Marshal(types.Request{Command: command, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", command, err)
	}
	payload = append(payload, '\n')
	if _, err := p.stdin.Write(payload); err != nil {
		// A broken pipe usually means the process is on its way out.
		select {
		case <-p.exited:
			c.state = StateFailed
			return nil, fmt.Errorf("%w while sending %s request: %v", ErrExited, command, p.err)
		case <-time.After(c.cfg.GracePeriod):
		}
		return nil, fmt.Errorf("send %s request: %w", command, err)
	}
	c.logger.Debug("sent command", "session", p.id, "command", command)

	// Responses arrive in request order; skip those owed to abandoned calls.
	for {
		var line []byte
		var ok bool
		select {
		case line, ok = <-p.lines:
		case <-ctx.Done():
			c.stale++
			return nil, ctx.Err()
		}
		if !ok {
			<-p.exited
			c.state = StateFailed
			return nil, fmt.Errorf("%w while waiting for %s response: %v", ErrExited, command, p.err)
		}
		if c.stale > 0 {
			c.stale--
			continue
		}
		return decodeReply(command, line)
	}
}

func decodeReply(command string, line []byte) (json.RawMessage, error) {
	var reply types.Reply
	if err := json.Unmarshal(line, &reply); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", command, err)
	}
	if err := reply.Validate(); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", command, err)
	}
	if reply.Status == types.StatusError {
		return nil, &BridgeError{Kind: reply.Error, Details: reply.Details}
	}
	return reply.Data, nil
}

// Init opens the database on the bridge. The parameters are remembered and
// replayed by Restart.
func (c *Client) Init(ctx context.Context, path, name string) (types.InitData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := c.initLocked(ctx, path, name)
	if err == nil {
		c.init = &initParams{path: path, name: name}
	}
	return data, err
}

func (c *Client) initLocked(ctx context.Context, path, name string) (types.InitData, error) {
	var out types.InitData
	raw, err := c.call(ctx, types.CommandInit, map[string]value.Value{
		"db_path": value.Text(path),
		"db_name": value.Text(name),
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode init data: %w", err)
	}
	return out, nil
}

// Execute runs a statement and returns the number of rows it changed.
// Args are converted with value.FromEngine.
func (c *Client) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	raw, err := c.Call(ctx, types.CommandExecute, statementParams(sql, args))
	if err != nil {
		return 0, err
	}
	var out types.ExecuteData
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("decode execute data: %w", err)
	}
	return out.RowsAffected, nil
}

// Query runs a statement and returns every row.
func (c *Client) Query(ctx context.Context, sql string, args ...any) ([][]value.Value, error) {
	raw, err := c.Call(ctx, types.CommandQuery, statementParams(sql, args))
	if err != nil {
		return nil, err
	}
	var out types.QueryData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode query data: %w", err)
	}
	if out.Rows == nil {
		out.Rows = [][]value.Value{}
	}
	return out.Rows, nil
}

// QueryOne runs a statement and returns its first row, or nil if it matched
// nothing.
func (c *Client) QueryOne(ctx context.Context, sql string, args ...any) ([]value.Value, error) {
	raw, err := c.Call(ctx, types.CommandQueryOne, statementParams(sql, args))
	if err != nil {
		return nil, err
	}
	var out types.QueryOneData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode query_one data: %w", err)
	}
	return out.Row, nil
}

// Commit commits the bridge's current transaction.
func (c *Client) Commit(ctx context.Context) error {
	_, err := c.Call(ctx, types.CommandCommit, nil)
	return err
}

// Rollback discards the bridge's current transaction.
func (c *Client) Rollback(ctx context.Context) error {
	_, err := c.Call(ctx, types.CommandRollback, nil)
	return err
}

// Ping checks that the bridge answers.
func (c *Client) Ping(ctx context.Context) error {
	raw, err := c.Call(ctx, types.CommandPing, nil)
	if err != nil {
		return err
	}
	var out types.PingData
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode ping data: %w", err)
	}
	if out.Message != "pong" {
		return fmt.Errorf("unexpected ping reply %q", out.Message)
	}
	return nil
}

// Alive reports whether the bridge is running and answers a ping.
func (c *Client) Alive(ctx context.Context) bool {
	return c.Ping(ctx) == nil
}

// Restart replaces the bridge process if it is no longer alive. A database
// opened with Init is opened again on the new process.
func (c *Client) Restart(ctx context.Context) error {
	if c.Alive(ctx) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.logger.Warn("bridge not alive, restarting", "session", c.proc.id, "state", c.stateLocked().String())
	if c.proc.hasExited() {
		c.proc.stdin.Close()
	} else {
		c.state = StateStopping
		if err := c.proc.stop(ctx, c.cfg.GracePeriod); err != nil {
			c.state = StateFailed
			return fmt.Errorf("stop old bridge: %w", err)
		}
	}

	c.state = StateStarting
	p, err := spawn(c.cfg, c.logger)
	if err != nil {
		c.state = StateFailed
		return err
	}
	c.proc, c.stale = p, 0
	c.state = StateRunning

	if c.init != nil {
		if _, err := c.initLocked(ctx, c.init.path, c.init.name); err != nil {
			return fmt.Errorf("re-initialize after restart: %w", err)
		}
	}
	return nil
}

// Shutdown closes the bridge's input, waits up to the grace period for it to
// exit, and kills it otherwise. Later calls return ErrClosed.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.proc.hasExited() {
		c.state = StateStopped
		return nil
	}
	c.state = StateStopping
	if err := c.proc.stop(ctx, c.cfg.GracePeriod); err != nil {
		c.state = StateFailed
		return err
	}
	c.state = StateStopped
	return nil
}

func statementParams(sql string, args []any) map[string]value.Value {
	values := make([]value.Value, len(args))
	for i, a := range args {
		values[i] = value.FromEngine(a)
	}
	return map[string]value.Value{
		"sql":    value.Text(sql),
		"values": value.List(values...),
	}
}
