package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/tomyedwab/sqlbridge/diag"
	"github.com/tomyedwab/sqlbridge/engine"
	"github.com/tomyedwab/sqlbridge/statement"
	"github.com/tomyedwab/sqlbridge/value"
)

var (
	ErrNotInitialized      = errors.New("database not initialized")
	ErrAlreadyInitialized  = errors.New("database already initialized")
	ErrInvalidDatabaseName = errors.New("invalid database name")
)

// reDatabaseName keeps database names safe to embed in backtick-quoted
// identifiers and file names.
var reDatabaseName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// State is the lifecycle state of a Session.
type State int

const (
	// StateUninitialized means init has not succeeded yet.
	StateUninitialized State = iota
	// StateOpen means a working connection and cursor are held.
	StateOpen
	// StateClosed means the connection was released. It is terminal.
	StateClosed
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateOpen:
		return "Open"
	case StateClosed:
		return "Closed"
	default:
		return "InvalidState"
	}
}

// Session owns the single engine connection and cursor of a bridge process.
// It is not safe for concurrent use; the protocol handles one command at a
// time.
type Session struct {
	engine engine.Engine
	cfg    Config
	logger *slog.Logger

	state  State
	path   string
	name   string
	conn   engine.Conn
	cursor engine.Cursor
}

// NewSession returns an uninitialized session over e.
func NewSession(e engine.Engine, cfg Config) *Session {
	cfg = cfg.defaults()
	return &Session{
		engine: e,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "Session"),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Info returns the path and database name of an open session.
func (s *Session) Info() (path, name string) {
	return s.path, s.name
}

// Init opens the engine at path, creates database name if it is missing and
// connects to it. On failure everything acquired is released and the
// session stays uninitialized.
func (s *Session) Init(ctx context.Context, path, name string) error {
	if s.state != StateUninitialized {
		return fmt.Errorf("%w (state %s)", ErrAlreadyInitialized, s.state)
	}
	if !reDatabaseName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidDatabaseName, name)
	}

	s.logger.Info("initializing", "path", path, "database", name)
	inst, err := s.engine.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	s.logger.Info("ensuring database exists", "database", name)
	if err := s.createDatabase(ctx, inst, name); err != nil {
		s.logger.Error("failed to create database", "database", name, "error", err)
		return fmt.Errorf("cannot create database %q: %w", name, err)
	}

	conn, err := inst.Connect(ctx, name)
	if err != nil {
		return fmt.Errorf("connect %s: %w", name, err)
	}
	cursor, err := conn.Cursor()
	if err != nil {
		conn.Close()
		return fmt.Errorf("cursor: %w", err)
	}
	s.logger.Info("connected", "database", name)

	if err := cursor.Execute(ctx, "USE `"+name+"`"); err != nil {
		s.logger.Warn("USE statement failed, continuing", "database", name, "error", err)
	}

	s.path, s.name = path, name
	s.conn, s.cursor = conn, cursor
	s.state = StateOpen
	s.logger.Info("initialized")
	return nil
}

// createDatabase runs CREATE DATABASE through a short-lived administrative
// connection.
func (s *Session) createDatabase(ctx context.Context, inst engine.Instance, name string) error {
	admin, err := inst.Connect(ctx, s.cfg.AdminDatabase)
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.cfg.AdminDatabase, err)
	}
	cur, err := admin.Cursor()
	if err != nil {
		admin.Close()
		return err
	}
	if err := cur.Execute(ctx, "CREATE DATABASE IF NOT EXISTS `"+name+"`"); err != nil {
		cur.Close()
		admin.Close()
		return err
	}
	if err := admin.Commit(ctx); err != nil {
		cur.Close()
		admin.Close()
		return err
	}
	cur.Close()
	return admin.Close()
}

// prepare materializes sql and runs it on the shared cursor.
func (s *Session) prepare(ctx context.Context, op, sql string, values []value.Value) error {
	if s.state != StateOpen {
		return fmt.Errorf("%w (state %s)", ErrNotInitialized, s.state)
	}
	stmt, err := statement.Materialize(sql, values)
	if err != nil {
		return err
	}
	s.logger.Debug(op, "sql", diag.Truncate(stmt, s.cfg.LogSQLBytes))
	return s.cursor.Execute(ctx, stmt)
}

// Execute runs a statement and returns the rows it changed, or 0 when the
// engine does not report a count.
func (s *Session) Execute(ctx context.Context, sql string, values []value.Value) (int64, error) {
	if err := s.prepare(ctx, "executing", sql, values); err != nil {
		return 0, err
	}
	n, ok := s.cursor.RowCount()
	if !ok || n < 0 {
		return 0, nil
	}
	return n, nil
}

// Query runs a statement and returns every row. The result is never nil.
func (s *Session) Query(ctx context.Context, sql string, values []value.Value) ([][]value.Value, error) {
	if err := s.prepare(ctx, "querying", sql, values); err != nil {
		return nil, err
	}
	raw, err := s.cursor.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([][]value.Value, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, convertRow(r))
	}
	s.logger.Debug("query returned rows", "count", len(rows))
	return rows, nil
}

// QueryOne runs a statement and returns its first row, or nil if there is
// none.
func (s *Session) QueryOne(ctx context.Context, sql string, values []value.Value) ([]value.Value, error) {
	if err := s.prepare(ctx, "querying one", sql, values); err != nil {
		return nil, err
	}
	raw, err := s.cursor.FetchOne(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return convertRow(raw), nil
}

// Commit commits the current transaction.
func (s *Session) Commit(ctx context.Context) error {
	if s.state != StateOpen {
		return fmt.Errorf("%w (state %s)", ErrNotInitialized, s.state)
	}
	s.logger.Info("committing transaction")
	return s.conn.Commit(ctx)
}

// Rollback discards the current transaction.
func (s *Session) Rollback(ctx context.Context) error {
	if s.state != StateOpen {
		return fmt.Errorf("%w (state %s)", ErrNotInitialized, s.state)
	}
	s.logger.Info("rolling back transaction")
	return s.conn.Rollback(ctx)
}

// Close releases the connection. Errors are logged, not returned; it is
// only called on the way out of the process.
func (s *Session) Close() {
	if s.state != StateOpen {
		return
	}
	if err := s.cursor.Close(); err != nil {
		s.logger.Warn("error closing cursor", "error", err)
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Warn("error closing connection", "error", err)
	} else {
		s.logger.Info("database connection closed")
	}
	s.conn, s.cursor = nil, nil
	s.state = StateClosed
}

func convertRow(raw []any) []value.Value {
	row := make([]value.Value, len(raw))
	for i, x := range raw {
		row[i] = value.FromEngine(x)
	}
	return row
}
