// Package sqlite implements the engine capability surface on SQLite.
//
// An instance is a directory; each database is a file named <name>.db inside
// it. SQLite has no CREATE DATABASE or USE statements, so the cursor
// emulates the two forms the bridge issues:
//
//	CREATE DATABASE [IF NOT EXISTS] `name`   creates <dir>/name.db
//	USE `name`                               accepted for the connected database
//
// The default build uses github.com/mattn/go-sqlite3 (cgo). Build with
// -tags modernc to use the pure-Go modernc.org/sqlite driver instead.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/jmoiron/sqlx"

	"github.com/tomyedwab/sqlbridge/engine"
)

// Name is the name the engine registers under.
const Name = "sqlite"

// DefaultDatabase exists in every opened instance.
const DefaultDatabase = "test"

func init() {
	engine.Register(Name, &Engine{})
}

// reDatabaseName restricts database names to safe file name characters.
var reDatabaseName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Engine opens SQLite instances.
type Engine struct {
	// Logger for operational logging. Uses slog.Default() if nil.
	Logger *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default().With("component", "sqlite")
	}
	return e.Logger.With("component", "sqlite")
}

// Probe opens and pings an in-memory database so a driver that cannot work
// in this build (for example mattn without cgo) fails at startup.
func (e *Engine) Probe(ctx context.Context) error {
	db, err := sqlx.Open(driverName, dsn(":memory:", probeSettings))
	if err != nil {
		return fmt.Errorf("sqlx.Open: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Open creates the instance directory and its default database if needed
// and returns the instance.
func (e *Engine) Open(ctx context.Context, path string) (engine.Instance, error) {
	if path == "" {
		return nil, fmt.Errorf("instance path is empty")
	}
	dir, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create instance directory: %w", err)
	}
	logger := e.logger()
	inst := &Instance{dir: dir, logger: logger}
	if err := inst.createDatabase(ctx, DefaultDatabase, true); err != nil {
		return nil, err
	}
	logger.Debug("instance opened", "dir", dir)
	return inst, nil
}

// Instance is a directory of database files.
type Instance struct {
	dir    string
	logger *slog.Logger
}

// Dir returns the absolute instance directory.
func (inst *Instance) Dir() string {
	return inst.dir
}

func (inst *Instance) databasePath(name string) (string, error) {
	if !reDatabaseName.MatchString(name) {
		return "", fmt.Errorf("invalid database name %q", name)
	}
	return filepath.Join(inst.dir, name+".db"), nil
}

// Connect opens a connection to an existing database. It returns
// engine.ErrDatabaseNotFound if the database file does not exist.
func (inst *Instance) Connect(ctx context.Context, name string) (engine.Conn, error) {
	path, err := inst.databasePath(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", engine.ErrDatabaseNotFound, name)
		}
		return nil, err
	}

	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	inst.logger.Debug("connected", "database", name, "path", path)
	return &Conn{inst: inst, name: name, db: db, logger: inst.logger}, nil
}

// createDatabase creates the database file for name unless it exists.
func (inst *Instance) createDatabase(ctx context.Context, name string, ifNotExists bool) error {
	path, err := inst.databasePath(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		if ifNotExists {
			return nil
		}
		return fmt.Errorf("database %q already exists", name)
	}

	db, err := openDB(ctx, path)
	if err != nil {
		return fmt.Errorf("create database %q: %w", name, err)
	}
	// SQLite creates the file lazily; force a header write.
	if _, err := db.ExecContext(ctx, "PRAGMA user_version = 0"); err != nil {
		db.Close()
		return fmt.Errorf("create database %q: %w", name, err)
	}
	inst.logger.Info("database created", "database", name, "path", path)
	return db.Close()
}

// openDB opens path with fileSettings and a single connection.
func openDB(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dsn(path, fileSettings))
	if err != nil {
		return nil, fmt.Errorf("sqlx.Open: %w", err)
	}

	// One connection so the implicit transaction and every cursor share it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}
