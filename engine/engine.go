// Package engine declares the capability surface the bridge consumes from a
// SQL engine: open an instance, connect to a named database, and run text
// statements through a cursor with commit and rollback on the connection.
//
// Engines register themselves by name, the same way database/sql drivers do,
// and the bridge loads one at startup.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownEngine is returned by Load for a name nobody registered.
	ErrUnknownEngine = errors.New("unknown engine")
	// ErrDatabaseNotFound is returned by Connect when the named database has
	// not been created.
	ErrDatabaseNotFound = errors.New("database not found")
)

// Engine opens engine instances rooted at a filesystem path.
type Engine interface {
	Open(ctx context.Context, path string) (Instance, error)
}

// Instance is an opened engine. Databases inside it are addressed by name.
type Instance interface {
	Connect(ctx context.Context, name string) (Conn, error)
}

// Conn is a connection to one database. Statements run inside an implicit
// transaction that lasts until Commit or Rollback.
type Conn interface {
	Cursor() (Cursor, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close() error
}

// Cursor executes statement text and fetches the resulting rows.
type Cursor interface {
	// Execute runs one fully formed statement. Any rows from a previous
	// Execute on this cursor are discarded.
	Execute(ctx context.Context, sql string) error
	// FetchOne returns the next row, or nil when the result is exhausted or
	// the statement produced no result set.
	FetchOne(ctx context.Context) ([]any, error)
	// FetchAll returns every remaining row. It never returns nil.
	FetchAll(ctx context.Context) ([][]any, error)
	// RowCount reports rows changed by the last statement, if known.
	RowCount() (int64, bool)
	Close() error
}

// Prober is implemented by engines that can verify at startup that their
// native library is usable.
type Prober interface {
	Probe(ctx context.Context) error
}

var (
	mu      sync.RWMutex
	engines = make(map[string]Engine)
)

// Register makes an engine available under name. It panics if name is
// already taken or e is nil.
func Register(name string, e Engine) {
	mu.Lock()
	defer mu.Unlock()
	if e == nil {
		panic("engine: Register engine is nil")
	}
	if _, dup := engines[name]; dup {
		panic("engine: Register called twice for engine " + name)
	}
	engines[name] = e
}

// Engines returns the sorted names of the registered engines.
func Engines() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load returns the engine registered under name, probing it first when it
// implements Prober.
func Load(ctx context.Context, name string) (Engine, error) {
	mu.RLock()
	e, ok := engines[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	if p, ok := e.(Prober); ok {
		if err := p.Probe(ctx); err != nil {
			return nil, fmt.Errorf("engine %s: probe: %w", name, err)
		}
	}
	return e, nil
}
