package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/tomyedwab/sqlbridge/engine"
)

// Conn is a connection to one database file. The first statement executed
// after a Commit or Rollback opens a new transaction.
type Conn struct {
	inst   *Instance
	name   string
	db     *sqlx.DB
	tx     *sqlx.Tx
	logger *slog.Logger

	cursors []*Cursor
	closed  bool
}

var errConnClosed = errors.New("connection is closed")

// Database returns the name of the connected database.
func (c *Conn) Database() string {
	return c.name
}

// Cursor returns a new cursor on this connection.
func (c *Conn) Cursor() (engine.Cursor, error) {
	if c.closed {
		return nil, errConnClosed
	}
	cur := &Cursor{conn: c}
	c.cursors = append(c.cursors, cur)
	return cur, nil
}

// InTx reports whether a transaction is open.
func (c *Conn) InTx() bool {
	return c.tx != nil
}

// begin returns the open transaction, starting one if needed.
func (c *Conn) begin(ctx context.Context) (*sqlx.Tx, error) {
	if c.closed {
		return nil, errConnClosed
	}
	if c.tx != nil {
		return c.tx, nil
	}
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	c.tx = tx
	return tx, nil
}

// Commit commits the open transaction. It is a no-op when none is open.
func (c *Conn) Commit(ctx context.Context) error {
	if c.closed {
		return errConnClosed
	}
	c.discardRows()
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards the open transaction. It is a no-op when none is open.
func (c *Conn) Rollback(ctx context.Context) error {
	if c.closed {
		return errConnClosed
	}
	c.discardRows()
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Close rolls back any open transaction and closes the database handle.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.discardRows()
	var firstErr error
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil {
			firstErr = fmt.Errorf("rollback: %w", err)
		}
		c.tx = nil
	}
	c.closed = true
	if err := c.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// discardRows releases result sets held by this connection's cursors so the
// single underlying connection is free for the next statement.
func (c *Conn) discardRows() {
	for _, cur := range c.cursors {
		cur.discard()
	}
}
