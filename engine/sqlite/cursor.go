package sqlite

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
)

var (
	reCreateDatabase = regexp.MustCompile("(?is)^\\s*CREATE\\s+DATABASE\\s+(IF\\s+NOT\\s+EXISTS\\s+)?[`\"]?([A-Za-z0-9_-]+)[`\"]?\\s*;?\\s*$")
	reUse            = regexp.MustCompile("(?is)^\\s*USE\\s+[`\"]?([A-Za-z0-9_-]+)[`\"]?\\s*;?\\s*$")
)

var errCursorClosed = errors.New("cursor is closed")

// Cursor runs statements inside its connection's transaction. Result rows
// are read lazily from the open result set.
type Cursor struct {
	conn   *Conn
	rows   *sqlx.Rows
	count  int64
	counts bool
	closed bool
}

// Execute runs sql. Statements that return rows leave a result set open for
// FetchOne and FetchAll; other statements run to completion immediately.
func (c *Cursor) Execute(ctx context.Context, sql string) error {
	if c.closed {
		return errCursorClosed
	}
	c.discard()
	c.count, c.counts = 0, false

	if m := reCreateDatabase.FindStringSubmatch(sql); m != nil {
		return c.conn.inst.createDatabase(ctx, m[2], m[1] != "")
	}
	if m := reUse.FindStringSubmatch(sql); m != nil {
		if m[1] != c.conn.name {
			return fmt.Errorf("cannot switch database to %q: connection is bound to %q", m[1], c.conn.name)
		}
		return nil
	}

	tx, err := c.conn.begin(ctx)
	if err != nil {
		return err
	}

	kw := leadingKeyword(sql)
	if !returnsRows(kw, sql) {
		res, err := tx.ExecContext(ctx, sql)
		if err != nil {
			return err
		}
		if countsRows(kw) {
			if n, err := res.RowsAffected(); err == nil {
				c.count, c.counts = n, true
			}
		}
		return nil
	}

	rows, err := tx.QueryxContext(ctx, sql)
	if err != nil {
		return err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return err
	}
	if len(cols) == 0 {
		// A statement we guessed would return rows did not; drive it to
		// completion so it takes effect now.
		for rows.Next() {
		}
		err := rows.Err()
		rows.Close()
		return err
	}
	c.rows = rows
	return nil
}

// FetchOne returns the next row, or nil when there is none.
func (c *Cursor) FetchOne(ctx context.Context) ([]any, error) {
	if c.closed {
		return nil, errCursorClosed
	}
	if c.rows == nil {
		return nil, nil
	}
	if !c.rows.Next() {
		err := c.rows.Err()
		c.discard()
		return nil, err
	}
	row, err := c.rows.SliceScan()
	if err != nil {
		c.discard()
		return nil, fmt.Errorf("scan row: %w", err)
	}
	return row, nil
}

// FetchAll returns all remaining rows and releases the result set.
func (c *Cursor) FetchAll(ctx context.Context) ([][]any, error) {
	if c.closed {
		return nil, errCursorClosed
	}
	out := [][]any{}
	if c.rows == nil {
		return out, nil
	}
	defer c.discard()
	for c.rows.Next() {
		row, err := c.rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, row)
	}
	if err := c.rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RowCount reports the rows changed by the last INSERT, UPDATE, DELETE or
// REPLACE run through this cursor.
func (c *Cursor) RowCount() (int64, bool) {
	return c.count, c.counts
}

// Close releases the open result set. The cursor cannot be used again.
func (c *Cursor) Close() error {
	c.discard()
	c.closed = true
	return nil
}

func (c *Cursor) discard() {
	if c.rows != nil {
		c.rows.Close()
		c.rows = nil
	}
}

// leadingKeyword returns the first keyword of sql in upper case, skipping
// whitespace, comments and opening parentheses.
func leadingKeyword(sql string) string {
	s := sql
	for {
		s = strings.TrimLeft(s, " \t\r\n(")
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i < 0 {
				return ""
			}
			s = s[i+2:]
		default:
			end := strings.IndexFunc(s, func(r rune) bool {
				return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_')
			})
			if end < 0 {
				end = len(s)
			}
			return strings.ToUpper(s[:end])
		}
	}
}

var reReturning = regexp.MustCompile(`(?i)\bRETURNING\b`)

func returnsRows(kw, sql string) bool {
	switch kw {
	case "SELECT", "WITH", "VALUES", "PRAGMA", "EXPLAIN":
		return true
	case "INSERT", "UPDATE", "DELETE", "REPLACE":
		return reReturning.MatchString(sql)
	}
	return false
}

func countsRows(kw string) bool {
	switch kw {
	case "INSERT", "UPDATE", "DELETE", "REPLACE":
		return true
	}
	return false
}
