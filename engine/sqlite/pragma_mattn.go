//go:build !modernc

package sqlite

import (
	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

// driverParam spells s as a go-sqlite3 connection parameter: _busy_timeout=5000.
func driverParam(s setting) string {
	return "_" + s.pragma + "=" + s.value
}
