//go:build modernc

package sqlite

import (
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// driverParam spells s as a modernc _pragma parameter: _pragma=busy_timeout(5000).
func driverParam(s setting) string {
	return "_pragma=" + s.pragma + "(" + s.value + ")"
}
