// Package driver implements a database/sql/driver on top of a bridge
// client, so ordinary database/sql (or sqlx) code can run against a bridge
// subprocess.
//
// Usage:
//
//  1. Start and initialize a client, then wrap it:
//
//	c, err := client.Start(ctx, client.Config{Command: "sqlbridge"})
//	...
//	if _, err := c.Init(ctx, "./data", "kb"); err != nil { ... }
//	db := driver.OpenDB(c)
//
//  2. Or let the driver start a bridge per connection from a DSN:
//
//	db, err := sql.Open("sqlbridge", "bridge=/usr/local/bin/sqlbridge&db_path=./data&db_name=kb")
//
// Semantics:
//
//   - The bridge holds one implicit transaction. Statements run outside
//     Begin are committed immediately after they succeed; inside Begin they
//     are committed or rolled back with the Tx.
//   - Arguments are substituted into the statement text by the bridge;
//     named arguments are not supported.
//   - Result rows are fully buffered. Column names are not part of the
//     protocol, so they are reported as column1, column2, ...
//   - LastInsertId is not supported; use a RETURNING clause instead.
//   - A bridge that has exited surfaces as driver.ErrBadConn.
package driver
