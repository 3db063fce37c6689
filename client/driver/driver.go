package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"

	"github.com/tomyedwab/sqlbridge/client"
	"github.com/tomyedwab/sqlbridge/statement"
	"github.com/tomyedwab/sqlbridge/value"
)

const driverName = "sqlbridge"

func init() {
	sql.Register(driverName, &Driver{})
}

var (
	errTxActive  = errors.New("sqlbridge: transaction already active on this connection")
	errTxDone    = errors.New("sqlbridge: transaction already committed or rolled back")
	errNamedArgs = errors.New("sqlbridge: named arguments are not supported")
)

// --- Driver implementation ---

// Driver starts a bridge process per connection from a DSN of the form
//
//	bridge=/path/to/sqlbridge&db_path=./data&db_name=kb
//
// bridge is required; db_path and db_name fall back to the bridge defaults.
type Driver struct{}

// Open starts a bridge and initializes it from dsn.
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	conn, err := d.OpenConnector(dsn)
	if err != nil {
		return nil, err
	}
	return conn.Connect(context.Background())
}

// OpenConnector parses dsn without starting anything.
func (d *Driver) OpenConnector(dsn string) (driver.Connector, error) {
	q, err := url.ParseQuery(dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlbridge: invalid DSN: %w", err)
	}
	bin := q.Get("bridge")
	if bin == "" {
		return nil, fmt.Errorf("sqlbridge: DSN is missing bridge")
	}
	return &dsnConnector{
		driver: d,
		cfg:    client.Config{Command: bin, Args: q["arg"]},
		path:   q.Get("db_path"),
		name:   q.Get("db_name"),
	}, nil
}

type dsnConnector struct {
	driver     *Driver
	cfg        client.Config
	path, name string
}

func (c *dsnConnector) Connect(ctx context.Context) (driver.Conn, error) {
	cl, err := client.Start(ctx, c.cfg)
	if err != nil {
		return nil, fmt.Errorf("sqlbridge: %w", err)
	}
	if _, err := cl.Init(ctx, c.path, c.name); err != nil {
		cl.Shutdown(ctx)
		return nil, fmt.Errorf("sqlbridge: %w", err)
	}
	return &Conn{client: cl, owned: true}, nil
}

func (c *dsnConnector) Driver() driver.Driver {
	return c.driver
}

// --- Connector over an existing client ---

type clientConnector struct {
	client *client.Client
	mu     sync.Mutex
	inUse  bool
}

// NewConnector returns a connector that hands out the already initialized
// client. The bridge has one session, so only one connection exists at a
// time; the client is not shut down when the connection closes.
func NewConnector(c *client.Client) driver.Connector {
	return &clientConnector{client: c}
}

// OpenDB returns a *sql.DB over c limited to a single connection.
func OpenDB(c *client.Client) *sql.DB {
	db := sql.OpenDB(NewConnector(c))
	db.SetMaxOpenConns(1)
	return db
}

func (c *clientConnector) Connect(ctx context.Context) (driver.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inUse {
		return nil, fmt.Errorf("sqlbridge: client already has an open connection")
	}
	c.inUse = true
	return &Conn{client: c.client, release: c.release}, nil
}

func (c *clientConnector) release() {
	c.mu.Lock()
	c.inUse = false
	c.mu.Unlock()
}

func (c *clientConnector) Driver() driver.Driver {
	return &Driver{}
}

// --- Connection implementation ---

// Conn implements the driver.Conn interface. Statements outside an explicit
// transaction are committed as soon as they succeed.
type Conn struct {
	client  *client.Client
	owned   bool
	release func()
	inTx    bool
	closed  bool
}

var (
	_ driver.ExecerContext      = (*Conn)(nil)
	_ driver.QueryerContext     = (*Conn)(nil)
	_ driver.ConnBeginTx        = (*Conn)(nil)
	_ driver.ConnPrepareContext = (*Conn)(nil)
	_ driver.Pinger             = (*Conn)(nil)
)

// Prepare returns a prepared statement. Nothing is sent to the bridge until
// the statement runs.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext returns a prepared statement.
func (c *Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if c.closed {
		return nil, driver.ErrBadConn
	}
	return &Stmt{conn: c, query: query}, nil
}

// Close releases the connection. A connection opened from a DSN also stops
// its bridge.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.release != nil {
		c.release()
	}
	if c.owned {
		return c.client.Shutdown(context.Background())
	}
	return nil
}

// Begin starts and returns a new transaction.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx starts a transaction. The bridge always has one open, so this
// only stops the connection from committing after each statement.
func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if c.inTx {
		return nil, errTxActive
	}
	if opts.ReadOnly {
		return nil, fmt.Errorf("sqlbridge: read-only transactions are not supported")
	}
	c.inTx = true
	return &Tx{conn: c}, nil
}

// Ping checks that the bridge answers.
func (c *Conn) Ping(ctx context.Context) error {
	if c.closed {
		return driver.ErrBadConn
	}
	if err := c.client.Ping(ctx); err != nil {
		return c.wrap(err)
	}
	return nil
}

// ExecContext runs query and commits it unless a transaction is open.
func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	params, err := namedArgs(args)
	if err != nil {
		return nil, err
	}
	n, err := c.client.Execute(ctx, query, params...)
	if err != nil {
		return nil, c.wrap(err)
	}
	if !c.inTx {
		if err := c.client.Commit(ctx); err != nil {
			return nil, c.wrap(err)
		}
	}
	return result{rowsAffected: n}, nil
}

// QueryContext runs query and buffers every row.
func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	params, err := namedArgs(args)
	if err != nil {
		return nil, err
	}
	data, err := c.client.Query(ctx, query, params...)
	if err != nil {
		return nil, c.wrap(err)
	}
	return newRows(data), nil
}

// wrap reports a dead bridge as a bad connection so database/sql discards
// it.
func (c *Conn) wrap(err error) error {
	if errors.Is(err, client.ErrExited) || errors.Is(err, client.ErrClosed) {
		return fmt.Errorf("%w: %v", driver.ErrBadConn, err)
	}
	return err
}

func namedArgs(args []driver.NamedValue) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		if a.Name != "" {
			return nil, errNamedArgs
		}
		out[i] = a.Value
	}
	return out, nil
}

// --- Statement implementation ---

// Stmt implements the driver.Stmt interface.
type Stmt struct {
	conn  *Conn
	query string
}

var (
	_ driver.StmtExecContext  = (*Stmt)(nil)
	_ driver.StmtQueryContext = (*Stmt)(nil)
)

// Close closes the statement.
func (s *Stmt) Close() error {
	return nil
}

// NumInput returns the number of placeholders in the statement.
func (s *Stmt) NumInput() int {
	return statement.Count(s.query)
}

// Exec executes the statement with the given arguments.
func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), toNamed(args))
}

// ExecContext executes the statement with the given arguments.
func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

// Query executes the statement with the given arguments and returns Rows.
func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), toNamed(args))
}

// QueryContext executes the statement with the given arguments and returns
// Rows.
func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

func toNamed(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

// --- Transaction implementation ---

// Tx implements the driver.Tx interface.
type Tx struct {
	conn *Conn
	done bool
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.conn.inTx = false
	return t.conn.wrap(t.conn.client.Commit(context.Background()))
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.conn.inTx = false
	return t.conn.wrap(t.conn.client.Rollback(context.Background()))
}

// --- Result implementation ---

type result struct {
	rowsAffected int64
}

// LastInsertId is not reported by the bridge.
func (r result) LastInsertId() (int64, error) {
	return 0, fmt.Errorf("sqlbridge: LastInsertId is not supported")
}

func (r result) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// --- Rows implementation ---

// rows serves a fully buffered result. The bridge does not send column
// names, so columns are named column1, column2, and so on.
type rows struct {
	columns []string
	data    [][]value.Value
	next    int
}

func newRows(data [][]value.Value) *rows {
	width := 0
	if len(data) > 0 {
		width = len(data[0])
	}
	cols := make([]string, width)
	for i := range cols {
		cols[i] = "column" + strconv.Itoa(i+1)
	}
	return &rows{columns: cols, data: data}
}

func (r *rows) Columns() []string {
	return r.columns
}

func (r *rows) Close() error {
	r.data = nil
	return nil
}

func (r *rows) Next(dest []driver.Value) error {
	if r.next >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.next]
	if len(row) != len(dest) {
		return fmt.Errorf("sqlbridge: column count mismatch. Expected %d, got %d", len(dest), len(row))
	}
	for i, v := range row {
		dv, err := driverValue(v)
		if err != nil {
			return err
		}
		dest[i] = dv
	}
	r.next++
	return nil
}

// driverValue maps a Value onto the types database/sql can convert from.
// Lists and maps are handed over as their JSON text.
func driverValue(v value.Value) (driver.Value, error) {
	switch v.Kind() {
	case value.KindNull:
		return nil, nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b, nil
	case value.KindInt:
		i, _ := v.AsInt()
		return i, nil
	case value.KindFloat:
		f, _ := v.AsFloat()
		return f, nil
	case value.KindText:
		s, _ := v.AsText()
		return s, nil
	case value.KindBinary:
		b, _ := v.AsBinary()
		return b, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("sqlbridge: %w", err)
		}
		return string(b), nil
	}
}
