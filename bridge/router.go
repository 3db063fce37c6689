package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/tomyedwab/sqlbridge/bridge/types"
	"github.com/tomyedwab/sqlbridge/value"
)

// Params are the decoded params of a request.
type Params map[string]value.Value

// Text returns the text param key, or def if it is absent or null.
func (p Params) Text(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v.IsNull() {
		return def, nil
	}
	s, ok := v.AsText()
	if !ok {
		return "", fmt.Errorf("param %q must be a string, got %s", key, v.Kind())
	}
	return s, nil
}

// SQL returns the required sql param.
func (p Params) SQL() (string, error) {
	v, ok := p["sql"]
	if !ok || v.IsNull() {
		return "", fmt.Errorf("missing param \"sql\"")
	}
	s, ok := v.AsText()
	if !ok {
		return "", fmt.Errorf("param \"sql\" must be a string, got %s", v.Kind())
	}
	return s, nil
}

// Values returns the values param. Absent or null means no values.
func (p Params) Values() ([]value.Value, error) {
	v, ok := p["values"]
	if !ok || v.IsNull() {
		return nil, nil
	}
	vs, ok := v.AsList()
	if !ok {
		return nil, fmt.Errorf("param \"values\" must be an array, got %s", v.Kind())
	}
	return vs, nil
}

// HandlerFunc handles one command and returns its success payload.
type HandlerFunc func(ctx context.Context, params Params) (any, error)

type route struct {
	kind         types.ErrorKind
	handler      HandlerFunc
	ignoreParams bool
}

// Router dispatches requests to the session. A handler error becomes an
// error response tagged with the route's error kind.
type Router struct {
	session *Session
	cfg     Config
	logger  *slog.Logger
	routes  map[string]route
}

// NewRouter returns a router with the standard commands registered.
func NewRouter(session *Session, cfg Config) *Router {
	cfg = cfg.defaults()
	r := &Router{
		session: session,
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "Router"),
		routes:  make(map[string]route),
	}
	r.Handle(types.CommandInit, types.InitError, r.handleInit)
	r.Handle(types.CommandExecute, types.ExecuteError, r.handleExecute)
	r.Handle(types.CommandQuery, types.QueryError, r.handleQuery)
	r.Handle(types.CommandQueryOne, types.QueryOneError, r.handleQueryOne)
	r.registerNoParams(types.CommandCommit, types.CommitError, r.handleCommit)
	r.registerNoParams(types.CommandRollback, types.RollbackError, r.handleRollback)
	r.registerNoParams(types.CommandPing, types.InternalError, r.handlePing)
	return r
}

// Handle registers fn for command, replacing any existing handler.
func (r *Router) Handle(command string, kind types.ErrorKind, fn HandlerFunc) {
	r.routes[command] = route{kind: kind, handler: fn}
}

// registerNoParams registers a command whose params are never decoded.
func (r *Router) registerNoParams(command string, kind types.ErrorKind, fn HandlerFunc) {
	r.routes[command] = route{kind: kind, handler: fn, ignoreParams: true}
}

// Dispatch runs one decoded request. It always returns a response; a
// panicking handler yields an InternalError.
func (r *Router) Dispatch(ctx context.Context, req types.Request) types.Response {
	return r.run(ctx, req.Command, func() (Params, error) {
		return Params(req.Params), nil
	})
}

// DispatchJSON runs one request given as syntactically valid JSON. A request
// that is not an object is an InternalError and a command that is not a
// string is unknown. Params are decoded only for commands that read them; a
// failure there is reported with the command's own error kind.
func (r *Router) DispatchJSON(ctx context.Context, raw json.RawMessage) types.Response {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		r.logger.Warn("request is not an object")
		return types.Failure(types.InternalError, "request must be a JSON object")
	}

	var command string
	if c, ok := fields["command"]; ok {
		if err := json.Unmarshal(c, &command); err != nil {
			return r.unknown(string(c))
		}
	}
	return r.run(ctx, command, func() (Params, error) {
		return decodeParams(fields["params"])
	})
}

func decodeParams(raw json.RawMessage) (Params, error) {
	p := Params{}
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("params must be an object: %w", err)
	}
	return p, nil
}

func (r *Router) unknown(command string) types.Response {
	r.logger.Warn("unknown command", "command", command)
	return types.Failure(types.UnknownCommand, "Unknown command: "+command)
}

func (r *Router) run(ctx context.Context, command string, params func() (Params, error)) (resp types.Response) {
	rt, ok := r.routes[command]
	if !ok {
		return r.unknown(command)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panicked", "command", command, "panic", p, "stack", string(debug.Stack()))
			resp = types.Failure(types.InternalError, fmt.Sprintf("internal error: %v", p))
		}
	}()

	var p Params
	if !rt.ignoreParams {
		var err error
		if p, err = params(); err != nil {
			r.logger.Error("command failed", "command", command, "error", err)
			return types.Failure(rt.kind, err.Error())
		}
	}
	data, err := rt.handler(ctx, p)
	if err != nil {
		r.logger.Error("command failed", "command", command, "error", err)
		return types.Failure(rt.kind, err.Error())
	}
	return types.Success(data)
}

func (r *Router) handleInit(ctx context.Context, p Params) (any, error) {
	path, err := p.Text("db_path", r.cfg.DefaultPath)
	if err != nil {
		return nil, err
	}
	name, err := p.Text("db_name", r.cfg.DefaultName)
	if err != nil {
		return nil, err
	}
	if err := r.session.Init(ctx, path, name); err != nil {
		return nil, fmt.Errorf("database initialization failed\npath: %s\ndatabase: %s\nerror: %w", path, name, err)
	}
	return types.InitData{DBPath: path, DBName: name}, nil
}

func (r *Router) handleExecute(ctx context.Context, p Params) (any, error) {
	sql, values, err := statementParams(p)
	if err != nil {
		return nil, err
	}
	n, err := r.session.Execute(ctx, sql, values)
	if err != nil {
		return nil, err
	}
	return types.ExecuteData{RowsAffected: n}, nil
}

func (r *Router) handleQuery(ctx context.Context, p Params) (any, error) {
	sql, values, err := statementParams(p)
	if err != nil {
		return nil, err
	}
	rows, err := r.session.Query(ctx, sql, values)
	if err != nil {
		return nil, err
	}
	return types.QueryData{Rows: rows}, nil
}

func (r *Router) handleQueryOne(ctx context.Context, p Params) (any, error) {
	sql, values, err := statementParams(p)
	if err != nil {
		return nil, err
	}
	row, err := r.session.QueryOne(ctx, sql, values)
	if err != nil {
		return nil, err
	}
	return types.QueryOneData{Row: row}, nil
}

func (r *Router) handleCommit(ctx context.Context, _ Params) (any, error) {
	if err := r.session.Commit(ctx); err != nil {
		return nil, err
	}
	return types.Empty{}, nil
}

func (r *Router) handleRollback(ctx context.Context, _ Params) (any, error) {
	if err := r.session.Rollback(ctx); err != nil {
		return nil, err
	}
	return types.Empty{}, nil
}

func (r *Router) handlePing(context.Context, Params) (any, error) {
	return types.PingData{Message: "pong"}, nil
}

func statementParams(p Params) (string, []value.Value, error) {
	sql, err := p.SQL()
	if err != nil {
		return "", nil, err
	}
	values, err := p.Values()
	if err != nil {
		return "", nil, err
	}
	return sql, values, nil
}
