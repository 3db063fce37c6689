package types

import (
	"encoding/json"
	"fmt"

	"github.com/tomyedwab/sqlbridge/value"
)

// --- JSON structures for the stdio protocol ---

// Command names accepted by the bridge.
const (
	CommandInit     = "init"
	CommandExecute  = "execute"
	CommandQuery    = "query"
	CommandQueryOne = "query_one"
	CommandCommit   = "commit"
	CommandRollback = "rollback"
	CommandPing     = "ping"
)

// Request is one line sent by the host.
type Request struct {
	Command string                 `json:"command"`
	Params  map[string]value.Value `json:"params,omitempty"`
}

// Status is the outcome field of a Response.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorKind tags an error response with the stage that failed.
type ErrorKind string

const (
	InitError      ErrorKind = "InitError"
	ExecuteError   ErrorKind = "ExecuteError"
	QueryError     ErrorKind = "QueryError"
	QueryOneError  ErrorKind = "QueryOneError"
	CommitError    ErrorKind = "CommitError"
	RollbackError  ErrorKind = "RollbackError"
	JSONError      ErrorKind = "JSONError"
	InternalError  ErrorKind = "InternalError"
	UnknownCommand ErrorKind = "UnknownCommand"
)

// Response is one line written back for every Request.
type Response struct {
	Status  Status    `json:"status"`
	Data    any       `json:"data,omitempty"`
	Error   ErrorKind `json:"error,omitempty"`
	Details string    `json:"details,omitempty"`
}

// Success returns a success response carrying data.
func Success(data any) Response {
	return Response{Status: StatusSuccess, Data: data}
}

// Failure returns an error response of the given kind.
func Failure(kind ErrorKind, details string) Response {
	return Response{Status: StatusError, Error: kind, Details: details}
}

// OK reports whether r is a success response.
func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

// --- Command payloads ---

// InitData is returned by init.
type InitData struct {
	DBPath string `json:"db_path"`
	DBName string `json:"db_name"`
}

// ExecuteData is returned by execute.
type ExecuteData struct {
	RowsAffected int64 `json:"rows_affected"`
}

// QueryData is returned by query. Rows is never null on the wire.
type QueryData struct {
	Rows [][]value.Value `json:"rows"`
}

func (d QueryData) MarshalJSON() ([]byte, error) {
	rows := d.Rows
	if rows == nil {
		rows = [][]value.Value{}
	}
	for i, r := range rows {
		if r == nil {
			rows[i] = []value.Value{}
		}
	}
	return json.Marshal(struct {
		Rows [][]value.Value `json:"rows"`
	}{rows})
}

// QueryOneData is returned by query_one. Row is null when nothing matched.
type QueryOneData struct {
	Row []value.Value `json:"row"`
}

// PingData is returned by ping.
type PingData struct {
	Message string `json:"message"`
}

// Empty is the payload of commit and rollback.
type Empty struct{}

// --- Decoded (host side) payloads ---

// Reply is a Response as read by a host, with data left undecoded.
type Reply struct {
	Status  Status          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   ErrorKind       `json:"error,omitempty"`
	Details string          `json:"details,omitempty"`
}

// Validate checks that the reply has a known status.
func (r Reply) Validate() error {
	switch r.Status {
	case StatusSuccess, StatusError:
		return nil
	default:
		return fmt.Errorf("invalid response status %q", r.Status)
	}
}
