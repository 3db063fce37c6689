package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/sqlbridge/bridge/types"
	"github.com/tomyedwab/sqlbridge/engine/sqlite"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	logger := discardLogger()
	cfg := Config{Logger: logger}
	s := NewSession(&sqlite.Engine{Logger: logger}, cfg)
	t.Cleanup(s.Close)
	return NewRouter(s, cfg)
}

// serveLines feeds input to Serve and returns the decoded response lines.
func serveLines(t *testing.T, d Dispatcher, input string) []types.Reply {
	t.Helper()
	var out bytes.Buffer
	err := Serve(context.Background(), strings.NewReader(input), &out, d, discardLogger())
	require.NoError(t, err)

	var replies []types.Reply
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r types.Reply
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), "response line %q", sc.Text())
		require.NoError(t, r.Validate())
		replies = append(replies, r)
	}
	require.NoError(t, sc.Err())
	return replies
}

func request(t *testing.T, command string, params map[string]any) string {
	t.Helper()
	m := map[string]any{"command": command}
	if params != nil {
		m["params"] = params
	}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return string(b) + "\n"
}

func TestServe_KnowledgeBaseScenario(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seekdb.db")
	input := request(t, "init", map[string]any{"db_path": dir, "db_name": "mine_kb"}) +
		request(t, "execute", map[string]any{"sql": "CREATE TABLE docs (id INTEGER PRIMARY KEY, title TEXT, score REAL)"}) +
		request(t, "execute", map[string]any{"sql": "INSERT INTO docs (id, title, score) VALUES (?, ?, ?)", "values": []any{1, "Intro", 0.5}}) +
		request(t, "execute", map[string]any{"sql": "INSERT INTO docs (id, title, score) VALUES (?, ?, ?)", "values": []any{2, "O'Brien's notes", nil}}) +
		request(t, "commit", nil) +
		request(t, "query", map[string]any{"sql": "SELECT id, title, score FROM docs ORDER BY id"}) +
		request(t, "query_one", map[string]any{"sql": "SELECT title FROM docs WHERE id = ?", "values": []any{2}})

	replies := serveLines(t, newTestRouter(t), input)
	require.Len(t, replies, 7)
	for i, r := range replies {
		require.Equal(t, types.StatusSuccess, r.Status, "reply %d: %s %s", i, r.Error, r.Details)
	}

	assert.JSONEq(t, `{"db_path":`+jsonString(t, dir)+`,"db_name":"mine_kb"}`, string(replies[0].Data))
	assert.JSONEq(t, `{"rows_affected":0}`, string(replies[1].Data))
	assert.JSONEq(t, `{"rows_affected":1}`, string(replies[2].Data))
	assert.JSONEq(t, `{"rows_affected":1}`, string(replies[3].Data))
	assert.JSONEq(t, `{}`, string(replies[4].Data))
	assert.JSONEq(t, `{"rows":[[1,"Intro",0.5],[2,"O'Brien's notes",null]]}`, string(replies[5].Data))
	assert.JSONEq(t, `{"row":["O'Brien's notes"]}`, string(replies[6].Data))
}

func TestServe_InitDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "instance")
	logger := discardLogger()
	cfg := Config{Logger: logger, DefaultPath: dir}
	s := NewSession(&sqlite.Engine{Logger: logger}, cfg)
	t.Cleanup(s.Close)

	replies := serveLines(t, NewRouter(s, cfg), `{"command":"init"}`+"\n")
	require.Len(t, replies, 1)
	require.Equal(t, types.StatusSuccess, replies[0].Status, replies[0].Details)
	assert.JSONEq(t, `{"db_path":`+jsonString(t, dir)+`,"db_name":"mine_kb"}`, string(replies[0].Data))
}

func TestServe_RollbackDiscardsExecutes(t *testing.T) {
	input := request(t, "init", map[string]any{"db_path": t.TempDir(), "db_name": "kb"}) +
		request(t, "execute", map[string]any{"sql": "CREATE TABLE t (id INTEGER)"}) +
		request(t, "commit", nil) +
		request(t, "execute", map[string]any{"sql": "INSERT INTO t VALUES (?)", "values": []any{1}}) +
		request(t, "execute", map[string]any{"sql": "INSERT INTO t VALUES (?)", "values": []any{2}}) +
		request(t, "rollback", nil) +
		request(t, "query", map[string]any{"sql": "SELECT id FROM t"}) +
		request(t, "query_one", map[string]any{"sql": "SELECT id FROM t"})

	replies := serveLines(t, newTestRouter(t), input)
	require.Len(t, replies, 8)
	assert.JSONEq(t, `{}`, string(replies[5].Data))
	assert.JSONEq(t, `{"rows":[]}`, string(replies[6].Data))
	assert.JSONEq(t, `{"row":null}`, string(replies[7].Data))
}

func TestServe_BeforeInit(t *testing.T) {
	input := request(t, "execute", map[string]any{"sql": "SELECT 1"}) +
		request(t, "query", map[string]any{"sql": "SELECT 1"}) +
		request(t, "query_one", map[string]any{"sql": "SELECT 1"}) +
		request(t, "commit", nil) +
		request(t, "rollback", nil)

	replies := serveLines(t, newTestRouter(t), input)
	require.Len(t, replies, 5)
	kinds := []types.ErrorKind{types.ExecuteError, types.QueryError, types.QueryOneError, types.CommitError, types.RollbackError}
	for i, want := range kinds {
		assert.Equal(t, types.StatusError, replies[i].Status)
		assert.Equal(t, want, replies[i].Error)
		assert.Contains(t, replies[i].Details, "not initialized")
	}
}

func TestServe_InitError(t *testing.T) {
	input := request(t, "init", map[string]any{"db_path": t.TempDir(), "db_name": "bad name"}) +
		request(t, "ping", nil)

	replies := serveLines(t, newTestRouter(t), input)
	require.Len(t, replies, 2)
	assert.Equal(t, types.InitError, replies[0].Error)
	assert.Contains(t, replies[0].Details, "bad name")
	assert.Contains(t, replies[0].Details, "invalid database name")
	assert.Equal(t, types.StatusSuccess, replies[1].Status)
}

func TestServe_StatementErrors(t *testing.T) {
	input := request(t, "init", map[string]any{"db_path": t.TempDir(), "db_name": "kb"}) +
		request(t, "execute", map[string]any{"sql": "INSERT INTO missing VALUES (1)"}) +
		request(t, "query", map[string]any{"sql": 42}) +
		request(t, "query_one", map[string]any{"sql": "SELECT ?", "values": "nope"}) +
		request(t, "execute", map[string]any{"sql": "SELECT ?, ?", "values": []any{1}}) +
		request(t, "execute", map[string]any{})

	replies := serveLines(t, newTestRouter(t), input)
	require.Len(t, replies, 6)
	require.Equal(t, types.StatusSuccess, replies[0].Status, replies[0].Details)

	assert.Equal(t, types.ExecuteError, replies[1].Error)
	assert.Contains(t, replies[1].Details, "missing")
	assert.Equal(t, types.QueryError, replies[2].Error)
	assert.Equal(t, types.QueryOneError, replies[3].Error)
	assert.Equal(t, types.ExecuteError, replies[4].Error)
	assert.Contains(t, replies[4].Details, "placeholder")
	assert.Equal(t, types.ExecuteError, replies[5].Error)
}

func TestServe_UnknownCommand(t *testing.T) {
	replies := serveLines(t, newTestRouter(t), `{"command":"vacuum"}`+"\n"+`{"params":{}}`+"\n")
	require.Len(t, replies, 2)
	assert.Equal(t, types.UnknownCommand, replies[0].Error)
	assert.Equal(t, "Unknown command: vacuum", replies[0].Details)
	assert.Equal(t, types.UnknownCommand, replies[1].Error)
}

func TestServe_PingIsIdempotent(t *testing.T) {
	input := strings.Repeat(`{"command":"ping"}`+"\n", 3)
	replies := serveLines(t, newTestRouter(t), input)
	require.Len(t, replies, 3)
	for _, r := range replies {
		assert.Equal(t, types.StatusSuccess, r.Status)
		assert.JSONEq(t, `{"message":"pong"}`, string(r.Data))
	}
}

func TestServe_MalformedJSON(t *testing.T) {
	input := "{not json\n" + `{"command":"ping"}` + "\n" + "[1,2]\n"
	replies := serveLines(t, newTestRouter(t), input)
	require.Len(t, replies, 3)
	assert.Equal(t, types.JSONError, replies[0].Error)
	assert.NotEmpty(t, replies[0].Details)
	assert.Equal(t, types.StatusSuccess, replies[1].Status)
	assert.Equal(t, types.InternalError, replies[2].Error)
}

func TestServe_ValidJSONWithWrongShape(t *testing.T) {
	input := strings.Join([]string{
		`{"command":5}`,
		`{"command":"ping","params":[]}`,
		`[1]`,
		`null`,
		`{"command":"execute","params":[]}`,
		`{"command":"commit","params":"x"}`,
		`{"command":"init","params":{"db_name":7}}`,
	}, "\n") + "\n"

	replies := serveLines(t, newTestRouter(t), input)
	require.Len(t, replies, 7)

	assert.Equal(t, types.UnknownCommand, replies[0].Error)
	assert.Equal(t, "Unknown command: 5", replies[0].Details)

	assert.Equal(t, types.StatusSuccess, replies[1].Status)
	assert.JSONEq(t, `{"message":"pong"}`, string(replies[1].Data))

	assert.Equal(t, types.InternalError, replies[2].Error)
	assert.Equal(t, types.InternalError, replies[3].Error)

	assert.Equal(t, types.ExecuteError, replies[4].Error)
	assert.Contains(t, replies[4].Details, "params must be an object")

	// commit ignores params; it fails only because nothing is open.
	assert.Equal(t, types.CommitError, replies[5].Error)
	assert.NotContains(t, replies[5].Details, "params")

	assert.Equal(t, types.InitError, replies[6].Error)
	for _, r := range replies {
		assert.NotEqual(t, types.JSONError, r.Error)
	}
}

func TestServe_BlankLinesAndUnterminatedLastLine(t *testing.T) {
	input := "\n   \n\t\r\n" + `{"command":"ping"}` + "\n\n" + `  {"command":"ping"}  `
	replies := serveLines(t, newTestRouter(t), input)
	require.Len(t, replies, 2)
}

func TestServe_LongLine(t *testing.T) {
	long := strings.Repeat("x", 1<<20)
	input := request(t, "init", map[string]any{"db_path": t.TempDir(), "db_name": "kb"}) +
		request(t, "query_one", map[string]any{"sql": "SELECT length(?)", "values": []any{long}})

	replies := serveLines(t, newTestRouter(t), input)
	require.Len(t, replies, 2)
	require.Equal(t, types.StatusSuccess, replies[1].Status, replies[1].Details)
	assert.JSONEq(t, `{"row":[1048576]}`, string(replies[1].Data))
}

func TestServe_HandlerPanic(t *testing.T) {
	r := newTestRouter(t)
	r.Handle("boom", types.InternalError, func(context.Context, Params) (any, error) {
		panic("kaboom")
	})

	replies := serveLines(t, r, `{"command":"boom"}`+"\n"+`{"command":"ping"}`+"\n")
	require.Len(t, replies, 2)
	assert.Equal(t, types.InternalError, replies[0].Error)
	assert.Contains(t, replies[0].Details, "kaboom")
	assert.Equal(t, types.StatusSuccess, replies[1].Status)
}

func TestServe_UnencodableResponse(t *testing.T) {
	r := newTestRouter(t)
	r.Handle("chan", types.InternalError, func(context.Context, Params) (any, error) {
		return make(chan int), nil
	})

	replies := serveLines(t, r, `{"command":"chan"}`+"\n")
	require.Len(t, replies, 1)
	assert.Equal(t, types.InternalError, replies[0].Error)
}

func TestServe_Cancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, pr, io.Discard, newTestRouter(t), discardLogger())
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_WriteFailure(t *testing.T) {
	pr, pw := io.Pipe()
	pr.Close()

	err := Serve(context.Background(), strings.NewReader(`{"command":"ping"}`+"\n"), pw, newTestRouter(t), discardLogger())
	assert.Error(t, err)
}

func jsonString(t *testing.T, s string) string {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return string(b)
}
