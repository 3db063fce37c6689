package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/sqlbridge/bridge/types"
	"github.com/tomyedwab/sqlbridge/value"
)

func TestParams_Text(t *testing.T) {
	p := Params{
		"name": value.Text("kb"),
		"null": value.Null(),
		"num":  value.Int(3),
	}

	s, err := p.Text("name", "def")
	require.NoError(t, err)
	assert.Equal(t, "kb", s)

	s, err = p.Text("null", "def")
	require.NoError(t, err)
	assert.Equal(t, "def", s)

	s, err = p.Text("absent", "def")
	require.NoError(t, err)
	assert.Equal(t, "def", s)

	_, err = p.Text("num", "def")
	assert.Error(t, err)
}

func TestParams_SQLAndValues(t *testing.T) {
	_, err := Params{}.SQL()
	assert.Error(t, err)
	_, err = Params{"sql": value.Int(1)}.SQL()
	assert.Error(t, err)

	vs, err := Params{"sql": value.Text("SELECT 1")}.Values()
	require.NoError(t, err)
	assert.Empty(t, vs)

	_, err = Params{"values": value.Text("x")}.Values()
	assert.Error(t, err)

	vs, err = Params{"values": value.List(value.Int(1), value.Null())}.Values()
	require.NoError(t, err)
	assert.Len(t, vs, 2)
}

func TestRouter_CustomRoute(t *testing.T) {
	r := NewRouter(newTestSession(t), Config{Logger: discardLogger()})
	r.Handle("echo", types.QueryError, func(_ context.Context, p Params) (any, error) {
		s, err := p.Text("msg", "")
		if err != nil {
			return nil, err
		}
		if s == "" {
			return nil, errors.New("nothing to echo")
		}
		return map[string]string{"msg": s}, nil
	})

	resp := r.Dispatch(context.Background(), types.Request{
		Command: "echo",
		Params:  map[string]value.Value{"msg": value.Text("hi")},
	})
	require.True(t, resp.OK())
	assert.Equal(t, map[string]string{"msg": "hi"}, resp.Data)

	resp = r.Dispatch(context.Background(), types.Request{Command: "echo"})
	assert.Equal(t, types.Failure(types.QueryError, "nothing to echo"), resp)

	resp = r.Dispatch(context.Background(), types.Request{Command: "missing"})
	assert.Equal(t, types.Failure(types.UnknownCommand, "Unknown command: missing"), resp)
}

func TestRouter_MissingSQL(t *testing.T) {
	r := NewRouter(newTestSession(t), Config{Logger: discardLogger()})
	for _, tt := range []struct {
		command string
		kind    types.ErrorKind
	}{
		{types.CommandExecute, types.ExecuteError},
		{types.CommandQuery, types.QueryError},
		{types.CommandQueryOne, types.QueryOneError},
	} {
		resp := r.Dispatch(context.Background(), types.Request{Command: tt.command})
		assert.False(t, resp.OK(), tt.command)
		assert.Equal(t, tt.kind, resp.Error, tt.command)
	}
}

func TestRouter_DispatchJSON(t *testing.T) {
	r := NewRouter(newTestSession(t), Config{Logger: discardLogger()})
	ctx := context.Background()

	tests := []struct {
		raw     string
		kind    types.ErrorKind
		details string
	}{
		{`{"command":5}`, types.UnknownCommand, "Unknown command: 5"},
		{`{"command":{"a":1}}`, types.UnknownCommand, `Unknown command: {"a":1}`},
		{`{"command":null}`, types.UnknownCommand, "Unknown command: "},
		{`[1]`, types.InternalError, "request must be a JSON object"},
		{`"ping"`, types.InternalError, "request must be a JSON object"},
		{`null`, types.InternalError, "request must be a JSON object"},
		{`{"command":"query","params":[]}`, types.QueryError, ""},
		{`{"command":"init","params":"kb"}`, types.InitError, ""},
	}
	for _, tt := range tests {
		resp := r.DispatchJSON(ctx, json.RawMessage(tt.raw))
		assert.Equal(t, types.StatusError, resp.Status, tt.raw)
		assert.Equal(t, tt.kind, resp.Error, tt.raw)
		if tt.details != "" {
			assert.Equal(t, tt.details, resp.Details, tt.raw)
		}
	}

	for _, raw := range []string{
		`{"command":"ping","params":[]}`,
		`{"command":"ping","params":null}`,
		`{"command":"ping","params":{"x":[1,2]}}`,
	} {
		resp := r.DispatchJSON(ctx, json.RawMessage(raw))
		require.True(t, resp.OK(), raw)
		assert.Equal(t, types.PingData{Message: "pong"}, resp.Data, raw)
	}
}

func TestRouter_DispatchJSONDecodesParams(t *testing.T) {
	r := NewRouter(newTestSession(t), Config{Logger: discardLogger()})
	var got Params
	r.Handle("capture", types.QueryError, func(_ context.Context, p Params) (any, error) {
		got = p
		return types.Empty{}, nil
	})

	resp := r.DispatchJSON(context.Background(), json.RawMessage(`{"command":"capture","params":{"sql":"SELECT ?","values":[1,"a"]}}`))
	require.True(t, resp.OK())
	sql, err := got.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT ?", sql)
	vs, err := got.Values()
	require.NoError(t, err)
	assert.Len(t, vs, 2)

	// Absent params reach the handler as an empty map.
	resp = r.DispatchJSON(context.Background(), json.RawMessage(`{"command":"capture"}`))
	require.True(t, resp.OK())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
