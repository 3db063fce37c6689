package sqlite

import "strings"

// setting is a pragma applied when a connection opens, named as in SQLite.
type setting struct {
	pragma string
	value  string
}

// probeSettings apply to the throwaway in-memory database opened by Probe.
var probeSettings = []setting{
	{pragma: "foreign_keys", value: "1"},
	{pragma: "busy_timeout", value: "5000"},
	{pragma: "journal_mode", value: "MEMORY"},
}

// fileSettings apply to every database file of an instance.
var fileSettings = []setting{
	{pragma: "foreign_keys", value: "1"},
	{pragma: "busy_timeout", value: "5000"},
	{pragma: "journal_mode", value: "WAL"},
	{pragma: "synchronous", value: "NORMAL"},
}

// dsn returns a file URI for path carrying settings in the query string,
// spelled the way the compiled-in driver expects.
func dsn(path string, settings []setting) string {
	params := make([]string, len(settings))
	for i, s := range settings {
		params[i] = driverParam(s)
	}
	uri := "file:" + path
	if len(params) == 0 {
		return uri
	}
	return uri + "?" + strings.Join(params, "&")
}
