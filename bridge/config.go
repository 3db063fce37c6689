package bridge

import (
	"log/slog"
)

const (
	defaultEngine        = "sqlite"
	defaultDBPath        = "./seekdb.db"
	defaultDBName        = "mine_kb"
	defaultAdminDatabase = "test"
	defaultLogSQLBytes   = 200
)

// Config holds bridge options. The zero value is usable.
type Config struct {
	// Engine is the registered engine name. Default: "sqlite".
	Engine string

	// DefaultPath and DefaultName are used by init when the request omits
	// db_path or db_name. Defaults: "./seekdb.db" and "mine_kb".
	DefaultPath string
	DefaultName string

	// AdminDatabase is the database connected to while creating the working
	// database. Default: "test".
	AdminDatabase string

	// Logger for diagnostics. Uses slog.Default() if nil. It must not write
	// to the response stream.
	Logger *slog.Logger

	// LogSQLBytes bounds how much statement text is logged. Default: 200.
	LogSQLBytes int
}

// defaults returns a copy of cfg with default values applied.
func (cfg Config) defaults() Config {
	if cfg.Engine == "" {
		cfg.Engine = defaultEngine
	}
	if cfg.DefaultPath == "" {
		cfg.DefaultPath = defaultDBPath
	}
	if cfg.DefaultName == "" {
		cfg.DefaultName = defaultDBName
	}
	if cfg.AdminDatabase == "" {
		cfg.AdminDatabase = defaultAdminDatabase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LogSQLBytes == 0 {
		cfg.LogSQLBytes = defaultLogSQLBytes
	}
	return cfg
}
