// Command sqlbridge serves a SQL engine over newline-delimited JSON on
// stdin and stdout. Diagnostics go to stderr.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/tomyedwab/sqlbridge/engine/sqlite"
)

var (
	flagEngine   string
	flagDBPath   string
	flagDBName   string
	flagLogLevel string
)

// rootCmd serves the protocol when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "sqlbridge",
	Short: "Line-oriented JSON bridge to an embedded SQL engine",
	Long: `sqlbridge reads one JSON request per line on stdin and writes one JSON
response per line on stdout. Run without a subcommand it serves until stdin
closes or it receives SIGINT or SIGTERM.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagEngine, "engine", envOr("SQLBRIDGE_ENGINE", "sqlite"), "engine to load (env SQLBRIDGE_ENGINE)")
	pf.StringVar(&flagDBPath, "db-path", envOr("SQLBRIDGE_DB_PATH", "./seekdb.db"), "default instance path for init (env SQLBRIDGE_DB_PATH)")
	pf.StringVar(&flagDBName, "db-name", envOr("SQLBRIDGE_DB_NAME", "mine_kb"), "default database name for init (env SQLBRIDGE_DB_NAME)")
	pf.StringVar(&flagLogLevel, "log-level", envOr("SQLBRIDGE_LOG_LEVEL", "info"), "debug, info, warn or error (env SQLBRIDGE_LOG_LEVEL)")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	Execute()
}
