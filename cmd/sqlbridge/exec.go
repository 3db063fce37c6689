package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tomyedwab/sqlbridge/client"
	"github.com/tomyedwab/sqlbridge/value"
)

var (
	flagRollback bool
	flagTimeout  time.Duration
)

var execCmd = &cobra.Command{
	Use:   "exec SQL [VALUE...]",
	Short: "Run one statement through a bridge subprocess and print the result",
	Long: `exec starts this binary as a bridge subprocess, initializes --db-path and
--db-name, runs SQL with the given values and prints the result as a table.

Each VALUE is parsed as JSON when possible (42, 1.5, true, null, "text") and
otherwise used as text.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().BoolVar(&flagRollback, "rollback", false, "roll back instead of committing")
	execCmd.Flags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "overall timeout")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
	defer cancel()

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	c, err := client.Start(ctx, client.Config{
		Command: self,
		Args:    []string{"serve", "--engine", flagEngine, "--log-level", flagLogLevel},
		Stderr:  os.Stderr,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	if _, err := c.Init(ctx, flagDBPath, flagDBName); err != nil {
		return err
	}

	sql := args[0]
	values := parseValues(args[1:])
	if isQuery(sql) {
		rows, err := c.Query(ctx, sql, values...)
		if err != nil {
			return err
		}
		if err := finish(ctx, c); err != nil {
			return err
		}
		return renderRows(rows)
	}

	n, err := c.Execute(ctx, sql, values...)
	if err != nil {
		return err
	}
	if err := finish(ctx, c); err != nil {
		return err
	}
	pterm.Success.Printfln("%d row(s) affected", n)
	return nil
}

func finish(ctx context.Context, c *client.Client) error {
	if flagRollback {
		return c.Rollback(ctx)
	}
	return c.Commit(ctx)
}

// isQuery reports whether sql starts with a keyword that returns rows.
func isQuery(sql string) bool {
	fields := strings.Fields(strings.TrimLeft(sql, "( \t\r\n"))
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "VALUES", "PRAGMA", "EXPLAIN", "SHOW", "DESCRIBE":
		return true
	}
	return false
}

func parseValues(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		var v value.Value
		if err := json.Unmarshal([]byte(a), &v); err != nil {
			v = value.Text(a)
		}
		out[i] = v
	}
	return out
}

func renderRows(rows [][]value.Value) error {
	if len(rows) == 0 {
		pterm.Info.Println("no rows")
		return nil
	}
	header := make([]string, len(rows[0]))
	for i := range header {
		header[i] = "column" + strconv.Itoa(i+1)
	}
	data := pterm.TableData{header}
	for _, r := range rows {
		line := make([]string, len(r))
		for i, v := range r {
			line[i] = cell(v)
		}
		data = append(data, line)
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Info.Printfln("%d row(s)", len(rows))
	return nil
}

func cell(v value.Value) string {
	if s, ok := v.AsText(); ok {
		return s
	}
	if v.IsNull() {
		return "NULL"
	}
	return v.String()
}
