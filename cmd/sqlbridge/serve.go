package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomyedwab/sqlbridge/bridge"
	"github.com/tomyedwab/sqlbridge/diag"
	"github.com/tomyedwab/sqlbridge/engine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON protocol on stdin and stdout (the default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// newLogger builds the stderr diagnostics logger from --log-level and makes
// it the default.
func newLogger() (*slog.Logger, error) {
	level, err := diag.ParseLevel(flagLogLevel)
	if err != nil {
		return nil, err
	}
	logger := diag.New(os.Stderr, diag.Tag, level)
	slog.SetDefault(logger)
	return logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bridge.Config{
		Engine:      flagEngine,
		DefaultPath: flagDBPath,
		DefaultName: flagDBName,
		Logger:      logger,
	}
	err = bridge.Run(ctx, cfg, os.Stdin, os.Stdout)

	var se *bridge.StartupError
	if errors.As(err, &se) {
		startupFailure(se)
		os.Exit(1)
	}
	if err != nil {
		return err
	}
	logger.Info("bridge stopped")
	return nil
}

// startupFailure prints what an operator needs to tell why the engine would
// not load.
func startupFailure(se *bridge.StartupError) {
	diag.Printf(os.Stderr, "fatal: failed to start")
	diag.Printf(os.Stderr, "  go version: %s", runtime.Version())
	diag.Printf(os.Stderr, "  platform:   %s/%s", runtime.GOOS, runtime.GOARCH)
	diag.Printf(os.Stderr, "  engine:     %s", se.Engine)
	diag.Printf(os.Stderr, "  available:  %s", strings.Join(engine.Engines(), ", "))
	diag.Printf(os.Stderr, "  error:      %v", se.Err)
}
