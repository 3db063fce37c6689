package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProcessState represents the lifecycle state of the bridge process.
type ProcessState int

const (
	// StateStarting means the process is being started.
	StateStarting ProcessState = iota
	// StateRunning means the process is running.
	StateRunning
	// StateStopping means the process is being stopped.
	StateStopping
	// StateStopped means the process has been stopped.
	StateStopped
	// StateFailed means the process failed to start or exited on its own.
	StateFailed
)

// String returns a string representation of the ProcessState.
func (ps ProcessState) String() string {
	switch ps {
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateFailed:
		return "Failed"
	default:
		return "InvalidState"
	}
}

// process is one spawned bridge.
type process struct {
	id     string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	quit   chan struct{}
	exited chan struct{}
	err    error // set before exited is closed
	logger *slog.Logger
}

func (p *process) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// hasExited reports whether the process has exited, without blocking.
func (p *process) hasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// spawn starts the bridge and the goroutines that read its output.
func spawn(cfg Config, logger *slog.Logger) (*process, error) {
	id := uuid.NewString()
	logger = logger.With("session", id)

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = cfg.Env
	cmd.Dir = cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	logger.Info("Starting bridge process", "command", cmd.String())
	if err := cmd.Start(); err != nil {
		logger.Error("Failed to start bridge process", "error", err, "command", cmd.String())
		return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
	}

	p := &process{
		id:     id,
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan []byte, 16),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
		logger: logger.With("pid", cmd.Process.Pid),
	}

	var wg sync.WaitGroup
	wg.Add(2)

	// Response lines. Lines are not length limited.
	go func() {
		defer wg.Done()
		defer close(p.lines)
		br := bufio.NewReader(stdout)
		for {
			line, err := br.ReadBytes('\n')
			if len(line) > 0 {
				select {
				case p.lines <- line:
				case <-p.quit:
				}
			}
			if err != nil {
				if err != io.EOF {
					p.logger.Error("Error reading stdout from bridge", "error", err)
				}
				return
			}
		}
	}()

	// Diagnostics.
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if cfg.Stderr != nil {
				fmt.Fprintln(cfg.Stderr, scanner.Text())
				continue
			}
			p.logger.Info("Bridge stderr", "output", scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			p.logger.Error("Error reading stderr from bridge", "error", err)
		}
	}()

	// Wait must not run until both pipes are drained.
	go func() {
		wg.Wait()
		p.err = cmd.Wait()
		if p.err != nil {
			p.logger.Info("Bridge process exited", "error", p.err)
		} else {
			p.logger.Info("Bridge process exited")
		}
		close(p.exited)
	}()

	p.logger.Info("Bridge process started")
	return p, nil
}

// stop closes the bridge's input so it can exit cleanly, then kills it if it
// is still running after grace.
func (p *process) stop(ctx context.Context, grace time.Duration) error {
	p.logger.Info("Stopping bridge process")
	close(p.quit)
	if err := p.stdin.Close(); err != nil {
		p.logger.Warn("Failed to close bridge stdin", "error", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.exited:
		p.logger.Info("Bridge process exited after input closed")
		return nil
	case <-timer.C:
		p.logger.Warn("Bridge process did not exit in time, killing")
	case <-ctx.Done():
		p.logger.Warn("Stop context cancelled, killing bridge process")
	}

	if err := p.cmd.Process.Kill(); err != nil {
		if p.hasExited() {
			return nil
		}
		p.logger.Error("Failed to kill bridge process", "error", err)
		return fmt.Errorf("kill bridge process %d: %w", p.pid(), err)
	}
	// Killing closes the pipes, so the exit is observed promptly.
	<-p.exited
	p.logger.Info("Bridge process killed")
	return ctx.Err()
}
