// Package runner executes host commands for the admin API, either
// buffered (bounded stdout/stderr tails plus an exit code) or streamed
// line by line to a sink. All execution goes through here so timeouts,
// environment handling, and output limits behave the same everywhere.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Command describes one subprocess invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the daemon's own.
	Dir string
	// Env entries are appended to the parent environment, so they win
	// over inherited values of the same name.
	Env []string
	// Stdin is written to the child's stdin when non-empty.
	Stdin string
	// Timeout kills the process when it elapses. Zero means no limit.
	Timeout time.Duration
	// StdoutTail and StderrTail bound how many lines are retained for a
	// buffered run. Zero keeps everything.
	StdoutTail int
	StderrTail int
}

// Result is the outcome of a buffered run. A non-zero exit is a normal
// result, not an error; callers decide how to report it.
type Result struct {
	ExitCode int
	TimedOut bool
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// OK reports a clean zero exit within the time limit.
func (r *Result) OK() bool {
	return !r.TimedOut && r.ExitCode == 0
}

type Runner struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Runner {
	return &Runner{
		logger: logger.With().Str("component", "runner").Logger(),
	}
}

// Run executes the command and captures bounded output tails. The
// returned error covers only failures to run at all (missing binary,
// pipe setup); exit status and timeouts are reported in the Result.
func (r *Runner) Run(ctx context.Context, c Command) (*Result, error) {
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(runCtx, c.Name, c.Args...)
	proc.Dir = c.Dir
	proc.Env = append(os.Environ(), c.Env...)
	if c.Stdin != "" {
		proc.Stdin = strings.NewReader(c.Stdin)
	}

	stdout, err := proc.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := proc.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Name, err)
	}

	outTail := newTail(c.StdoutTail)
	errTail := newTail(c.StderrTail)
	var g errgroup.Group
	g.Go(func() error { return outTail.consume(stdout) })
	g.Go(func() error { return errTail.consume(stderr) })
	// Pipes must be drained before Wait closes them.
	if err := g.Wait(); err != nil && !errors.Is(err, os.ErrClosed) {
		r.logger.Debug().Err(err).Str("cmd", c.Name).Msg("output capture ended early")
	}

	waitErr := proc.Wait()
	res := &Result{
		Stdout:   outTail.String(),
		Stderr:   errTail.String(),
		Duration: time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		r.logger.Warn().Str("cmd", c.Name).Dur("timeout", c.Timeout).Msg("command timed out")
		return res, nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("wait %s: %w", c.Name, waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	r.logger.Debug().
		Str("cmd", c.Name).
		Int("exit_code", res.ExitCode).
		Dur("duration", res.Duration).
		Msg("command finished")
	return res, nil
}

// Start launches the command detached from the calling request and
// reaps it in the background. Output is discarded; the caller only
// learns whether the process could be spawned.
func (r *Runner) Start(c Command) error {
	proc := exec.Command(c.Name, c.Args...)
	proc.Dir = c.Dir
	proc.Env = append(os.Environ(), c.Env...)

	if err := proc.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Name, err)
	}
	r.logger.Info().Str("cmd", c.Name).Int("pid", proc.Process.Pid).Msg("started detached")

	go func() {
		if err := proc.Wait(); err != nil {
			r.logger.Warn().Err(err).Str("cmd", c.Name).Msg("detached command exited with error")
		}
	}()
	return nil
}
