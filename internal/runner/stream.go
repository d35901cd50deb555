package runner

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxLineRunes caps relayed lines so one enormous line cannot flood the
// client. Truncated lines end with an ellipsis.
const maxLineRunes = 4000

// StreamSink receives ordered events from a streamed command. Done is
// always the final call, whatever went wrong before it.
type StreamSink interface {
	// Line delivers one trimmed, non-empty output line.
	Line(text string)
	// Fail reports that the command could not run or finish normally.
	Fail(message string)
	// Done terminates the stream. Code is the exit status, or -1 when
	// no exit status exists.
	Done(ok bool, code int)
}

// Stream runs the command under a PTY and relays merged output lines to
// the sink. The PTY keeps child tools line-buffered so output arrives as
// it is produced.
func (r *Runner) Stream(ctx context.Context, c Command, sink StreamSink) {
	logger := r.streamLogger(c)
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(runCtx, c.Name, c.Args...)
	proc.Dir = c.Dir
	proc.Env = append(os.Environ(), c.Env...)

	ptmx, err := pty.Start(proc)
	if err != nil {
		logger.Error().Err(err).Msg("stream start failed")
		sink.Fail("start: " + err.Error())
		sink.Done(false, -1)
		return
	}
	defer ptmx.Close()

	// EIO on PTY read is normal when the child exits; relay ignores
	// scanner errors for that reason.
	relay(ptmx, nil, sink)

	finish(runCtx, logger, proc, sink)
}

// StreamWithInput runs the command through plain pipes, writes input to
// stdin up front, and relays merged stdout/stderr lines. drop filters
// lines out of the relay (echoed prompts, typically). No PTY is
// involved, so the input is never reflected into the output.
func (r *Runner) StreamWithInput(ctx context.Context, c Command, drop func(string) bool, sink StreamSink) {
	logger := r.streamLogger(c)
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(runCtx, c.Name, c.Args...)
	proc.Dir = c.Dir
	proc.Env = append(os.Environ(), c.Env...)

	stdin, err := proc.StdinPipe()
	if err != nil {
		sink.Fail("stdin pipe: " + err.Error())
		sink.Done(false, -1)
		return
	}
	stdout, err := proc.StdoutPipe()
	if err != nil {
		sink.Fail("stdout pipe: " + err.Error())
		sink.Done(false, -1)
		return
	}
	proc.Stderr = proc.Stdout

	if err := proc.Start(); err != nil {
		logger.Error().Err(err).Msg("stream start failed")
		sink.Fail("start: " + err.Error())
		sink.Done(false, -1)
		return
	}

	if _, err := io.WriteString(stdin, c.Stdin); err != nil {
		// The child may have exited before reading; its exit status
		// tells the rest of the story.
		logger.Warn().Err(err).Msg("stdin write failed")
	}
	stdin.Close()

	relay(stdout, drop, sink)

	finish(runCtx, logger, proc, sink)
}

// streamLogger tags every log line of one streamed run with a fresh id
// so interleaved runs can be told apart.
func (r *Runner) streamLogger(c Command) zerolog.Logger {
	return r.logger.With().Str("run_id", uuid.NewString()).Str("cmd", c.Name).Logger()
}

func relay(src io.Reader, drop func(string) bool, sink StreamSink) {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, scanBufSize), maxScanToken)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" {
			continue
		}
		if drop != nil && drop(line) {
			continue
		}
		sink.Line(truncateLine(line))
	}
}

func finish(ctx context.Context, logger zerolog.Logger, proc *exec.Cmd, sink StreamSink) {
	err := proc.Wait()

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			logger.Error().Err(err).Msg("stream wait failed")
			sink.Fail(err.Error())
			sink.Done(false, -1)
			return
		}
		code = exitErr.ExitCode()
	}

	if ctx.Err() == context.DeadlineExceeded {
		sink.Fail("Operation timed out")
		sink.Done(false, code)
		return
	}

	logger.Debug().Int("exit_code", code).Msg("stream finished")
	sink.Done(code == 0, code)
}

func truncateLine(s string) string {
	runes := []rune(s)
	if len(runes) <= maxLineRunes {
		return s
	}
	return string(runes[:maxLineRunes]) + "…"
}
