// Package runner executes external commands with captured output, exit status and optional timeouts.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/codex-k8s/stackctl/internal/env"
	"github.com/codex-k8s/stackctl/internal/logging"
)

// defaultWaitDelay bounds how long Wait keeps draining pipes after the process was told to stop.
const defaultWaitDelay = 10 * time.Second

var (
	// ErrTimeout marks a command killed because its own timeout elapsed.
	ErrTimeout = errors.New("command timed out")
	// ErrCanceled marks a command killed because the caller canceled it.
	ErrCanceled = errors.New("command canceled")
)

// Command describes one external invocation.
type Command struct {
	// Name is the binary to execute, looked up in PATH.
	Name string
	// Args are passed verbatim, no shell involved.
	Args []string
	// Env is overlaid on the process environment.
	Env env.Vars
	// Dir is the working directory; empty means the current one.
	Dir string
	// Stdin is fed to the process when set.
	Stdin io.Reader
	// Timeout kills the command when exceeded; zero means no own timeout.
	Timeout time.Duration
	// Quiet keeps stdout out of the log (it is still captured). Used for secrets.
	Quiet bool
}

// String renders the command the way an operator would type it.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"$`\\|&;<>(){}*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Result is the outcome of one command. A non-zero exit is a normal value, not an error.
type Result struct {
	// Command is the rendered command line.
	Command string
	// Stdout is the captured standard output.
	Stdout string
	// Stderr is the captured standard error.
	Stderr string
	// ExitCode is the process exit status, -1 when it never exited normally.
	ExitCode int
	// Duration is the wall time between start and reap.
	Duration time.Duration
	// TimedOut reports that the command's own timeout (or the caller's deadline) killed it.
	TimedOut bool
	// Canceled reports that the caller canceled the command.
	Canceled bool
	// StartErr is set when the process could not be started at all.
	StartErr error
}

// Succeeded reports whether the command ran and exited with status 0.
func (r Result) Succeeded() bool {
	return r.StartErr == nil && !r.TimedOut && !r.Canceled && r.ExitCode == 0
}

// Err classifies the result as an error value; nil on success.
func (r Result) Err() error {
	switch {
	case r.Succeeded():
		return nil
	case r.Canceled:
		return fmt.Errorf("%s: %w", r.Command, ErrCanceled)
	case r.TimedOut:
		return fmt.Errorf("%s: %w after %s", r.Command, ErrTimeout, r.Duration.Round(time.Millisecond))
	case r.StartErr != nil:
		return fmt.Errorf("start %s: %w", r.Command, r.StartErr)
	default:
		return &ExitError{Command: r.Command, ExitCode: r.ExitCode, Stderr: r.Stderr}
	}
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	// Command is the rendered command line.
	Command string
	// ExitCode is the non-zero status.
	ExitCode int
	// Stderr is the captured standard error.
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// Runner executes commands. Implementations never return an error for a non-zero exit.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// Exec runs commands as child processes.
type Exec struct {
	logger    *slog.Logger
	waitDelay time.Duration
}

// New constructs an Exec runner that streams output to logger.
func New(logger *slog.Logger) *Exec {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Exec{logger: logger, waitDelay: defaultWaitDelay}
}

// Run starts the command, streams and buffers its output, and always reaps the process.
func (e *Exec) Run(ctx context.Context, c Command) Result {
	res := Result{Command: c.String()}

	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	e.logger.Debug("running command", "cmd", res.Command, "timeout", c.Timeout)

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = env.Overlay(c.Env)
	cmd.Stdin = c.Stdin
	cmd.WaitDelay = e.waitDelay
	configureProcess(cmd)

	var stdout, stderr bytes.Buffer
	outLog := logging.NewWriter(e.logger, logging.LevelInfo, "cmd", c.Name, "stream", "stdout")
	errLog := logging.NewWriter(e.logger, logging.LevelInfo, "cmd", c.Name, "stream", "stderr")
	if c.Quiet {
		cmd.Stdout = &stdout
	} else {
		cmd.Stdout = io.MultiWriter(&stdout, outLog)
	}
	cmd.Stderr = io.MultiWriter(&stderr, errLog)

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)

	outLog.Flush()
	errLog.Flush()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.ExitCode = 0

	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runCtx.Err() != nil && err != nil {
		killGroup(cmd)
		if errors.Is(ctx.Err(), context.Canceled) {
			res.Canceled = true
		} else {
			res.TimedOut = true
		}
		if cmd.ProcessState == nil {
			res.ExitCode = -1
		}
		return res
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			res.StartErr = err
			res.ExitCode = -1
		}
	}
	return res
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
