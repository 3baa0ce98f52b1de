package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codex-k8s/stackctl/internal/readiness"
	"github.com/codex-k8s/stackctl/internal/runner"
)

// Status is the state of a stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// FailureKind classifies why a stage failed.
type FailureKind string

const (
	FailureNone     FailureKind = ""
	FailureExit     FailureKind = "exit"
	FailureTimeout  FailureKind = "timeout"
	FailureCanceled FailureKind = "canceled"
	FailureNotReady FailureKind = "not-ready"
	FailureError    FailureKind = "error"
)

// Result records one executed stage. Results are values; a Run hands out copies.
type Result struct {
	StageID     string
	Description string
	Policy      Policy
	Status      Status
	Kind        FailureKind
	// Command is the literal failing command, empty when the failure was not a command.
	Command string
	// Commands lists every command the stage ran, in order.
	Commands []string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Err      error
	// Note carries the reason of a skip.
	Note        string
	Remediation string
}

// Failed reports whether the stage failed.
func (r Result) Failed() bool { return r.Status == StatusFailed }

// StageError is the error of a run halted by a hard stage failure.
type StageError struct {
	Stage string
	Kind  FailureKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func classify(ctx context.Context, err error) FailureKind {
	var exitErr *runner.ExitError
	switch {
	case err == nil:
		return FailureNone
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled),
		errors.Is(err, runner.ErrCanceled),
		errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.Is(err, runner.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, readiness.ErrNotReady):
		return FailureNotReady
	case errors.As(err, &exitErr):
		return FailureExit
	default:
		return FailureError
	}
}

func trimOutput(s string) string {
	return strings.TrimSpace(s)
}
