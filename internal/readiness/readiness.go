// Package readiness waits, with a bounded deadline, for externally provisioned
// resources to become observable.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/codex-k8s/stackctl/internal/logging"
)

// ErrNotReady marks a resource that did not become ready before its deadline.
var ErrNotReady = errors.New("not ready")

// State is the terminal state of a poll.
type State string

const (
	// StateReady means the poll function reported ready.
	StateReady State = "ready"
	// StateNotReady means the deadline elapsed first.
	StateNotReady State = "not-ready"
	// StateCanceled means the caller's context was canceled.
	StateCanceled State = "canceled"
)

// Check describes one resource to wait for.
type Check[T any] struct {
	// Description names the resource in logs and errors.
	Description string
	// Poll returns the observed value and whether it is ready.
	// Errors are treated as "not yet" and polling continues.
	Poll func(ctx context.Context) (T, bool, error)
	// Interval between attempts.
	Interval time.Duration
	// Deadline bounds the whole wait.
	Deadline time.Duration
	// Remediation is a command the operator can run to re-check by hand.
	Remediation string
	// Logger receives one debug line per attempt. Optional.
	Logger *slog.Logger
}

// Outcome is the result of Poll.
type Outcome[T any] struct {
	State    State
	Value    T
	Attempts int
	Elapsed  time.Duration
	// LastErr is the last error returned by the poll function, if any.
	LastErr     error
	Description string
	Remediation string
}

// Ready reports whether the resource became ready.
func (o Outcome[T]) Ready() bool { return o.State == StateReady }

// Err returns nil when ready, an ErrNotReady wrap on deadline, or a context.Canceled wrap.
func (o Outcome[T]) Err() error {
	switch o.State {
	case StateReady:
		return nil
	case StateCanceled:
		return fmt.Errorf("waiting for %s: %w", o.Description, context.Canceled)
	default:
		msg := fmt.Sprintf("%s: %s after %s (%d attempts)", o.Description, ErrNotReady, o.Elapsed.Round(time.Second), o.Attempts)
		if o.LastErr != nil {
			msg += ": last error: " + o.LastErr.Error()
		}
		return &notReadyError{msg: msg}
	}
}

type notReadyError struct{ msg string }

func (e *notReadyError) Error() string { return e.msg }

func (e *notReadyError) Unwrap() error { return ErrNotReady }

// Poll calls c.Poll immediately and then every c.Interval until it reports ready,
// c.Deadline elapses or ctx is canceled. It never returns an error of its own:
// the terminal state is carried by the Outcome.
func Poll[T any](ctx context.Context, c Check[T]) Outcome[T] {
	logger := c.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	out := Outcome[T]{State: StateNotReady, Description: c.Description, Remediation: c.Remediation}

	interval := c.Interval
	if interval <= 0 {
		interval = time.Second
	}
	deadline := c.Deadline
	if deadline <= 0 {
		deadline = interval
	}

	start := time.Now()
	_ = wait.PollUntilContextTimeout(ctx, interval, deadline, true, func(pollCtx context.Context) (bool, error) {
		out.Attempts++
		value, ready, err := c.Poll(pollCtx)
		if err != nil {
			out.LastErr = err
			logger.Debug("readiness check not ready", "check", c.Description, "attempt", out.Attempts, "err", err)
			return false, nil
		}
		if !ready {
			logger.Debug("not ready yet", "check", c.Description, "attempt", out.Attempts)
			return false, nil
		}
		out.Value = value
		out.State = StateReady
		return true, nil
	})
	out.Elapsed = time.Since(start)

	if out.State != StateReady && errors.Is(ctx.Err(), context.Canceled) {
		out.State = StateCanceled
	}
	return out
}
