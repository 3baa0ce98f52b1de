package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/env"
	"github.com/codex-k8s/stackctl/internal/runner"
)

// Policy decides whether a failed stage halts the pipeline.
type Policy string

const (
	// PolicyHard halts the pipeline on failure.
	PolicyHard Policy = "hard"
	// PolicySoft logs a warning and continues.
	PolicySoft Policy = "soft"
)

// Action is the work a stage performs.
type Action func(ctx context.Context, sc *StageContext) error

// Stage is one named, ordered step of a pipeline.
type Stage struct {
	// ID is unique within a pipeline and shows up in logs and the report.
	ID string
	// Description is a one-line human summary.
	Description string
	// Forward performs the stage.
	Forward Action
	// Reverse, when set, is the stage that undoes this one during teardown.
	Reverse *Stage
	// Policy defaults to PolicyHard.
	Policy Policy
	// Remediation is the default command suggested when the stage fails.
	Remediation string
	// Idempotency documents why re-running the stage is safe.
	Idempotency string
}

func (s Stage) policy() Policy {
	if s.Policy == "" {
		return PolicyHard
	}
	return s.Policy
}

// ErrSkipped is returned (usually through Skip) by an action that deliberately did nothing.
var ErrSkipped = errors.New("skipped")

// Skip returns an ErrSkipped wrap carrying the reason.
func Skip(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkipped, reason)
}

type remediationError struct {
	err     error
	command string
}

func (e *remediationError) Error() string { return e.err.Error() }

func (e *remediationError) Unwrap() error { return e.err }

// WithRemediation attaches a manual follow-up command to err. A nil err stays nil.
func WithRemediation(err error, command string) error {
	if err == nil || command == "" {
		return err
	}
	return &remediationError{err: err, command: command}
}

// RemediationOf extracts the command attached with WithRemediation.
func RemediationOf(err error) string {
	var re *remediationError
	if errors.As(err, &re) {
		return re.command
	}
	return ""
}

// Values carries data produced by one stage for later ones (registry URL, image reference).
type Values map[string]string

// Get returns the value stored under key.
func (v Values) Get(key string) (string, bool) {
	val, ok := v[key]
	return val, ok
}

// Set stores val under key.
func (v Values) Set(key, val string) { v[key] = val }

// Clone returns an independent copy.
func (v Values) Clone() Values {
	if v == nil {
		return Values{}
	}
	return maps.Clone(v)
}

// StageContext is what a running stage sees.
type StageContext struct {
	// Config is the run configuration; stages never modify it.
	Config config.RunContext
	// Values is shared across the stages of one run.
	Values Values
	// Logger is scoped to the stage.
	Logger *slog.Logger

	runner   runner.Runner
	failures []failure
	commands []string
}

// failure pairs a failed command with the error Exec returned for it.
type failure struct {
	result runner.Result
	err    error
}

// Exec runs cmd through the pipeline's runner. AWS environment from Config is
// overlaid under cmd.Env, the working directory defaults to the project root
// and the timeout to the configured command timeout.
func (sc *StageContext) Exec(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	cmd.Env = env.Merge(sc.Config.AWSEnv(), cmd.Env)
	if cmd.Dir == "" {
		cmd.Dir = sc.Config.ProjectRoot
	}
	if cmd.Timeout == 0 {
		cmd.Timeout = sc.Config.Timeouts.Command
	}

	res := sc.runner.Run(ctx, cmd)
	sc.commands = append(sc.commands, res.Command)
	err := res.Err()
	if err != nil {
		sc.failures = append(sc.failures, failure{result: res, err: err})
	}
	return res, err
}

// failedCommand returns the failed command whose error is part of err's chain.
// When err does not wrap any of them, the most recent failure is returned.
func (sc *StageContext) failedCommand(err error) *runner.Result {
	for i := len(sc.failures) - 1; i >= 0; i-- {
		if errors.Is(err, sc.failures[i].err) {
			return &sc.failures[i].result
		}
	}
	if n := len(sc.failures); n > 0 {
		return &sc.failures[n-1].result
	}
	return nil
}

// Output runs cmd and returns its trimmed stdout.
func (sc *StageContext) Output(ctx context.Context, cmd runner.Command) (string, error) {
	res, err := sc.Exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	return trimOutput(res.Stdout), nil
}
