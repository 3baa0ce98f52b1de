// Package preflight verifies, before any stage runs, that the required tools are
// installed and healthy and that cloud credentials resolve. It has no side effects.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/codex-k8s/stackctl/internal/env"
	"github.com/codex-k8s/stackctl/internal/logging"
	"github.com/codex-k8s/stackctl/internal/runner"
)

var errNotFound = errors.New("not found in PATH")

// Tool is an external binary a pipeline depends on.
type Tool struct {
	// Name is looked up in PATH.
	Name string
	// VersionArgs is a cheap invocation proving the tool works. Empty skips the health check.
	VersionArgs []string
}

// Condition is a custom check, e.g. resolving cloud credentials.
type Condition struct {
	Name string
	// Run returns a short detail line on success.
	Run func(ctx context.Context) (string, error)
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name   string
	Detail string
	Err    error
}

// OK reports whether the check passed.
func (c CheckResult) OK() bool { return c.Err == nil }

// Report collects every check result.
type Report struct {
	Checks []CheckResult
}

// Failures returns the failed checks.
func (r Report) Failures() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.OK() {
			out = append(out, c)
		}
	}
	return out
}

// Err returns nil when every check passed, otherwise an *Error listing all failures.
func (r Report) Err() error {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	return &Error{Failures: failures}
}

// Error is returned when at least one precondition failed.
type Error struct {
	Failures []CheckResult
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Name, f.Err))
	}
	return "preconditions failed: " + strings.Join(parts, "; ")
}

// Checker runs tool and condition checks.
type Checker struct {
	Tools      []Tool
	Conditions []Condition
	Runner     runner.Runner
	// Env is overlaid on every version command (AWS profile and region).
	Env env.Vars
	// Timeout bounds each individual check.
	Timeout time.Duration
	Logger  *slog.Logger

	// LookPath resolves tool binaries; nil means exec.LookPath.
	LookPath func(string) (string, error)
}

// Run executes every check, even after failures, and returns the full report.
func (c *Checker) Run(ctx context.Context) Report {
	logger := c.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var report Report
	for _, tool := range c.Tools {
		res := c.checkTool(ctx, tool, lookPath, timeout)
		logResult(logger, res)
		report.Checks = append(report.Checks, res)
	}
	for _, cond := range c.Conditions {
		condCtx, cancel := context.WithTimeout(ctx, timeout)
		detail, err := cond.Run(condCtx)
		cancel()
		res := CheckResult{Name: cond.Name, Detail: detail, Err: err}
		logResult(logger, res)
		report.Checks = append(report.Checks, res)
	}
	return report
}

func (c *Checker) checkTool(ctx context.Context, tool Tool, lookPath func(string) (string, error), timeout time.Duration) CheckResult {
	res := CheckResult{Name: tool.Name}
	path, err := lookPath(tool.Name)
	if err != nil {
		res.Err = errNotFound
		return res
	}
	res.Detail = path
	if len(tool.VersionArgs) == 0 || c.Runner == nil {
		return res
	}

	out := c.Runner.Run(ctx, runner.Command{
		Name:    tool.Name,
		Args:    tool.VersionArgs,
		Env:     c.Env,
		Timeout: timeout,
		Quiet:   true,
	})
	if err := out.Err(); err != nil {
		res.Err = err
		return res
	}
	if line := firstLine(out.Stdout); line != "" {
		res.Detail = line
	}
	return res
}

func logResult(logger *slog.Logger, res CheckResult) {
	if res.OK() {
		logger.Info("precondition ok", "check", res.Name, "detail", res.Detail)
		return
	}
	logger.Error("precondition failed", "check", res.Name, "err", res.Err)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
