// Package hooks turns the operator-defined shell steps of stack.yaml into pipeline stages.
package hooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/env"
	"github.com/codex-k8s/stackctl/internal/pipeline"
	"github.com/codex-k8s/stackctl/internal/runner"
)

// Phase names where hooks attach.
const (
	BeforeProvision = "before-provision"
	AfterProvision  = "after-provision"
	BeforeTeardown  = "before-teardown"
	AfterTeardown   = "after-teardown"
)

// Stages converts steps into stages with IDs "<phase>/<name>".
// A step with continueOnError gets the soft policy.
func Stages(phase string, steps []config.HookStep) []pipeline.Stage {
	out := make([]pipeline.Stage, 0, len(steps))
	for _, step := range steps {
		policy := pipeline.PolicyHard
		if step.ContinueOnError {
			policy = pipeline.PolicySoft
		}
		out = append(out, pipeline.Stage{
			ID:          phase + "/" + step.Name,
			Description: "hook: " + firstLine(step.Run),
			Policy:      policy,
			Remediation: step.Run,
			Forward:     runStep(phase, step),
		})
	}
	return out
}

func runStep(phase string, step config.HookStep) pipeline.Action {
	return func(ctx context.Context, sc *pipeline.StageContext) error {
		script, err := config.RenderTemplate(phase+"-"+step.Name, step.Run, sc.Config)
		if err != nil {
			return err
		}

		var timeout time.Duration
		if step.Timeout != "" {
			timeout, err = time.ParseDuration(step.Timeout)
			if err != nil {
				return fmt.Errorf("hook %s: invalid timeout %q: %w", step.Name, step.Timeout, err)
			}
		}

		cmd := runner.Command{
			Name:    "sh",
			Args:    []string{"-c", script},
			Env:     ValuesEnv(sc.Values),
			Timeout: timeout,
		}
		_, err = sc.Exec(ctx, cmd)
		return pipeline.WithRemediation(err, cmd.String())
	}
}

// ValuesEnv exposes run values to hook scripts as STACKCTL_<KEY> variables.
func ValuesEnv(values pipeline.Values) env.Vars {
	out := make(env.Vars, len(values))
	for k, v := range values {
		key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(k))
		out["STACKCTL_"+key] = v
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
