package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codex-k8s/stackctl/internal/cloud"
	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/ghoutput"
	"github.com/codex-k8s/stackctl/internal/pipeline"
	"github.com/codex-k8s/stackctl/internal/preflight"
	"github.com/codex-k8s/stackctl/internal/report"
	"github.com/codex-k8s/stackctl/internal/runner"
	"github.com/codex-k8s/stackctl/internal/stages"
)

var endpointHighlights = []report.Highlight{
	{Label: "app", Key: stages.ValueEndpoint},
	{Label: "ci", Key: stages.ValueCIEndpoint},
	{Label: "image", Key: stages.ValueImage},
}

// loadRunContext reads the stack description and environment, then applies the command-line overrides.
func (a *app) loadRunContext(extra config.Overrides) (config.RunContext, error) {
	rc, err := config.Load(config.LoadOptions{
		ConfigPath: a.opts.ConfigPath,
		EnvFiles:   a.opts.EnvFiles,
		Environ:    a.deps.environ,
	})
	if err != nil {
		return config.RunContext{}, err
	}

	o := extra
	o.Region = a.opts.Region
	o.Profile = a.opts.Profile
	o.Cluster = a.opts.Cluster
	o.Namespace = a.opts.Namespace
	return rc.With(o)
}

// checkPreconditions verifies the tools and resolves the AWS identity. Nothing is changed.
func (a *app) checkPreconditions(ctx context.Context, logger *slog.Logger, r runner.Runner, rc config.RunContext, tools []preflight.Tool) (cloud.Identity, error) {
	var identity cloud.Identity
	checker := &preflight.Checker{
		Tools: tools,
		Conditions: []preflight.Condition{{
			Name: "aws credentials",
			Run: func(ctx context.Context) (string, error) {
				id, err := a.deps.identity(ctx, rc)
				if err != nil {
					return "", err
				}
				identity = id
				return fmt.Sprintf("account %s as %s", id.Account, id.ARN), nil
			},
		}},
		Runner:   r,
		Env:      rc.AWSEnv(),
		Timeout:  rc.Timeouts.Preflight,
		Logger:   logger,
		LookPath: a.deps.lookPath,
	}

	rep := checker.Run(ctx)
	if err := ctx.Err(); err != nil {
		return cloud.Identity{}, err
	}
	if err := rep.Err(); err != nil {
		if werr := report.RenderPreflight(a.deps.stdout, rep); werr != nil {
			logger.Warn("write preflight report", "error", werr)
		}
		return cloud.Identity{}, err
	}

	logger.Info("targeting AWS account",
		"account", identity.Account,
		"arn", identity.ARN,
		"region", rc.Region,
		"cluster", rc.Cluster,
	)
	return identity, nil
}

// execute runs p, prints the summary and returns an error only for hard failures and aborts.
func (a *app) execute(ctx context.Context, logger *slog.Logger, r runner.Runner, rc config.RunContext, p *pipeline.Pipeline, identity cloud.Identity, rerun []string) error {
	run := p.Execute(ctx, rc, pipeline.Options{
		Runner: r,
		Logger: logger,
		Values: pipeline.Values{stages.ValueAccount: identity.Account},
	})

	logger.Info("run summary",
		"pipeline", run.Pipeline,
		"run", run.ID,
		"verdict", run.Verdict(),
		"aborted", run.Aborted(),
		"duration", run.Duration(),
	)

	err := report.Render(a.deps.stdout, run, report.Options{
		Rerun:      strings.Join(rerun, " "),
		Highlights: endpointHighlights,
	})
	if err != nil {
		logger.Warn("write report", "error", err)
	}
	if err := ghoutput.Write(a.githubOutput, run.Values()); err != nil {
		logger.Warn("write GitHub outputs", "error", err)
	}
	return run.Err()
}

// rerunCommand rebuilds the invocation the operator should repeat after a fix.
func (a *app) rerunCommand(sub string, extra ...string) []string {
	args := []string{"stackctl", sub}
	if a.opts.ConfigPath != "" {
		args = append(args, "--config", a.opts.ConfigPath)
	}
	for _, f := range a.opts.EnvFiles {
		args = append(args, "--env-file", f)
	}
	for _, kv := range [][2]string{
		{"--region", a.opts.Region},
		{"--profile", a.opts.Profile},
		{"--cluster", a.opts.Cluster},
		{"--namespace", a.opts.Namespace},
	} {
		if kv[1] != "" {
			args = append(args, kv[0], kv[1])
		}
	}
	return append(args, extra...)
}
