// Package pipeline runs ordered stages with hard/soft failure policies and
// records an immutable result per stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/logging"
	"github.com/codex-k8s/stackctl/internal/runner"
)

// Pipeline is an ordered list of stages. Stages run strictly one after another.
type Pipeline struct {
	name   string
	stages []Stage
}

// New validates the stage list and builds a pipeline. Stage IDs must be unique
// and every stage needs a Forward action.
func New(name string, stages ...Stage) (*Pipeline, error) {
	if name == "" {
		return nil, errors.New("pipeline name is required")
	}
	seen := make(map[string]struct{}, len(stages))
	for i, st := range stages {
		if st.ID == "" {
			return nil, fmt.Errorf("pipeline %s: stage #%d has no id", name, i+1)
		}
		if _, dup := seen[st.ID]; dup {
			return nil, fmt.Errorf("pipeline %s: duplicate stage id %q", name, st.ID)
		}
		seen[st.ID] = struct{}{}
		if st.Forward == nil {
			return nil, fmt.Errorf("pipeline %s: stage %s has no action", name, st.ID)
		}
		switch st.policy() {
		case PolicyHard, PolicySoft:
		default:
			return nil, fmt.Errorf("pipeline %s: stage %s has unknown policy %q", name, st.ID, st.Policy)
		}
	}
	return &Pipeline{name: name, stages: append([]Stage(nil), stages...)}, nil
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Stages returns a copy of the stage list.
func (p *Pipeline) Stages() []Stage { return append([]Stage(nil), p.stages...) }

// Reverse builds a pipeline from the reverse stages of p, last declared first.
// Stages without a reverse are left out.
func (p *Pipeline) Reverse(name string) (*Pipeline, error) {
	var out []Stage
	for i := len(p.stages) - 1; i >= 0; i-- {
		if rev := p.stages[i].Reverse; rev != nil {
			out = append(out, *rev)
		}
	}
	return New(name, out...)
}

// Options carries the collaborators of one execution.
type Options struct {
	Runner runner.Runner
	Logger *slog.Logger
	// Values seeds the cross-stage values bag.
	Values Values
}

// Execute runs every stage in order and returns the finished run.
// A failed hard stage halts the run; a failed soft stage is logged and the run
// continues. Cancellation of ctx aborts the run after the current stage.
// There is no rollback.
func (p *Pipeline) Execute(ctx context.Context, rc config.RunContext, opts Options) *Run {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	run := newRun(p.name, opts.Values)
	logger = logger.With("pipeline", p.name, "run", run.ID)
	logger.Info("pipeline started", "stages", len(p.stages))

	for i, st := range p.stages {
		if ctx.Err() != nil {
			run.aborted = true
			logger.Warn("pipeline aborted before stage", "stage", st.ID)
			break
		}

		res := p.runStage(ctx, st, i, rc, opts.Runner, run.values, logger)
		run.results = append(run.results, res)

		if !res.Failed() {
			continue
		}
		if res.Kind == FailureCanceled || ctx.Err() != nil {
			run.aborted = true
			logger.Warn("pipeline aborted", "stage", st.ID, "err", res.Err)
			break
		}
		if res.Policy == PolicySoft {
			logger.Warn("soft stage failed, continuing", "stage", st.ID, "kind", res.Kind, "err", res.Err)
			continue
		}
		logger.Error("hard stage failed, halting", "stage", st.ID, "kind", res.Kind, "err", res.Err)
		break
	}

	run.finishedAt = time.Now()
	logger.Info("pipeline finished", "verdict", run.Verdict(), "duration", run.Duration().Round(time.Millisecond))
	return run
}

func (p *Pipeline) runStage(ctx context.Context, st Stage, idx int, rc config.RunContext, r runner.Runner, values Values, logger *slog.Logger) (res Result) {
	stageLogger := logger.With("stage", st.ID)
	sc := &StageContext{Config: rc, Values: values, Logger: stageLogger, runner: r}

	res = Result{StageID: st.ID, Description: st.Description, Policy: st.policy(), Status: StatusRunning}
	stageLogger.Info("stage started", "step", fmt.Sprintf("%d/%d", idx+1, len(p.stages)), "description", st.Description)

	start := time.Now()
	err := call(ctx, st.Forward, sc)
	res.Duration = time.Since(start)
	res.Commands = sc.commands

	switch {
	case err == nil:
		res.Status = StatusSucceeded
		stageLogger.Info("stage succeeded", "duration", res.Duration.Round(time.Millisecond))
	case errors.Is(err, ErrSkipped):
		res.Status = StatusSkipped
		res.Note = err.Error()
		stageLogger.Info("stage skipped", "reason", res.Note)
	default:
		res.Status = StatusFailed
		res.Kind = classify(ctx, err)
		res.Err = err
		res.Remediation = RemediationOf(err)
		if res.Remediation == "" {
			res.Remediation = st.Remediation
		}
		if f := sc.failedCommand(err); f != nil {
			res.Command = f.Command
			res.Stdout = f.Stdout
			res.Stderr = f.Stderr
			res.ExitCode = f.ExitCode
		}
	}
	return res
}

func call(ctx context.Context, action Action, sc *StageContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()
	return action(ctx, sc)
}
