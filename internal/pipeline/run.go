package pipeline

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Verdict is the overall status of a run.
type Verdict string

const (
	// VerdictSucceeded means every executed stage succeeded or was skipped.
	VerdictSucceeded Verdict = "succeeded"
	// VerdictPartial means only soft stages failed.
	VerdictPartial Verdict = "partial"
	// VerdictFailed means a hard stage failed or the run was aborted.
	VerdictFailed Verdict = "failed"
)

// ErrAborted is returned by Run.Err for a canceled run.
var ErrAborted = errors.New("run aborted")

// Run is one execution of a pipeline. It is owned by the pipeline while executing
// and read-only afterwards.
type Run struct {
	ID       string
	Pipeline string

	startedAt  time.Time
	finishedAt time.Time
	aborted    bool
	results    []Result
	values     Values
}

func newRun(pipeline string, seed Values) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Pipeline:  pipeline,
		startedAt: time.Now(),
		values:    seed.Clone(),
	}
}

// Results returns a copy of the recorded results in execution order.
func (r *Run) Results() []Result {
	out := make([]Result, len(r.results))
	for i, res := range r.results {
		res.Commands = append([]string(nil), res.Commands...)
		out[i] = res
	}
	return out
}

// Values returns a copy of the cross-stage values.
func (r *Run) Values() Values { return r.values.Clone() }

// Aborted reports whether the run was canceled.
func (r *Run) Aborted() bool { return r.aborted }

// StartedAt returns when the run began.
func (r *Run) StartedAt() time.Time { return r.startedAt }

// Duration returns the wall time of the run.
func (r *Run) Duration() time.Duration {
	if r.finishedAt.IsZero() {
		return time.Since(r.startedAt)
	}
	return r.finishedAt.Sub(r.startedAt)
}

// Verdict reduces the results to one status.
func (r *Run) Verdict() Verdict {
	if r.aborted {
		return VerdictFailed
	}
	verdict := VerdictSucceeded
	for _, res := range r.results {
		if !res.Failed() {
			continue
		}
		if res.Policy == PolicyHard {
			return VerdictFailed
		}
		verdict = VerdictPartial
	}
	return verdict
}

// Err returns nil unless the verdict is failed. A hard failure yields a *StageError.
func (r *Run) Err() error {
	if r.aborted {
		return ErrAborted
	}
	for _, res := range r.results {
		if res.Failed() && res.Policy == PolicyHard {
			return &StageError{Stage: res.StageID, Kind: res.Kind, Err: res.Err}
		}
	}
	return nil
}

// Failures returns the failed results.
func (r *Run) Failures() []Result {
	var out []Result
	for _, res := range r.results {
		if res.Failed() {
			out = append(out, res)
		}
	}
	return out
}
