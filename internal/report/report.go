// Package report renders the terminal summary of a pipeline run.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/codex-k8s/stackctl/internal/pipeline"
)

const stderrTailLines = 5

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")
)

const (
	markOK      = "[OK]"
	markFailed  = "[!!]"
	markWarn    = "[??]"
	markSkipped = "[--]"
)

// Highlight names a run value worth printing, e.g. the application endpoint.
type Highlight struct {
	Label string
	Key   string
}

// Options tune the report.
type Options struct {
	// Rerun is the command the operator re-runs after fixing a failure.
	Rerun string
	// Highlights are printed when the run produced the value.
	Highlights []Highlight
}

type styles struct {
	title, section, ok, failed, warn, dim lipgloss.Style
}

// newStyles binds styles to w so colors are dropped when w is not a terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true),
		section: r.NewStyle().Bold(true).Foreground(colorBlue),
		ok:      r.NewStyle().Foreground(colorGreen),
		failed:  r.NewStyle().Foreground(colorRed),
		warn:    r.NewStyle().Foreground(colorYellow),
		dim:     r.NewStyle().Foreground(colorDim),
	}
}

// Render writes the per-stage lines, the verdict and the next steps.
func Render(w io.Writer, run *pipeline.Run, opts Options) error {
	s := newStyles(w)
	var b strings.Builder

	results := run.Results()
	verdict := run.Verdict()

	b.WriteString("\n")
	b.WriteString(s.title.Render(fmt.Sprintf("  stackctl %s: %s", run.Pipeline, verdictText(s, run))))
	b.WriteString("\n")
	b.WriteString(s.dim.Render(fmt.Sprintf("  run %s, %s", run.ID, run.Duration().Round(time.Second))))
	b.WriteString("\n")
	b.WriteString(s.dim.Render("  " + strings.Repeat("─", 40)))
	b.WriteString("\n")

	width := 0
	for _, res := range results {
		width = max(width, len(res.StageID))
	}
	for _, res := range results {
		renderResult(&b, s, res, width)
	}

	var highlights []string
	values := run.Values()
	for _, h := range opts.Highlights {
		if v := values[h.Key]; v != "" {
			highlights = append(highlights, fmt.Sprintf("    %-12s %s", h.Label+":", v))
		}
	}
	if len(highlights) > 0 {
		b.WriteString("\n")
		b.WriteString(s.section.Render("  Outputs"))
		b.WriteString("\n")
		b.WriteString(strings.Join(highlights, "\n"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(s.section.Render("  Next steps"))
	b.WriteString("\n")
	for _, line := range nextSteps(run, verdict, opts) {
		b.WriteString("    " + line + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func verdictText(s styles, run *pipeline.Run) string {
	switch {
	case run.Aborted():
		return s.failed.Render("ABORTED")
	case run.Verdict() == pipeline.VerdictFailed:
		return s.failed.Render("FAILED")
	case run.Verdict() == pipeline.VerdictPartial:
		return s.warn.Render("PARTIAL")
	default:
		return s.ok.Render("SUCCEEDED")
	}
}

func renderResult(b *strings.Builder, s styles, res pipeline.Result, width int) {
	id := fmt.Sprintf("%-*s", width, res.StageID)
	dur := s.dim.Render(res.Duration.Round(time.Millisecond).String())

	switch res.Status {
	case pipeline.StatusSucceeded:
		fmt.Fprintf(b, "  %s %s  %s\n", s.ok.Render(markOK), id, dur)
		return
	case pipeline.StatusSkipped:
		fmt.Fprintf(b, "  %s %s  %s\n", s.dim.Render(markSkipped), id, s.dim.Render(res.Note))
		return
	}

	mark, style := markFailed, s.failed
	if res.Policy == pipeline.PolicySoft {
		mark, style = markWarn, s.warn
	}
	fmt.Fprintf(b, "  %s %s  %s  %s\n", style.Render(mark), id, dur, style.Render(failureLabel(res)))

	indent := "       "
	if res.Err != nil {
		fmt.Fprintf(b, "%serror:   %s\n", indent, res.Err)
	}
	if res.Command != "" {
		fmt.Fprintf(b, "%scommand: %s\n", indent, res.Command)
	}
	for _, line := range tail(res.Stderr, stderrTailLines) {
		fmt.Fprintf(b, "%s%s %s\n", indent, s.dim.Render("|"), line)
	}
	if res.Remediation != "" {
		fmt.Fprintf(b, "%sverify:  %s\n", indent, res.Remediation)
	}
}

func failureLabel(res pipeline.Result) string {
	label := string(res.Kind)
	switch res.Kind {
	case pipeline.FailureExit:
		label = fmt.Sprintf("exit %d", res.ExitCode)
	case pipeline.FailureTimeout, pipeline.FailureNotReady:
		label += ", the resource may still be converging"
	}
	if res.Policy == pipeline.PolicySoft {
		label += " (soft, continued)"
	}
	return label
}

func nextSteps(run *pipeline.Run, verdict pipeline.Verdict, opts Options) []string {
	rerun := opts.Rerun
	if rerun == "" {
		rerun = "stackctl " + run.Pipeline
	}
	switch {
	case run.Aborted():
		return []string{
			"The run was interrupted. Resources may be partially created or deleted;",
			"manual cleanup may be required. Check the last stage above, then re-run:",
			"  " + rerun,
		}
	case verdict == pipeline.VerdictFailed:
		stage := "?"
		var stageErr *pipeline.StageError
		if errors.As(run.Err(), &stageErr) {
			stage = stageErr.Stage
		}
		fix := "Fix the cause shown above; completed stages are safe to re-run:"
		if hasRemediation(run, stage) {
			fix = "Fix the cause (see verify command above); completed stages are safe to re-run:"
		}
		return []string{
			fmt.Sprintf("Stage %s failed and the pipeline stopped. Nothing was rolled back.", stage),
			fix,
			"  " + rerun,
		}
	case verdict == pipeline.VerdictPartial:
		return []string{
			"Completed with warnings. Soft stages failed but did not stop the pipeline.",
			"Run the verify commands above to check the resources by hand.",
		}
	default:
		return []string{"Nothing to do."}
	}
}

func hasRemediation(run *pipeline.Run, stage string) bool {
	for _, res := range run.Failures() {
		if res.StageID == stage && res.Remediation != "" {
			return true
		}
	}
	return false
}

func tail(s string, n int) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
