package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/codex-k8s/stackctl/internal/preflight"
)

// RenderPreflight writes the precondition checks. Nothing has been changed at this
// point, so the next step is always to fix the environment and re-run.
func RenderPreflight(w io.Writer, rep preflight.Report) error {
	s := newStyles(w)
	var b strings.Builder

	b.WriteString("\n")
	status := s.ok.Render("OK")
	if rep.Err() != nil {
		status = s.failed.Render("FAILED")
	}
	b.WriteString(s.title.Render("  stackctl preconditions: " + status))
	b.WriteString("\n")

	width := 0
	for _, c := range rep.Checks {
		width = max(width, len(c.Name))
	}
	for _, c := range rep.Checks {
		name := fmt.Sprintf("%-*s", width, c.Name)
		if c.OK() {
			fmt.Fprintf(&b, "  %s %s  %s\n", s.ok.Render(markOK), name, s.dim.Render(c.Detail))
			continue
		}
		fmt.Fprintf(&b, "  %s %s  %s\n", s.failed.Render(markFailed), name, s.failed.Render(c.Err.Error()))
	}

	if rep.Err() != nil {
		b.WriteString("\n")
		b.WriteString(s.section.Render("  Next steps"))
		b.WriteString("\n")
		b.WriteString("    No stage was run. Install or fix the tools above, then re-run.\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
