// Package infra builds the terraform invocations for the infrastructure directory.
// The directory is opaque: it is only ever passed to terraform -chdir.
package infra

import (
	"time"

	"github.com/codex-k8s/stackctl/internal/runner"
)

// Terraform builds commands against one working directory.
type Terraform struct {
	Dir string
	// Timeout bounds apply and destroy, which create or delete cloud resources.
	Timeout time.Duration
}

// Init initializes providers and the backend. Re-running it is safe.
func (t Terraform) Init() runner.Command {
	return t.command(0, "init", "-input=false", "-no-color")
}

// Apply converges the infrastructure without prompting.
func (t Terraform) Apply() runner.Command {
	return t.command(t.Timeout, "apply", "-auto-approve", "-input=false", "-no-color")
}

// Destroy removes the infrastructure without prompting.
func (t Terraform) Destroy() runner.Command {
	return t.command(t.Timeout, "destroy", "-auto-approve", "-input=false", "-no-color")
}

// Output reads one raw output value.
func (t Terraform) Output(name string) runner.Command {
	return t.command(0, "output", "-raw", name)
}

// Plan is the manual command suggested after a failed apply.
func (t Terraform) Plan() runner.Command {
	return t.command(0, "plan")
}

func (t Terraform) command(timeout time.Duration, args ...string) runner.Command {
	return runner.Command{
		Name:    "terraform",
		Args:    append([]string{"-chdir=" + t.Dir}, args...),
		Timeout: timeout,
	}
}
