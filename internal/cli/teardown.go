package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/stackctl/internal/cloud"
	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/preflight"
	"github.com/codex-k8s/stackctl/internal/stages"
)

var (
	// ErrConfirmationRequired is returned on a non-interactive terminal without --yes.
	ErrConfirmationRequired = errors.New("teardown needs confirmation: pass --yes when stdin is not a terminal")
	// ErrTeardownDeclined is returned when the typed cluster name does not match.
	ErrTeardownDeclined = errors.New("teardown declined")
)

// newTeardownCommand creates the "teardown" subcommand that removes the stack.
func newTeardownCommand(a *app) *cobra.Command {
	var (
		yes       bool
		keepInfra bool
	)

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Remove the application, the controllers and the cluster",
		Long: "teardown deletes the workload, uninstalls the CI server and the load-balancer controller, " +
			"then destroys the terraform-managed infrastructure. Resources that are already gone are not errors.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := LoggerFromContext(ctx)

			rc, err := a.loadRunContext(config.Overrides{})
			if err != nil {
				return err
			}

			r := a.deps.newRunner(logger)
			identity, err := a.checkPreconditions(ctx, logger, r, rc, preflight.TeardownTools())
			if err != nil {
				return err
			}

			if !yes {
				if err := a.confirmTeardown(rc, identity, keepInfra); err != nil {
					return err
				}
			}

			p, err := stages.NewTeardownPipeline(rc, a.deps.stages, stages.Options{KeepInfra: keepInfra})
			if err != nil {
				return err
			}

			rerun := []string{"--yes"}
			if keepInfra {
				rerun = append(rerun, "--keep-infra")
			}
			return a.execute(ctx, logger, r, rc, p, identity, a.rerunCommand("teardown", rerun...))
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not prompt for confirmation")
	cmd.Flags().BoolVar(&keepInfra, "keep-infra", false, "Keep the cluster and other terraform-managed resources")

	return cmd
}

// confirmTeardown asks the operator to type the cluster name.
func (a *app) confirmTeardown(rc config.RunContext, identity cloud.Identity, keepInfra bool) error {
	if a.deps.interactive == nil || !a.deps.interactive() {
		return ErrConfirmationRequired
	}

	what := fmt.Sprintf("the cluster %q and everything deployed to it", rc.Cluster)
	if keepInfra {
		what = fmt.Sprintf("everything deployed to cluster %q (the cluster is kept)", rc.Cluster)
	}
	fmt.Fprintf(a.deps.stdout, "This deletes %s in %s, account %s.\nType the cluster name to continue: ",
		what, rc.Region, identity.Account)

	line, err := bufio.NewReader(a.deps.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimSpace(line) != rc.Cluster {
		return ErrTeardownDeclined
	}
	return nil
}
