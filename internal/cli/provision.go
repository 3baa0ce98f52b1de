package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/preflight"
	"github.com/codex-k8s/stackctl/internal/stages"
)

// newProvisionCommand creates the "provision" subcommand that builds the whole stack.
func newProvisionCommand(a *app) *cobra.Command {
	var (
		skipBuild       bool
		imageTag        string
		endpointTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the cluster, install the controllers and deploy the application",
		Long: "provision runs terraform, configures kubectl, installs the load-balancer controller and the CI server, " +
			"builds and pushes the application image, deploys the manifests and waits for the public endpoints. " +
			"Every stage is safe to re-run.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := LoggerFromContext(ctx)

			rc, err := a.loadRunContext(config.Overrides{ImageTag: imageTag, Endpoint: endpointTimeout})
			if err != nil {
				return err
			}

			r := a.deps.newRunner(logger)
			identity, err := a.checkPreconditions(ctx, logger, r, rc, preflight.ProvisionTools(!skipBuild))
			if err != nil {
				return err
			}

			p, err := stages.NewProvisionPipeline(rc, a.deps.stages, stages.Options{SkipBuild: skipBuild})
			if err != nil {
				return err
			}

			var rerun []string
			if skipBuild {
				rerun = append(rerun, "--skip-build")
			}
			if imageTag != "" {
				rerun = append(rerun, "--image-tag", imageTag)
			}
			return a.execute(ctx, logger, r, rc, p, identity, a.rerunCommand("provision", rerun...))
		},
	}

	cmd.Flags().BoolVar(&skipBuild, "skip-build", false, "Reuse the pushed image instead of building and pushing it")
	cmd.Flags().StringVar(&imageTag, "image-tag", "", "Application image tag override")
	cmd.Flags().DurationVar(&endpointTimeout, "endpoint-timeout", 0, "How long to wait for load-balancer hostnames (e.g. 10m)")

	return cmd
}
