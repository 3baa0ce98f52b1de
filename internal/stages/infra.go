package stages

import (
	"context"

	"github.com/codex-k8s/stackctl/internal/cloud"
	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/infra"
	"github.com/codex-k8s/stackctl/internal/pipeline"
	"github.com/codex-k8s/stackctl/internal/runner"
)

func terraform(rc config.RunContext) infra.Terraform {
	return infra.Terraform{Dir: rc.Path(rc.InfraDir), Timeout: rc.Timeouts.Infra}
}

func provisionStage() pipeline.Stage {
	return pipeline.Stage{
		ID:          IDProvision,
		Description: "apply the infrastructure definitions (cluster, registry, IAM)",
		Policy:      pipeline.PolicyHard,
		Idempotency: "terraform apply converges to the declared state",
		Forward: func(ctx context.Context, sc *pipeline.StageContext) error {
			tf := terraform(sc.Config)
			if _, err := sc.Exec(ctx, tf.Init()); err != nil {
				return pipeline.WithRemediation(err, tf.Init().String())
			}
			_, err := sc.Exec(ctx, tf.Apply())
			return pipeline.WithRemediation(err, tf.Plan().String())
		},
		Reverse: &pipeline.Stage{
			ID:          IDDestroyInfra,
			Description: "destroy the infrastructure",
			Policy:      pipeline.PolicyHard,
			Idempotency: "terraform destroy on an empty state is a no-op",
			Forward: func(ctx context.Context, sc *pipeline.StageContext) error {
				tf := terraform(sc.Config)
				if _, err := sc.Exec(ctx, tf.Init()); err != nil {
					return pipeline.WithRemediation(err, tf.Init().String())
				}
				_, err := sc.Exec(ctx, tf.Destroy())
				return pipeline.WithRemediation(err, runner.Command{
					Name: "terraform",
					Args: []string{"-chdir=" + sc.Config.Path(sc.Config.InfraDir), "state", "list"},
				}.String())
			},
		},
	}
}

func configureAccessStage(policy pipeline.Policy) pipeline.Stage {
	return pipeline.Stage{
		ID:          IDConfigureAccess,
		Description: "write cluster credentials into the kubeconfig",
		Policy:      policy,
		Idempotency: "update-kubeconfig overwrites the existing entry",
		Forward: func(ctx context.Context, sc *pipeline.StageContext) error {
			_, err := sc.Exec(ctx, cloud.UpdateKubeconfig(sc.Config))
			return pipeline.WithRemediation(err, cloud.DescribeCluster(sc.Config))
		},
	}
}
