package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/helm"
	"github.com/codex-k8s/stackctl/internal/pipeline"
)

func helmFor(rc config.RunContext) helm.Helm {
	return helm.Helm{Kubeconfig: kubeconfigPath(rc)}
}

// installRelease adds the chart repository and upgrades or installs the release.
func installRelease(ctx context.Context, sc *pipeline.StageContext, cfg config.ReleaseConfig, extra ...string) error {
	h := helmFor(sc.Config)
	if cfg.RepoName != "" && cfg.RepoURL != "" {
		if _, err := sc.Exec(ctx, h.RepoAdd(cfg.RepoName, cfg.RepoURL)); err != nil {
			return err
		}
		if _, err := sc.Exec(ctx, h.RepoUpdate(cfg.RepoName)); err != nil {
			return err
		}
	}

	rel, err := helm.ReleaseFromConfig(sc.Config, cfg, sc.Config.Timeouts.Rollout, extra...)
	if err != nil {
		return err
	}
	_, err = sc.Exec(ctx, h.UpgradeInstall(rel))
	return pipeline.WithRemediation(err, h.Status(cfg.Release, cfg.Namespace).String())
}

func uninstallRelease(id, what string, cfg func(config.RunContext) config.ReleaseConfig) *pipeline.Stage {
	return &pipeline.Stage{
		ID:          id,
		Description: "uninstall the " + what,
		Policy:      pipeline.PolicySoft,
		Idempotency: "a missing release is ignored",
		Forward: func(ctx context.Context, sc *pipeline.StageContext) error {
			rel := cfg(sc.Config)
			h := helmFor(sc.Config)
			_, err := sc.Exec(ctx, h.Uninstall(rel.Release, rel.Namespace))
			return pipeline.WithRemediation(err, h.Status(rel.Release, rel.Namespace).String())
		},
	}
}

func lbControllerStage() pipeline.Stage {
	return pipeline.Stage{
		ID:          IDInstallLBController,
		Description: "install the AWS load-balancer controller",
		Policy:      pipeline.PolicyHard,
		Idempotency: "helm upgrade --install converges the release",
		Forward: func(ctx context.Context, sc *pipeline.StageContext) error {
			rc := sc.Config
			extra := []string{
				"clusterName=" + rc.Cluster,
				"region=" + rc.Region,
				"serviceAccount.create=true",
				"serviceAccount.name=" + rc.LoadBalancer.Release,
			}
			if rc.LoadBalancer.RoleOutput != "" {
				read := terraform(rc).Output(rc.LoadBalancer.RoleOutput)
				arn, err := sc.Output(ctx, read)
				if err != nil {
					return pipeline.WithRemediation(
						fmt.Errorf("read controller role from terraform output %s: %w", rc.LoadBalancer.RoleOutput, err),
						read.String(),
					)
				}
				extra = append(extra, `serviceAccount.annotations.eks\.amazonaws\.com/role-arn=`+arn)
			}
			return installRelease(ctx, sc, rc.LoadBalancer, extra...)
		},
		Reverse: uninstallRelease(IDUninstallLBController, "AWS load-balancer controller", func(rc config.RunContext) config.ReleaseConfig {
			return rc.LoadBalancer
		}),
	}
}

func ciServerStage() pipeline.Stage {
	return pipeline.Stage{
		ID:          IDInstallCIServer,
		Description: "install the Jenkins CI server",
		Policy:      pipeline.PolicySoft,
		Idempotency: "helm upgrade --install converges the release",
		Forward: func(ctx context.Context, sc *pipeline.StageContext) error {
			var extra []string
			if !hasSetKey(sc.Config.CI.Set, "controller.serviceType") {
				extra = append(extra, "controller.serviceType=LoadBalancer")
			}
			return installRelease(ctx, sc, sc.Config.CI, extra...)
		},
		Reverse: uninstallRelease(IDUninstallCIServer, "Jenkins CI server", func(rc config.RunContext) config.ReleaseConfig {
			return rc.CI
		}),
	}
}

func hasSetKey(set map[string]string, key string) bool {
	for k := range set {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}
