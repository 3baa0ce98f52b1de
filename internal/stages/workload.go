package stages

import (
	"context"
	"fmt"

	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/kube"
	"github.com/codex-k8s/stackctl/internal/manifest"
	"github.com/codex-k8s/stackctl/internal/pipeline"
	"github.com/codex-k8s/stackctl/internal/readiness"
)

func kubectl(rc config.RunContext) kube.Kubectl {
	return kube.NewKubectl(kubeconfigPath(rc), "")
}

func renderWorkload(rc config.RunContext, registry string) (manifest.Rendered, error) {
	return manifest.Render(manifest.Options{
		Dir:             rc.Path(rc.ManifestsDir),
		Placeholder:     rc.Registry.Placeholder,
		Replacement:     registry,
		Namespace:       rc.Namespace,
		EnsureNamespace: true,
		ClusterScoped:   rc.ClusterScopedKinds,
	})
}

func deployStage() pipeline.Stage {
	return pipeline.Stage{
		ID:          IDDeploy,
		Description: "apply the workload manifests",
		Policy:      pipeline.PolicyHard,
		Idempotency: "kubectl apply is declarative",
		Forward: func(ctx context.Context, sc *pipeline.StageContext) error {
			registry, ok := sc.Values.Get(ValueRegistry)
			if !ok {
				return fmt.Errorf("registry repository unknown: %s did not run", IDBuildImage)
			}
			rendered, err := renderWorkload(sc.Config, registry)
			if err != nil {
				return err
			}
			if rendered.Substitutions == 0 {
				sc.Logger.Warn("no manifest references the registry placeholder", "placeholder", sc.Config.Registry.Placeholder)
			}
			sc.Logger.Info("applying manifests", "files", len(rendered.Files), "documents", rendered.Documents)
			_, err = sc.Exec(ctx, kubectl(sc.Config).Apply(rendered.YAML))
			return pipeline.WithRemediation(err, kubectl(sc.Config).Status(sc.Config.Namespace).String())
		},
		Reverse: &pipeline.Stage{
			ID:          IDDeleteWorkload,
			Description: "delete the workload",
			Policy:      pipeline.PolicySoft,
			Idempotency: "delete ignores objects that are already gone",
			Forward: func(ctx context.Context, sc *pipeline.StageContext) error {
				// Objects are matched by name, the image reference does not matter here.
				rendered, err := renderWorkload(sc.Config, "")
				if err != nil {
					return err
				}
				_, err = sc.Exec(ctx, kubectl(sc.Config).Delete(rendered.YAML, true))
				return pipeline.WithRemediation(err, kubectl(sc.Config).Status(sc.Config.Namespace).String())
			},
		},
	}
}

func rolloutStage() pipeline.Stage {
	return pipeline.Stage{
		ID:          IDWaitForRollout,
		Description: "wait for the deployment rollout",
		Policy:      pipeline.PolicySoft,
		Forward: func(ctx context.Context, sc *pipeline.StageContext) error {
			rc := sc.Config
			cmd := kubectl(rc).RolloutStatus(rc.Namespace, rc.App.Deployment, rc.Timeouts.Rollout)
			_, err := sc.Exec(ctx, cmd)
			return pipeline.WithRemediation(err, cmd.String())
		},
	}
}

func endpointStage(deps Dependencies) pipeline.Stage {
	return pipeline.Stage{
		ID:          IDWaitForEndpoint,
		Description: "wait for the application load-balancer hostname",
		Policy:      pipeline.PolicySoft,
		Forward: func(ctx context.Context, sc *pipeline.StageContext) error {
			return waitForHostname(ctx, sc, deps, sc.Config.Namespace, sc.Config.App.Service, ValueEndpoint)
		},
	}
}

func ciEndpointStage(deps Dependencies) pipeline.Stage {
	return pipeline.Stage{
		ID:          IDWaitForCIEndpoint,
		Description: "wait for the CI server load-balancer hostname",
		Policy:      pipeline.PolicySoft,
		Forward: func(ctx context.Context, sc *pipeline.StageContext) error {
			if sc.Config.CI.Service == "" {
				return pipeline.Skip("no CI service configured")
			}
			return waitForHostname(ctx, sc, deps, sc.Config.CI.Namespace, sc.Config.CI.Service, ValueCIEndpoint)
		},
	}
}

// waitForHostname polls the Service until the cloud load balancer got an address.
// The deadline elapsing is a not-ready failure with a manual re-check command.
func waitForHostname(ctx context.Context, sc *pipeline.StageContext, deps Dependencies, namespace, service, key string) error {
	rc := sc.Config
	recheck := kubectl(rc).ServiceHostname(namespace, service).String()
	if deps.Lookup == nil {
		return fmt.Errorf("no service lookup configured")
	}
	lookup, err := deps.Lookup(rc)
	if err != nil {
		return pipeline.WithRemediation(fmt.Errorf("connect to cluster: %w", err), recheck)
	}

	out := readiness.Poll(ctx, readiness.Check[string]{
		Description: fmt.Sprintf("service %s/%s load-balancer hostname", namespace, service),
		Poll: func(ctx context.Context) (string, bool, error) {
			return lookup.ServiceHostname(ctx, namespace, service)
		},
		Interval:    rc.Timeouts.PollInterval,
		Deadline:    rc.Timeouts.Endpoint,
		Remediation: recheck,
		Logger:      sc.Logger,
	})
	if !out.Ready() {
		return pipeline.WithRemediation(out.Err(), out.Remediation)
	}

	sc.Values.Set(key, out.Value)
	sc.Logger.Info("endpoint ready", "service", service, "hostname", out.Value, "attempts", out.Attempts)
	return nil
}
