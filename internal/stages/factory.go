// Package stages assembles the provisioning and teardown pipelines from the
// infra, cloud, helm, image, manifest and kube building blocks.
package stages

import (
	"context"

	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/hooks"
	"github.com/codex-k8s/stackctl/internal/kube"
	"github.com/codex-k8s/stackctl/internal/pipeline"
)

// Keys of the values shared between stages and exposed to hooks.
const (
	ValueAccount    = "account"
	ValueRegistry   = "registry"
	ValueImage      = "image"
	ValueEndpoint   = "endpoint"
	ValueCIEndpoint = "ci-endpoint"
)

// Stage IDs of the provisioning pipeline, in order.
const (
	IDProvision           = "provision"
	IDConfigureAccess     = "configure-access"
	IDInstallLBController = "install-lb-controller"
	IDInstallCIServer     = "install-ci-server"
	IDBuildImage          = "build-image"
	IDPushImage           = "push-image"
	IDDeploy              = "deploy"
	IDWaitForRollout      = "wait-for-rollout"
	IDWaitForEndpoint     = "wait-for-endpoint"
	IDWaitForCIEndpoint   = "wait-for-ci-endpoint"
)

// Stage IDs only found in the teardown pipeline.
const (
	IDDeleteWorkload        = "delete-workload"
	IDUninstallCIServer     = "uninstall-ci-server"
	IDUninstallLBController = "uninstall-lb-controller"
	IDDestroyInfra          = "destroy-infra"
)

// ServiceLookup reads the external address of a Service.
type ServiceLookup interface {
	ServiceHostname(ctx context.Context, namespace, name string) (string, bool, error)
}

// LookupFactory builds a ServiceLookup. It is called at point of use, after the
// kubeconfig has been written.
type LookupFactory func(rc config.RunContext) (ServiceLookup, error)

// Dependencies holds the collaborators the stages need beyond the runner.
type Dependencies struct {
	Lookup LookupFactory
}

// DefaultDependencies reads Services through client-go.
func DefaultDependencies() Dependencies {
	return Dependencies{
		Lookup: func(rc config.RunContext) (ServiceLookup, error) {
			return kube.NewLookup(kubeconfigPath(rc))
		},
	}
}

// Options tune which stages do work.
type Options struct {
	// SkipBuild reuses the already pushed image: build-image and push-image are skipped.
	SkipBuild bool
	// KeepInfra leaves the terraform-managed infrastructure in place on teardown.
	KeepInfra bool
}

// Provisioning returns the core provisioning stages with their reverse stages attached.
func Provisioning(deps Dependencies, opts Options) []pipeline.Stage {
	return []pipeline.Stage{
		provisionStage(),
		configureAccessStage(pipeline.PolicyHard),
		lbControllerStage(),
		ciServerStage(),
		buildImageStage(opts),
		pushImageStage(opts),
		deployStage(),
		rolloutStage(),
		endpointStage(deps),
		ciEndpointStage(deps),
	}
}

// NewProvisionPipeline builds the provisioning pipeline framed by the provisioning hooks.
func NewProvisionPipeline(rc config.RunContext, deps Dependencies, opts Options) (*pipeline.Pipeline, error) {
	var all []pipeline.Stage
	all = append(all, hooks.Stages(hooks.BeforeProvision, rc.Hooks.BeforeProvision)...)
	all = append(all, Provisioning(deps, opts)...)
	all = append(all, hooks.Stages(hooks.AfterProvision, rc.Hooks.AfterProvision)...)
	return pipeline.New("provision", all...)
}

// NewTeardownPipeline builds the reverse of the provisioning pipeline. Access to
// the cluster is configured first; it is soft so that a cluster which is already
// gone still lets terraform destroy run.
func NewTeardownPipeline(rc config.RunContext, deps Dependencies, opts Options) (*pipeline.Pipeline, error) {
	core, err := pipeline.New("provision", Provisioning(deps, opts)...)
	if err != nil {
		return nil, err
	}
	reverse, err := core.Reverse("teardown")
	if err != nil {
		return nil, err
	}

	var all []pipeline.Stage
	all = append(all, hooks.Stages(hooks.BeforeTeardown, rc.Hooks.BeforeTeardown)...)
	all = append(all, configureAccessStage(pipeline.PolicySoft))
	for _, st := range reverse.Stages() {
		if opts.KeepInfra && st.ID == IDDestroyInfra {
			continue
		}
		all = append(all, st)
	}
	all = append(all, hooks.Stages(hooks.AfterTeardown, rc.Hooks.AfterTeardown)...)
	return pipeline.New("teardown", all...)
}

func kubeconfigPath(rc config.RunContext) string {
	if rc.Kubeconfig == "" {
		return ""
	}
	return rc.Path(rc.Kubeconfig)
}
