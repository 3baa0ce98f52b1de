// Package config contains the loader and strongly typed model for the stackctl run context.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	envparse "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/codex-k8s/stackctl/internal/env"
)

const (
	// DefaultConfigFile is the stack description looked up in the working directory.
	DefaultConfigFile = "stack.yaml"
	// DefaultEnvFile is the optional dotenv file looked up next to the stack description.
	DefaultEnvFile = ".env"
)

// RunContext is the immutable set of values every stage reads.
// It is built once before a pipeline starts and passed by value afterwards.
type RunContext struct {
	// Region is the AWS region hosting the cluster and registry.
	Region string `yaml:"region,omitempty" env:"STACKCTL_REGION"`
	// Profile selects the AWS shared-config profile.
	Profile string `yaml:"profile,omitempty" env:"STACKCTL_PROFILE"`
	// Cluster is the EKS cluster name.
	Cluster string `yaml:"cluster,omitempty" env:"STACKCTL_CLUSTER"`
	// Namespace is the Kubernetes namespace of the application workload.
	Namespace string `yaml:"namespace,omitempty" env:"STACKCTL_NAMESPACE"`
	// Kubeconfig is an explicit kubeconfig path; empty means the kubectl default.
	Kubeconfig string `yaml:"kubeconfig,omitempty" env:"STACKCTL_KUBECONFIG"`
	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `yaml:"-"`
	// InfraDir is the terraform root module, treated as opaque.
	InfraDir string `yaml:"infraDir,omitempty" env:"STACKCTL_INFRA_DIR"`
	// ManifestsDir holds the workload manifests applied after templating.
	ManifestsDir string `yaml:"manifestsDir,omitempty" env:"STACKCTL_MANIFESTS_DIR"`
	// ClusterScopedKinds adds custom resource kinds (e.g. ClusterIssuer) that must not get a namespace.
	ClusterScopedKinds []string `yaml:"clusterScopedKinds,omitempty" env:"STACKCTL_CLUSTER_SCOPED_KINDS" envSeparator:","`
	// EnvFiles lists dotenv files loaded before environment variables.
	EnvFiles []string `yaml:"envFiles,omitempty"`

	// Registry describes where the registry reference comes from and how it is substituted.
	Registry RegistryConfig `yaml:"registry,omitempty" envPrefix:"STACKCTL_REGISTRY_"`
	// Image describes the application image build.
	Image ImageConfig `yaml:"image,omitempty" envPrefix:"STACKCTL_IMAGE_"`
	// App names the workload objects the readiness stages observe.
	App AppConfig `yaml:"app,omitempty" envPrefix:"STACKCTL_APP_"`
	// LoadBalancer configures the load-balancer controller release.
	LoadBalancer ReleaseConfig `yaml:"loadBalancer,omitempty" envPrefix:"STACKCTL_LB_"`
	// CI configures the CI server release.
	CI ReleaseConfig `yaml:"ci,omitempty" envPrefix:"STACKCTL_CI_"`
	// Timeouts bounds every external operation.
	Timeouts Timeouts `yaml:"timeouts,omitempty" envPrefix:"STACKCTL_TIMEOUT_"`
	// Hooks are operator-defined shell steps around the pipelines.
	Hooks HookSet `yaml:"hooks,omitempty"`
}

// RegistryConfig describes the container registry reference.
type RegistryConfig struct {
	// Output is the terraform output holding the repository URL.
	Output string `yaml:"output,omitempty" env:"OUTPUT"`
	// Placeholder is the literal token replaced in workload manifests.
	Placeholder string `yaml:"placeholder,omitempty" env:"PLACEHOLDER"`
}

// ImageConfig describes the application image.
type ImageConfig struct {
	// Tag is the image tag. It is mutable: re-pushing overwrites it.
	Tag string `yaml:"tag,omitempty" env:"TAG"`
	// Context is the docker build context relative to the project root.
	Context string `yaml:"context,omitempty" env:"CONTEXT"`
	// Dockerfile is an optional Dockerfile path relative to the project root.
	Dockerfile string `yaml:"dockerfile,omitempty" env:"DOCKERFILE"`
	// Platform is an optional target platform (e.g. linux/amd64).
	Platform string `yaml:"platform,omitempty" env:"PLATFORM"`
	// BuildArgs are passed as --build-arg; values are templates.
	BuildArgs map[string]string `yaml:"buildArgs,omitempty"`
}

// AppConfig names the application objects in the cluster.
type AppConfig struct {
	// Deployment is the Deployment whose rollout is awaited.
	Deployment string `yaml:"deployment,omitempty" env:"DEPLOYMENT"`
	// Service is the LoadBalancer Service whose hostname is awaited.
	Service string `yaml:"service,omitempty" env:"SERVICE"`
}

// ReleaseConfig describes a helm release installed by the pipeline.
type ReleaseConfig struct {
	// Release is the helm release name.
	Release string `yaml:"release,omitempty" env:"RELEASE"`
	// Chart is the chart reference (repo/chart).
	Chart string `yaml:"chart,omitempty" env:"CHART"`
	// RepoName is the local helm repository alias.
	RepoName string `yaml:"repoName,omitempty" env:"REPO_NAME"`
	// RepoURL is the helm repository URL.
	RepoURL string `yaml:"repoURL,omitempty" env:"REPO_URL"`
	// Namespace is the release namespace.
	Namespace string `yaml:"namespace,omitempty" env:"NAMESPACE"`
	// Service is the Service exposing the release, if any.
	Service string `yaml:"service,omitempty" env:"SERVICE"`
	// ValuesFile is an optional values file relative to the project root.
	ValuesFile string `yaml:"valuesFile,omitempty" env:"VALUES_FILE"`
	// RoleOutput is an optional terraform output holding an IAM role ARN for the release service account.
	RoleOutput string `yaml:"roleOutput,omitempty" env:"ROLE_OUTPUT"`
	// Set holds extra --set values; values are templates.
	Set map[string]string `yaml:"set,omitempty"`
}

// Timeouts bounds external operations.
type Timeouts struct {
	// Command is the default timeout for a single external command.
	Command time.Duration `yaml:"command,omitempty" env:"COMMAND"`
	// Infra is the timeout for terraform apply/destroy.
	Infra time.Duration `yaml:"infra,omitempty" env:"INFRA"`
	// Preflight bounds each precondition check.
	Preflight time.Duration `yaml:"preflight,omitempty" env:"PREFLIGHT"`
	// Rollout bounds the deployment rollout wait.
	Rollout time.Duration `yaml:"rollout,omitempty" env:"ROLLOUT"`
	// Endpoint is the readiness deadline for load-balancer hostnames.
	Endpoint time.Duration `yaml:"endpoint,omitempty" env:"ENDPOINT"`
	// PollInterval is the sleep between readiness polls.
	PollInterval time.Duration `yaml:"pollInterval,omitempty" env:"POLL_INTERVAL"`
}

// HookSet describes operator-defined steps executed around the pipelines.
type HookSet struct {
	// BeforeProvision runs before the first provisioning stage.
	BeforeProvision []HookStep `yaml:"beforeProvision,omitempty"`
	// AfterProvision runs after the last provisioning stage.
	AfterProvision []HookStep `yaml:"afterProvision,omitempty"`
	// BeforeTeardown runs before the first teardown stage.
	BeforeTeardown []HookStep `yaml:"beforeTeardown,omitempty"`
	// AfterTeardown runs after the last teardown stage.
	AfterTeardown []HookStep `yaml:"afterTeardown,omitempty"`
}

// HookStep describes a single shell hook.
type HookStep struct {
	// Name is the stage identifier used in logs and the report.
	Name string `yaml:"name"`
	// Run is a shell command template executed with sh -c.
	Run string `yaml:"run"`
	// ContinueOnError turns failures into warnings.
	ContinueOnError bool `yaml:"continueOnError,omitempty"`
	// Timeout is a duration string bounding the hook.
	Timeout string `yaml:"timeout,omitempty"`
}

// Defaults returns the built-in run context.
func Defaults() RunContext {
	return RunContext{
		Region:       "us-east-1",
		Cluster:      "stackctl-eks",
		Namespace:    "app",
		InfraDir:     "terraform",
		ManifestsDir: "k8s",
		Registry: RegistryConfig{
			Output:      "ecr_repository_url",
			Placeholder: "__IMAGE_REPOSITORY__",
		},
		Image: ImageConfig{
			Tag:     "latest",
			Context: "app",
		},
		App: AppConfig{
			Deployment: "app",
			Service:    "app",
		},
		LoadBalancer: ReleaseConfig{
			Release:    "aws-load-balancer-controller",
			Chart:      "eks/aws-load-balancer-controller",
			RepoName:   "eks",
			RepoURL:    "https://aws.github.io/eks-charts",
			Namespace:  "kube-system",
			RoleOutput: "lb_controller_role_arn",
		},
		CI: ReleaseConfig{
			Release:   "jenkins",
			Chart:     "jenkins/jenkins",
			RepoName:  "jenkins",
			RepoURL:   "https://charts.jenkins.io",
			Namespace: "jenkins",
			Service:   "jenkins",
		},
		Timeouts: Timeouts{
			Command:      10 * time.Minute,
			Infra:        45 * time.Minute,
			Preflight:    30 * time.Second,
			Rollout:      5 * time.Minute,
			Endpoint:     10 * time.Minute,
			PollInterval: 15 * time.Second,
		},
	}
}

// LoadOptions describes where configuration is read from.
type LoadOptions struct {
	// ConfigPath is the stack description path. Empty means DefaultConfigFile when present.
	ConfigPath string
	// EnvFiles are extra dotenv files given on the command line.
	EnvFiles []string
	// Environ is the process environment; nil means os.Environ.
	Environ env.Vars
}

// awsEnv captures the standard AWS variables honoured as a fallback.
type awsEnv struct {
	// Region is read from AWS_REGION.
	Region string `env:"AWS_REGION"`
	// DefaultRegion is read from AWS_DEFAULT_REGION.
	DefaultRegion string `env:"AWS_DEFAULT_REGION"`
	// Profile is read from AWS_PROFILE.
	Profile string `env:"AWS_PROFILE"`
}

// Load builds a RunContext from defaults, the stack description, dotenv files and the environment,
// in that order of increasing precedence.
func Load(opts LoadOptions) (RunContext, error) {
	rc := Defaults()

	path, explicit := opts.ConfigPath, strings.TrimSpace(opts.ConfigPath) != ""
	if !explicit {
		path = DefaultConfigFile
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return RunContext{}, fmt.Errorf("resolve config path: %w", err)
	}
	rc.ProjectRoot = filepath.Dir(absPath)

	raw, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &rc); err != nil {
			return RunContext{}, fmt.Errorf("parse %q: %w", absPath, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// No stack description: defaults and environment only.
	default:
		return RunContext{}, fmt.Errorf("read config %q: %w", absPath, err)
	}

	osVars := opts.Environ
	if osVars == nil {
		osVars = env.FromOS()
	}

	implicit, err := env.LoadEnvFiles(rc.ProjectRoot, []string{DefaultEnvFile}, true)
	if err != nil {
		return RunContext{}, err
	}
	declared, err := env.LoadEnvFiles(rc.ProjectRoot, rc.EnvFiles, false)
	if err != nil {
		return RunContext{}, err
	}
	given, err := env.LoadEnvFiles("", opts.EnvFiles, false)
	if err != nil {
		return RunContext{}, err
	}
	vars := env.Merge(implicit, declared, given, osVars)

	var aws awsEnv
	if err := envparse.ParseWithOptions(&aws, envparse.Options{Environment: vars}); err != nil {
		return RunContext{}, fmt.Errorf("parse AWS environment: %w", err)
	}
	if aws.DefaultRegion != "" {
		rc.Region = aws.DefaultRegion
	}
	if aws.Region != "" {
		rc.Region = aws.Region
	}
	if aws.Profile != "" {
		rc.Profile = aws.Profile
	}

	if err := envparse.ParseWithOptions(&rc, envparse.Options{Environment: vars}); err != nil {
		return RunContext{}, fmt.Errorf("parse STACKCTL_* environment: %w", err)
	}

	if err := rc.Validate(); err != nil {
		return RunContext{}, err
	}
	return rc, nil
}

// Overrides carries command-line values. Empty fields leave the context unchanged.
type Overrides struct {
	Region    string
	Profile   string
	Cluster   string
	Namespace string
	ImageTag  string
	Endpoint  time.Duration
}

// With returns a copy of rc with the non-empty overrides applied and validated.
func (rc RunContext) With(o Overrides) (RunContext, error) {
	out := rc
	if v := strings.TrimSpace(o.Region); v != "" {
		out.Region = v
	}
	if v := strings.TrimSpace(o.Profile); v != "" {
		out.Profile = v
	}
	if v := strings.TrimSpace(o.Cluster); v != "" {
		out.Cluster = v
	}
	if v := strings.TrimSpace(o.Namespace); v != "" {
		out.Namespace = v
	}
	if v := strings.TrimSpace(o.ImageTag); v != "" {
		out.Image.Tag = v
	}
	if o.Endpoint > 0 {
		out.Timeouts.Endpoint = o.Endpoint
	}
	out.EnvFiles = append([]string(nil), rc.EnvFiles...)
	out.ClusterScopedKinds = append([]string(nil), rc.ClusterScopedKinds...)
	if err := out.Validate(); err != nil {
		return RunContext{}, err
	}
	return out, nil
}

// Validate reports missing or inconsistent values.
func (rc RunContext) Validate() error {
	var problems []string
	required := map[string]string{
		"region":               rc.Region,
		"cluster":              rc.Cluster,
		"namespace":            rc.Namespace,
		"infraDir":             rc.InfraDir,
		"manifestsDir":         rc.ManifestsDir,
		"registry.output":      rc.Registry.Output,
		"registry.placeholder": rc.Registry.Placeholder,
		"image.tag":            rc.Image.Tag,
		"app.deployment":       rc.App.Deployment,
		"app.service":          rc.App.Service,
	}
	for _, key := range sortedKeys(required) {
		if strings.TrimSpace(required[key]) == "" {
			problems = append(problems, key+" must not be empty")
		}
	}

	timeouts := map[string]time.Duration{
		"timeouts.command":      rc.Timeouts.Command,
		"timeouts.infra":        rc.Timeouts.Infra,
		"timeouts.preflight":    rc.Timeouts.Preflight,
		"timeouts.rollout":      rc.Timeouts.Rollout,
		"timeouts.endpoint":     rc.Timeouts.Endpoint,
		"timeouts.pollInterval": rc.Timeouts.PollInterval,
	}
	for _, key := range sortedKeys(timeouts) {
		if timeouts[key] <= 0 {
			problems = append(problems, key+" must be positive")
		}
	}

	for _, step := range rc.Hooks.all() {
		if strings.TrimSpace(step.Name) == "" || strings.TrimSpace(step.Run) == "" {
			problems = append(problems, "every hook needs a name and a run command")
			break
		}
		if step.Timeout != "" {
			if _, err := time.ParseDuration(step.Timeout); err != nil {
				problems = append(problems, fmt.Sprintf("hook %q: invalid timeout %q", step.Name, step.Timeout))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Path resolves p against the project root unless it is absolute.
func (rc RunContext) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || rc.ProjectRoot == "" {
		return p
	}
	return filepath.Join(rc.ProjectRoot, p)
}

// AWSEnv returns the environment overlay selecting the configured profile and region
// for aws, terraform, kubectl and helm invocations.
func (rc RunContext) AWSEnv() env.Vars {
	vars := env.Vars{
		"AWS_REGION":         rc.Region,
		"AWS_DEFAULT_REGION": rc.Region,
	}
	if rc.Profile != "" {
		vars["AWS_PROFILE"] = rc.Profile
	}
	if rc.Kubeconfig != "" {
		vars["KUBECONFIG"] = rc.Path(rc.Kubeconfig)
	}
	return vars
}

func (h HookSet) all() []HookStep {
	var out []HookStep
	out = append(out, h.BeforeProvision...)
	out = append(out, h.AfterProvision...)
	out = append(out, h.BeforeTeardown...)
	out = append(out, h.AfterTeardown...)
	return out
}
