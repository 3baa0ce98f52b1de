package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/stackctl/internal/env"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	t.Parallel()

	rc, err := Load(LoadOptions{Environ: env.Vars{}})
	require.NoError(t, err)

	want := Defaults()
	assert.Equal(t, want.Region, rc.Region)
	assert.Equal(t, want.Cluster, rc.Cluster)
	assert.Equal(t, want.Timeouts, rc.Timeouts)
}

func TestLoadExplicitMissingConfigFails(t *testing.T) {
	t.Parallel()

	_, err := Load(LoadOptions{
		ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"),
		Environ:    env.Vars{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadPrecedence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "stack.yaml", `
region: eu-central-1
cluster: from-yaml
namespace: from-yaml
envFiles: [stack.env]
image:
  tag: v1
timeouts:
  endpoint: 2m
  pollInterval: 5s
hooks:
  afterProvision:
    - name: smoke
      run: curl -fsS http://example
      continueOnError: true
      timeout: 30s
`)
	writeFile(t, dir, ".env", "STACKCTL_NAMESPACE=from-dotenv\n")
	writeFile(t, dir, "stack.env", "STACKCTL_CLUSTER=from-envfile\nSTACKCTL_IMAGE_TAG=v2\n")

	rc, err := Load(LoadOptions{
		ConfigPath: cfgPath,
		Environ: env.Vars{
			"AWS_PROFILE":                   "ops",
			"STACKCTL_IMAGE_TAG":            "v3",
			"STACKCTL_CLUSTER_SCOPED_KINDS": "ClusterIssuer,ClusterPolicy",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "eu-central-1", rc.Region)
	assert.Equal(t, "ops", rc.Profile)
	assert.Equal(t, "from-envfile", rc.Cluster)
	assert.Equal(t, "from-dotenv", rc.Namespace)
	assert.Equal(t, "v3", rc.Image.Tag)
	assert.Equal(t, []string{"ClusterIssuer", "ClusterPolicy"}, rc.ClusterScopedKinds)
	assert.Equal(t, 2*time.Minute, rc.Timeouts.Endpoint)
	assert.Equal(t, 5*time.Second, rc.Timeouts.PollInterval)
	assert.Equal(t, Defaults().Timeouts.Rollout, rc.Timeouts.Rollout)
	assert.Equal(t, dir, rc.ProjectRoot)
	require.Len(t, rc.Hooks.AfterProvision, 1)
	assert.True(t, rc.Hooks.AfterProvision[0].ContinueOnError)
}

func TestLoadStackctlRegionBeatsAWSRegion(t *testing.T) {
	t.Parallel()

	rc, err := Load(LoadOptions{
		ConfigPath: writeFile(t, t.TempDir(), "stack.yaml", "cluster: c\n"),
		Environ: env.Vars{
			"AWS_DEFAULT_REGION": "us-west-1",
			"AWS_REGION":         "us-west-2",
			"STACKCTL_REGION":    "ap-south-1",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ap-south-1", rc.Region)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "stack.yaml", `
cluster: ""
hooks:
  beforeTeardown:
    - name: drain
      run: ./drain.sh
      timeout: soon
`)
	_, err := Load(LoadOptions{ConfigPath: cfgPath, Environ: env.Vars{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster must not be empty")
	assert.Contains(t, err.Error(), `invalid timeout "soon"`)
}

func TestWithOverrides(t *testing.T) {
	t.Parallel()

	base := Defaults()
	got, err := base.With(Overrides{Region: " eu-west-3 ", Cluster: "other", Endpoint: time.Minute})
	require.NoError(t, err)

	assert.Equal(t, "eu-west-3", got.Region)
	assert.Equal(t, "other", got.Cluster)
	assert.Equal(t, time.Minute, got.Timeouts.Endpoint)
	assert.Equal(t, Defaults().Region, base.Region, "receiver must stay untouched")
}

func TestPathAndAWSEnv(t *testing.T) {
	t.Parallel()

	rc := Defaults()
	rc.ProjectRoot = "/work"
	rc.Kubeconfig = "kube/config"

	assert.Equal(t, "/work/terraform", rc.Path(rc.InfraDir))
	assert.Equal(t, "/abs", rc.Path("/abs"))

	vars := rc.AWSEnv()
	assert.Equal(t, "us-east-1", vars["AWS_REGION"])
	assert.NotContains(t, vars, "AWS_PROFILE")
	assert.Equal(t, "/work/kube/config", vars["KUBECONFIG"])

	rc.Profile = "ops"
	assert.Equal(t, "ops", rc.AWSEnv()["AWS_PROFILE"])
}

func TestDefaultsLeaveProfileUnset(t *testing.T) {
	t.Parallel()

	rc := Defaults()
	assert.Empty(t, rc.Profile)
	require.NoError(t, rc.Validate())
}

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	rc := Defaults()
	out, err := RenderTemplate("hook", `kubectl -n {{ .Namespace }} get svc {{ .App.Service | slug }} # {{ default "" "x" }}`, rc)
	require.NoError(t, err)
	assert.Equal(t, "kubectl -n app get svc app # x", out)

	_, err = RenderTemplate("bad", "{{ .Nope }}", rc)
	assert.Error(t, err)
}

func TestRenderPairs(t *testing.T) {
	t.Parallel()

	rc := Defaults()
	pairs, err := RenderPairs("build-arg", map[string]string{
		"REGION":  "{{ .Region }}",
		"CLUSTER": " {{ .Cluster }} ",
	}, rc)
	require.NoError(t, err)
	assert.Equal(t, []string{"CLUSTER=stackctl-eks", "REGION=us-east-1"}, pairs)

	_, err = RenderPairs("bad", map[string]string{"X": "{{ .Missing }}"}, rc)
	assert.Error(t, err)
}
