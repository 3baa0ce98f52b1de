package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/stackctl/internal/cloud"
	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/env"
	"github.com/codex-k8s/stackctl/internal/logging"
	"github.com/codex-k8s/stackctl/internal/pipeline"
	"github.com/codex-k8s/stackctl/internal/preflight"
	"github.com/codex-k8s/stackctl/internal/runner"
	"github.com/codex-k8s/stackctl/internal/stages"
)

const registryURL = "123456789012.dkr.ecr.us-east-1.amazonaws.com/app"

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
	fail  func(line string) bool
}

func (r *recordingRunner) Run(_ context.Context, cmd runner.Command) runner.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := cmd.String()
	r.calls = append(r.calls, line)
	if cmd.Stdin != nil {
		_, _ = io.Copy(io.Discard, cmd.Stdin)
	}

	res := runner.Result{Command: line}
	switch {
	case r.fail != nil && r.fail(line):
		res.ExitCode = 1
		res.Stderr = "Error: boom\n"
	case strings.HasSuffix(line, "output -raw ecr_repository_url"):
		res.Stdout = registryURL + "\n"
	case strings.HasSuffix(line, "output -raw lb_controller_role_arn"):
		res.Stdout = "arn:aws:iam::123456789012:role/lbc\n"
	case strings.HasPrefix(line, "aws ecr get-login-password"):
		res.Stdout = "pw\n"
	}
	return res
}

func (r *recordingRunner) called(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.ContainsFunc(r.calls, func(c string) bool { return strings.Contains(c, substr) })
}

type hostLookup map[string]string

func (h hostLookup) ServiceHostname(_ context.Context, namespace, name string) (string, bool, error) {
	host, ok := h[namespace+"/"+name]
	return host, ok, nil
}

type harness struct {
	runner      *recordingRunner
	stdout      bytes.Buffer
	stdin       string
	interactive bool
	missing     []string
	environ     env.Vars
	hosts       hostLookup
	seen        []config.RunContext
}

func newHarness() *harness {
	return &harness{
		runner:  &recordingRunner{},
		environ: env.Vars{},
		hosts: hostLookup{
			"app/app":         "app-123.elb.amazonaws.com",
			"jenkins/jenkins": "ci-456.elb.amazonaws.com",
		},
	}
}

func (h *harness) run(args ...string) error {
	d := deps{
		stdin:       strings.NewReader(h.stdin),
		stdout:      &h.stdout,
		stderr:      io.Discard,
		environ:     h.environ,
		interactive: func() bool { return h.interactive },
		lookPath: func(name string) (string, error) {
			if slices.Contains(h.missing, name) {
				return "", exec.ErrNotFound
			}
			return "/usr/bin/" + name, nil
		},
		newRunner: func(*slog.Logger) runner.Runner { return h.runner },
		identity: func(_ context.Context, rc config.RunContext) (cloud.Identity, error) {
			h.seen = append(h.seen, rc)
			return cloud.Identity{Account: "123456789012", ARN: "arn:aws:iam::123456789012:user/ops"}, nil
		},
		stages: stages.Dependencies{Lookup: func(config.RunContext) (stages.ServiceLookup, error) {
			return h.hosts, nil
		}},
	}

	cmd := newRootCommand(&Options{LogLevel: logging.LevelInfo}, logging.Discard(), d)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stack.yaml"), []byte(`
cluster: demo
timeouts:
  pollInterval: 10ms
  endpoint: 200ms
`), 0o600))

	manifests := filepath.Join(dir, "k8s")
	require.NoError(t, os.MkdirAll(manifests, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(manifests, "app.yaml"), []byte(`apiVersion: apps/v1
kind: Deployment
metadata:
  name: app
spec:
  template:
    spec:
      containers:
        - name: app
          image: __IMAGE_REPOSITORY__:latest
`), 0o600))
	return filepath.Join(dir, "stack.yaml")
}

func TestProvisionEndToEnd(t *testing.T) {
	t.Parallel()

	h := newHarness()
	require.NoError(t, h.run("provision", "--config", writeProject(t)))

	out := h.stdout.String()
	assert.Contains(t, out, "stackctl provision: SUCCEEDED")
	assert.Contains(t, out, "app-123.elb.amazonaws.com")
	assert.Contains(t, out, "ci-456.elb.amazonaws.com")
	assert.True(t, h.runner.called("apply -auto-approve"))
	assert.True(t, h.runner.called("docker push "+registryURL+":latest"))
}

func TestProvisionSoftFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	h := newHarness()
	delete(h.hosts, "jenkins/jenkins")

	require.NoError(t, h.run("provision", "--config", writeProject(t)))
	out := h.stdout.String()
	assert.Contains(t, out, "PARTIAL")
	assert.Contains(t, out, "wait-for-ci-endpoint")
}

func TestProvisionHardFailureReturnsStageError(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.runner.fail = func(line string) bool { return strings.Contains(line, "apply -auto-approve") }

	err := h.run("provision", "--config", writeProject(t))
	var stageErr *pipeline.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, stages.IDProvision, stageErr.Stage)
	assert.False(t, h.runner.called("update-kubeconfig"))
	assert.Contains(t, h.stdout.String(), "FAILED")
}

func TestProvisionBuildFailureShowsVerifyCommand(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.runner.fail = func(line string) bool { return strings.HasPrefix(line, "docker build") }

	err := h.run("provision", "--config", writeProject(t))
	var stageErr *pipeline.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, stages.IDBuildImage, stageErr.Stage)

	out := h.stdout.String()
	assert.Contains(t, out, "verify:  docker build")
	assert.Contains(t, out, "see verify command above")
	assert.False(t, h.runner.called("docker push"))
}

func TestProvisionStopsOnMissingTool(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.missing = []string{"helm"}

	err := h.run("provision", "--config", writeProject(t))
	var pfErr *preflight.Error
	require.ErrorAs(t, err, &pfErr)
	require.Len(t, pfErr.Failures, 1)
	assert.Equal(t, "helm", pfErr.Failures[0].Name)
	assert.Contains(t, h.stdout.String(), "preconditions: FAILED")
	assert.False(t, h.runner.called("-chdir="), "no stage may run after a failed precondition")
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.missing = []string{"terraform"}

	_ = h.run("provision",
		"--config", writeProject(t),
		"--region", "eu-west-1",
		"--cluster", "other",
		"--namespace", "web",
		"--image-tag", "v9",
		"--endpoint-timeout", "3s",
	)
	require.Len(t, h.seen, 1)
	rc := h.seen[0]
	assert.Equal(t, "eu-west-1", rc.Region)
	assert.Equal(t, "other", rc.Cluster)
	assert.Equal(t, "web", rc.Namespace)
	assert.Equal(t, "v9", rc.Image.Tag)
	assert.Equal(t, 3*time.Second, rc.Timeouts.Endpoint)
}

func TestEnvironmentSuppliesConfigPath(t *testing.T) {
	t.Parallel()

	path := writeProject(t)
	h := newHarness()
	h.missing = []string{"terraform"}
	h.environ = env.Vars{"STACKCTL_CONFIG": path, "STACKCTL_LOG_LEVEL": "debug"}

	_ = h.run("provision")
	require.Len(t, h.seen, 1)
	assert.Equal(t, "demo", h.seen[0].Cluster)
	assert.Equal(t, filepath.Dir(path), h.seen[0].ProjectRoot)
}

func TestTeardownRequiresYesWithoutTerminal(t *testing.T) {
	t.Parallel()

	h := newHarness()
	err := h.run("teardown", "--config", writeProject(t))
	require.ErrorIs(t, err, ErrConfirmationRequired)
	assert.False(t, h.runner.called("kubectl delete"))
}

func TestTeardownConfirmation(t *testing.T) {
	t.Parallel()

	t.Run("declined", func(t *testing.T) {
		t.Parallel()
		h := newHarness()
		h.interactive = true
		h.stdin = "prod\n"

		err := h.run("teardown", "--config", writeProject(t))
		require.ErrorIs(t, err, ErrTeardownDeclined)
		assert.Contains(t, h.stdout.String(), `cluster "demo"`)
		assert.False(t, h.runner.called("kubectl delete"))
	})

	t.Run("confirmed keeping infra", func(t *testing.T) {
		t.Parallel()
		h := newHarness()
		h.interactive = true
		h.stdin = "demo\n"

		require.NoError(t, h.run("teardown", "--config", writeProject(t), "--keep-infra"))
		assert.True(t, h.runner.called("kubectl delete"))
		assert.True(t, h.runner.called("helm uninstall"))
		assert.False(t, h.runner.called(" destroy "))
		assert.Contains(t, h.stdout.String(), "stackctl teardown: SUCCEEDED")
	})
}

func TestTeardownWithYes(t *testing.T) {
	t.Parallel()

	h := newHarness()
	require.NoError(t, h.run("teardown", "--config", writeProject(t), "--yes"))
	assert.True(t, h.runner.called("destroy -auto-approve"))
}

func TestRerunCommand(t *testing.T) {
	t.Parallel()

	a := &app{opts: &Options{ConfigPath: "stack.yaml", EnvFiles: []string{"prod.env"}, Region: "eu-west-1"}}
	got := a.rerunCommand("teardown", "--yes")
	assert.Equal(t, []string{
		"stackctl", "teardown", "--config", "stack.yaml", "--env-file", "prod.env", "--region", "eu-west-1", "--yes",
	}, got)
}

func TestLoggerFromContextFallback(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, LoggerFromContext(context.Background()))
	l := logging.Discard()
	ctx := context.WithValue(context.Background(), loggerKey{}, l)
	assert.Same(t, l, LoggerFromContext(ctx))
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	err := newHarness().run("bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestProvisionWritesGitHubOutputs(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "github_output")
	h := newHarness()
	h.environ = env.Vars{"GITHUB_OUTPUT": out}

	require.NoError(t, h.run("provision", "--config", writeProject(t)))
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "endpoint=app-123.elb.amazonaws.com\n")
	assert.Contains(t, string(raw), "ci_endpoint=ci-456.elb.amazonaws.com\n")
	assert.Contains(t, string(raw), "account=123456789012\n")
}
