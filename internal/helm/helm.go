// Package helm builds helm invocations for the releases installed into the cluster.
package helm

import (
	"fmt"
	"time"

	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/runner"
)

// Release is a resolved helm release.
type Release struct {
	Name       string
	Chart      string
	Namespace  string
	ValuesFile string
	// Set holds KEY=VALUE pairs passed with --set.
	Set []string
	// Wait makes helm wait for the release resources up to this duration. Zero disables it.
	Wait time.Duration
}

// ReleaseFromConfig resolves cfg against rc. extra pairs are appended after the configured ones.
func ReleaseFromConfig(rc config.RunContext, cfg config.ReleaseConfig, wait time.Duration, extra ...string) (Release, error) {
	set, err := config.RenderPairs("helm-set-"+cfg.Release, cfg.Set, rc)
	if err != nil {
		return Release{}, fmt.Errorf("render values for release %s: %w", cfg.Release, err)
	}
	rel := Release{
		Name:      cfg.Release,
		Chart:     cfg.Chart,
		Namespace: cfg.Namespace,
		Set:       append(append([]string(nil), extra...), set...),
		Wait:      wait,
	}
	if cfg.ValuesFile != "" {
		rel.ValuesFile = rc.Path(cfg.ValuesFile)
	}
	return rel, nil
}

// Helm builds helm commands.
type Helm struct {
	Kubeconfig string
}

// RepoAdd registers (or refreshes) a chart repository.
func (h Helm) RepoAdd(name, url string) runner.Command {
	return h.command("repo", "add", name, url, "--force-update")
}

// RepoUpdate refreshes the index of one repository.
func (h Helm) RepoUpdate(name string) runner.Command {
	return h.command("repo", "update", name)
}

// UpgradeInstall installs the release or upgrades it in place. Re-running it converges.
func (h Helm) UpgradeInstall(r Release) runner.Command {
	args := []string{"upgrade", "--install", r.Name, r.Chart, "--namespace", r.Namespace, "--create-namespace"}
	if r.ValuesFile != "" {
		args = append(args, "--values", r.ValuesFile)
	}
	for _, kv := range r.Set {
		args = append(args, "--set", kv)
	}
	cmd := h.command(args...)
	if r.Wait > 0 {
		cmd.Args = append(cmd.Args, "--wait", fmt.Sprintf("--timeout=%s", r.Wait))
		cmd.Timeout = r.Wait + time.Minute
	}
	return cmd
}

// Uninstall removes the release; a missing release is not an error.
func (h Helm) Uninstall(name, namespace string) runner.Command {
	return h.command("uninstall", name, "--namespace", namespace, "--ignore-not-found", "--wait")
}

// Status is the manual command suggested after a failed install.
func (h Helm) Status(name, namespace string) runner.Command {
	return h.command("status", name, "--namespace", namespace)
}

func (h Helm) command(args ...string) runner.Command {
	if h.Kubeconfig != "" {
		args = append([]string{"--kubeconfig", h.Kubeconfig}, args...)
	}
	return runner.Command{Name: "helm", Args: args}
}
