// Package kube builds kubectl invocations and reads cluster state through client-go.
package kube

import (
	"bytes"
	"fmt"
	"time"

	"github.com/codex-k8s/stackctl/internal/runner"
)

// Kubectl builds kubectl commands bound to an optional kubeconfig and context.
type Kubectl struct {
	Kubeconfig string
	Context    string
}

// NewKubectl constructs a kubectl command builder.
func NewKubectl(kubeconfig, context string) Kubectl {
	return Kubectl{Kubeconfig: kubeconfig, Context: context}
}

// Apply applies the given multi-document YAML with kubectl apply -f -.
func (k Kubectl) Apply(manifest []byte) runner.Command {
	return k.command(manifest, "apply", "-f", "-")
}

// Delete deletes resources described by the given YAML using kubectl delete -f -.
// When ignoreNotFound is true, NotFound errors are ignored via --ignore-not-found.
func (k Kubectl) Delete(manifest []byte, ignoreNotFound bool) runner.Command {
	args := []string{"delete", "-f", "-"}
	if ignoreNotFound {
		args = append(args, "--ignore-not-found")
	}
	return k.command(manifest, args...)
}

// RolloutStatus blocks until the deployment finished rolling out or timeout elapsed.
// The runner timeout is set slightly above kubectl's own so kubectl reports first.
func (k Kubectl) RolloutStatus(namespace, deployment string, timeout time.Duration) runner.Command {
	cmd := k.command(nil, "rollout", "status", "deployment/"+deployment, "-n", namespace, fmt.Sprintf("--timeout=%s", timeout))
	cmd.Timeout = timeout + 30*time.Second
	return cmd
}

// ServiceHostname is the manual command printing a Service's load-balancer hostname.
func (k Kubectl) ServiceHostname(namespace, service string) runner.Command {
	return k.command(nil, "get", "svc", service, "-n", namespace, "-o", "jsonpath={.status.loadBalancer.ingress[0].hostname}")
}

// Status lists deployments, services and pods in a namespace.
func (k Kubectl) Status(namespace string) runner.Command {
	return k.command(nil, "get", "deploy,svc,pods", "-n", namespace)
}

func (k Kubectl) command(stdin []byte, args ...string) runner.Command {
	cmdArgs := make([]string, 0, len(args)+4)
	if k.Kubeconfig != "" {
		cmdArgs = append(cmdArgs, "--kubeconfig", k.Kubeconfig)
	}
	if k.Context != "" {
		cmdArgs = append(cmdArgs, "--context", k.Context)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := runner.Command{Name: "kubectl", Args: cmdArgs}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	return cmd
}
