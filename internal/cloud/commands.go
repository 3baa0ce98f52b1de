package cloud

import (
	"strings"

	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/runner"
)

// UpdateKubeconfig writes cluster credentials into the kubeconfig used by kubectl and helm.
func UpdateKubeconfig(rc config.RunContext) runner.Command {
	args := []string{"eks", "update-kubeconfig", "--name", rc.Cluster, "--region", rc.Region}
	if rc.Kubeconfig != "" {
		args = append(args, "--kubeconfig", rc.Path(rc.Kubeconfig))
	}
	return runner.Command{Name: "aws", Args: args}
}

// ECRLoginPassword prints a registry token. Its output is a secret, so it is not logged.
func ECRLoginPassword(rc config.RunContext) runner.Command {
	return runner.Command{
		Name:  "aws",
		Args:  []string{"ecr", "get-login-password", "--region", rc.Region},
		Quiet: true,
	}
}

// DescribeCluster is the manual check suggested when the cluster is unreachable.
func DescribeCluster(rc config.RunContext) string {
	return runner.Command{
		Name: "aws",
		Args: []string{"eks", "describe-cluster", "--name", rc.Cluster, "--region", rc.Region, "--query", "cluster.status"},
	}.String()
}

// DescribeRepositories is the manual check suggested when registry login fails.
func DescribeRepositories(rc config.RunContext) string {
	return runner.Command{
		Name: "aws",
		Args: []string{"ecr", "describe-repositories", "--region", rc.Region},
	}.String()
}

// RegistryHost strips the repository path from an ECR repository URL.
func RegistryHost(repositoryURL string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(repositoryURL, "https://"), "http://")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	return host
}
