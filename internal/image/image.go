// Package image builds the docker invocations that build, tag and push the application image.
package image

import (
	"fmt"
	"strings"

	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/runner"
)

// Ref is a repository plus tag.
type Ref struct {
	Repository string
	Tag        string
}

// NewRef validates and builds an image reference.
func NewRef(repository, tag string) (Ref, error) {
	repository = strings.TrimSpace(repository)
	tag = strings.TrimSpace(tag)
	if repository == "" {
		return Ref{}, fmt.Errorf("image repository is empty")
	}
	if tag == "" {
		return Ref{}, fmt.Errorf("image tag is empty")
	}
	if strings.ContainsAny(repository, " \t\n") {
		return Ref{}, fmt.Errorf("image repository %q contains whitespace", repository)
	}
	return Ref{Repository: repository, Tag: tag}, nil
}

// String renders repository:tag.
func (r Ref) String() string {
	return r.Repository + ":" + r.Tag
}

// Build returns the docker build command for the configured context.
// Build arguments are rendered as templates against rc.
func Build(rc config.RunContext, ref Ref) (runner.Command, error) {
	args := []string{"build", "-t", ref.String()}
	if rc.Image.Dockerfile != "" {
		args = append(args, "-f", rc.Path(rc.Image.Dockerfile))
	}
	if rc.Image.Platform != "" {
		args = append(args, "--platform", rc.Image.Platform)
	}

	buildArgs, err := config.RenderPairs("image-build-arg", rc.Image.BuildArgs, rc)
	if err != nil {
		return runner.Command{}, fmt.Errorf("render build args: %w", err)
	}
	for _, kv := range buildArgs {
		args = append(args, "--build-arg", kv)
	}

	contextPath := rc.Image.Context
	if contextPath == "" {
		contextPath = "."
	}
	args = append(args, rc.Path(contextPath))

	return runner.Command{Name: "docker", Args: args}, nil
}

// Login authenticates docker against registryHost reading the password from stdin.
func Login(registryHost, password string) runner.Command {
	return runner.Command{
		Name:  "docker",
		Args:  []string{"login", "--username", "AWS", "--password-stdin", registryHost},
		Stdin: strings.NewReader(password),
	}
}

// Push pushes ref. Pushing an existing mutable tag overwrites it.
func Push(ref Ref) runner.Command {
	return runner.Command{Name: "docker", Args: []string{"push", ref.String()}}
}
