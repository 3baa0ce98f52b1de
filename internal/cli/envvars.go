package cli

import (
	"fmt"
	"strings"

	envparse "github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/codex-k8s/stackctl/internal/env"
)

// baseEnv defines root CLI defaults sourced from STACKCTL_* env vars.
type baseEnv struct {
	// ConfigPath is the stack description path from STACKCTL_CONFIG.
	ConfigPath string `env:"STACKCTL_CONFIG"`
	// EnvFiles is a comma-separated dotenv list from STACKCTL_ENV_FILES.
	EnvFiles []string `env:"STACKCTL_ENV_FILES" envSeparator:","`
	// LogLevel is the logging level from STACKCTL_LOG_LEVEL.
	LogLevel string `env:"STACKCTL_LOG_LEVEL"`
	// GitHubOutput is the step-output file set by GitHub Actions.
	GitHubOutput string `env:"GITHUB_OUTPUT"`
}

// parseEnv fills target from STACKCTL_* env vars via caarlos0/env.
func parseEnv(target any, environ env.Vars) error {
	if environ == nil {
		environ = env.FromOS()
	}
	return envparse.ParseWithOptions(target, envparse.Options{Environment: environ})
}

// applyEnvDefaults fills flags the user did not set from the environment.
func (a *app) applyEnvDefaults(cmd *cobra.Command) error {
	var base baseEnv
	if err := parseEnv(&base, a.deps.environ); err != nil {
		return fmt.Errorf("parse STACKCTL_* environment: %w", err)
	}

	a.githubOutput = strings.TrimSpace(base.GitHubOutput)

	flags := cmd.Flags()
	if !flags.Changed("config") && strings.TrimSpace(base.ConfigPath) != "" {
		a.opts.ConfigPath = strings.TrimSpace(base.ConfigPath)
	}
	if !flags.Changed("env-file") {
		for _, f := range base.EnvFiles {
			if f = strings.TrimSpace(f); f != "" {
				a.opts.EnvFiles = append(a.opts.EnvFiles, f)
			}
		}
	}
	if !flags.Changed("log-level") && strings.TrimSpace(base.LogLevel) != "" {
		if err := flags.Set("log-level", strings.TrimSpace(base.LogLevel)); err != nil {
			return err
		}
	}
	return nil
}
