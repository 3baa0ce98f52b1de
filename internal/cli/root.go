// Package cli defines the command-line interface for stackctl.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/stackctl/internal/cloud"
	"github.com/codex-k8s/stackctl/internal/config"
	"github.com/codex-k8s/stackctl/internal/env"
	"github.com/codex-k8s/stackctl/internal/logging"
	"github.com/codex-k8s/stackctl/internal/runner"
	"github.com/codex-k8s/stackctl/internal/stages"
)

// Options stores global CLI options shared between commands.
type Options struct {
	ConfigPath string
	EnvFiles   []string
	LogLevel   logging.Level
	Region     string
	Profile    string
	Cluster    string
	Namespace  string
}

// deps are the process-level collaborators of the commands.
type deps struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// environ is the process environment; nil means os.Environ.
	environ     env.Vars
	interactive func() bool
	lookPath    func(string) (string, error)
	newRunner   func(*slog.Logger) runner.Runner
	identity    func(ctx context.Context, rc config.RunContext) (cloud.Identity, error)
	stages      stages.Dependencies
}

func defaultDeps() deps {
	return deps{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: func() bool { return logging.IsTerminal(os.Stdin) },
		lookPath:    exec.LookPath,
		newRunner:   func(l *slog.Logger) runner.Runner { return runner.New(l) },
		identity:    resolveIdentity,
		stages:      stages.DefaultDependencies(),
	}
}

func resolveIdentity(ctx context.Context, rc config.RunContext) (cloud.Identity, error) {
	client, err := cloud.NewClient(ctx, rc.Region, rc.Profile)
	if err != nil {
		return cloud.Identity{}, err
	}
	return client.Identity(ctx)
}

// app ties the global options to the collaborators.
type app struct {
	opts *Options
	deps deps
	// githubOutput receives the run values when running under GitHub Actions.
	githubOutput string
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
// Cancelling ctx aborts the running pipeline after the current stage.
func Execute(ctx context.Context, args []string, logger *slog.Logger) error {
	rootCmd := newRootCommand(&Options{LogLevel: logging.LevelInfo}, logger, defaultDeps())
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, logger *slog.Logger, d deps) *cobra.Command {
	a := &app{opts: opts, deps: d}

	cmd := &cobra.Command{
		Use:           "stackctl",
		Short:         "stackctl provisions and tears down an EKS application stack",
		Long:          "stackctl provisions an EKS cluster with terraform, installs the load-balancer controller and a CI server, builds and deploys the application image, and waits for public endpoints. teardown reverses it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.applyEnvDefaults(cmd); err != nil {
				return err
			}
			level := logging.ParseLevel(cmd.Flag("log-level").Value.String())
			opts.LogLevel = level
			logger = logging.NewLogger(a.deps.stderr, level)
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level)
			return nil
		},
	}
	cmd.SetOut(d.stdout)
	cmd.SetErr(d.stderr)
	cmd.SetIn(d.stdin)

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the stack description (default "+config.DefaultConfigFile+" when present)")
	pf.StringSliceVar(&opts.EnvFiles, "env-file", nil, "Extra dotenv file(s) to load, repeatable")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.Region, "region", "", "AWS region override")
	pf.StringVar(&opts.Profile, "profile", "", "AWS profile override")
	pf.StringVar(&opts.Cluster, "cluster", "", "EKS cluster name override")
	pf.StringVar(&opts.Namespace, "namespace", "", "Application namespace override")

	cmd.AddCommand(
		newProvisionCommand(a),
		newTeardownCommand(a),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}
