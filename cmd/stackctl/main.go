package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/codex-k8s/stackctl/internal/cli"
	"github.com/codex-k8s/stackctl/internal/logging"
)

// main is the entry point for the stackctl CLI binary.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	logger := logging.NewLogger(os.Stderr, logging.LevelInfo)
	err := cli.Execute(ctx, os.Args[1:], logger)
	stop()
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
