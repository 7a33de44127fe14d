package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/conduit/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := &cli.Command{
		Name:                  "conduit-api",
		Usage:                 "Manage API integrations, workflows and their health",
		EnableShellCompletion: true,
		DefaultCommand:        "run",
		Commands: []*cli.Command{
			RunAPICommand(),
			ValidateCommand(),
		},
	}

	err := command.Run(ctx, os.Args)
	if err != nil {
		logger.ErrorContext(ctx, "Command failed", "error", err)
		os.Exit(1)
	}
}
