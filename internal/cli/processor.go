package cli

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/toolgate/toolgate/internal/processor"
)

// ProcessorCommand provides processor management functionality.
var ProcessorCommand = &cli.Command{
	Name:  "processor",
	Usage: "Manage toolgate processors",
	Commands: []*cli.Command{
		ProcessorInitCommand,
	},
}

// ProcessorInitCommand scaffolds a new processor.
var ProcessorInitCommand = &cli.Command{
	Name:        "init",
	Usage:       "toolgate processor init",
	Description: "Interactively scaffold a new processor.",
	Action:      handleProcessorInit,
}

func handleProcessorInit(_ context.Context, _ *cli.Command) error {
	return processor.RunScaffoldInteractive(os.Stdin, os.Stdout)
}
