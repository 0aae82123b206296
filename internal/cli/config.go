// Copyright 2025 Toolgate Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at.
//
//     http://www.apache.org/licenses/LICENSE-2.0.
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli provides the operator-facing commands toolgate offers on top
// of the headless gateway process: config init/validate, zoo stats,
// processor init, logs, and serve.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/urfave/cli/v3"

	"github.com/toolgate/toolgate/internal/config"
)

// ConfigCommand groups the configuration management subcommands.
var ConfigCommand = &cli.Command{
	Name:  "config",
	Usage: "Manage the toolgate configuration",
	Commands: []*cli.Command{
		ConfigInitCommand,
		ConfigValidateCommand,
	},
}

// ConfigInitCommand creates ~/.toolgate/config.json with default settings.
var ConfigInitCommand = &cli.Command{
	Name:        "init",
	Usage:       "toolgate config init [--force] [--quickstart]",
	Description: "Creates ~/.toolgate/config.json with default settings and guides initial setup.",
	Action:      handleConfigInit,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "force",
			Aliases: []string{"f"},
			Usage:   "Overwrite an existing configuration file",
		},
		&cli.BoolFlag{
			Name:  "quickstart",
			Usage: "Create a ready-to-run config with one example downstream server (requires npx)",
		},
	},
}

// ConfigValidateCommand checks the on-disk configuration against every
// invariant the gateway assumes holds before it will start.
var ConfigValidateCommand = &cli.Command{
	Name:        "validate",
	Usage:       "toolgate config validate",
	Description: "Validates ~/.toolgate/config.json against the gateway's configuration invariants.",
	Action:      handleConfigValidate,
}

func handleConfigInit(_ context.Context, cmd *cli.Command) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to determine config path: %w", err)
	}

	if !cmd.Bool("force") {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fmt.Printf("Configuration already exists at %s\n", configPath)
			fmt.Println("Use 'toolgate config validate' to check it, or 'toolgate config init --force' to overwrite it.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	quickstart := cmd.Bool("quickstart")
	if quickstart {
		if _, lookErr := exec.LookPath("npx"); lookErr != nil {
			return fmt.Errorf("quickstart requires npx to be installed and available on PATH")
		}
		applyQuickstartConfig(cfg)
	}

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to create configuration: %w", err)
	}

	fmt.Printf("\nToolgate initialized successfully\n")
	fmt.Printf("Configuration created at: %s\n\n", configPath)
	if quickstart {
		fmt.Println("Next step:")
		fmt.Println("  toolgate serve")
		return nil
	}
	fmt.Println("Next steps:")
	fmt.Printf("  1. Add downstream MCP servers to %s under \"downstream_servers\"\n", configPath)
	fmt.Println("  2. Run 'toolgate config validate' to check the result")
	fmt.Println("  3. Run 'toolgate serve' to start the gateway")
	return nil
}

func applyQuickstartConfig(cfg *config.GlobalConfig) {
	cfg.DownstreamServers = []config.DownstreamServerConfig{
		{
			Name:      "sequential-thinking",
			Transport: "stdio",
			Command:   "npx",
			Args:      []string{"-y", "@modelcontextprotocol/server-sequential-thinking"},
		},
	}
}

func handleConfigValidate(_ context.Context, _ *cli.Command) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to determine config path: %w", err)
	}

	cfg, err := config.LoadConfigFromPath(configPath)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", configPath, err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("%s is invalid: %w", configPath, err)
	}

	fmt.Printf("%s is valid\n", configPath)
	fmt.Printf("  %d downstream server(s), %d processor(s) configured\n", len(cfg.DownstreamServers), len(cfg.Processors))
	return nil
}
