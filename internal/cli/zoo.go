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

package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/logging"
	"github.com/toolgate/toolgate/internal/pool"
	"github.com/toolgate/toolgate/internal/telemetry"
	"github.com/toolgate/toolgate/internal/zoo"
)

// ZooCommand groups Tool Zoo inspection subcommands.
var ZooCommand = &cli.Command{
	Name:  "zoo",
	Usage: "Inspect the Tool Zoo",
	Commands: []*cli.Command{
		ZooStatsCommand,
	},
}

// ZooStatsCommand connects to every configured downstream server, indexes
// its tools into a scratch Tool Zoo, and reports what was found. Useful for
// confirming a config.json change before running "toolgate serve".
var ZooStatsCommand = &cli.Command{
	Name:        "stats",
	Usage:       "toolgate zoo stats",
	Description: "Connects to every configured downstream server and reports how many tools the Tool Zoo indexed from each.",
	Action:      handleZooStats,
}

func handleZooStats(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(logging.Config{Level: cfg.Server.LogLevel})
	bus := telemetry.NewBus(256)
	defer bus.Close()

	z := zoo.New(buildEmbedder(cfg.ToolZoo, logger), 0, logger)
	p := pool.New(z, bus, logger, pool.Options{})
	if err := p.StartAll(ctx, spawnSpecs(cfg.DownstreamServers)); err != nil {
		logger.Warn().Err(err).Msg("one or more downstream servers failed to start")
	}
	defer p.Shutdown(ctx)

	out := cmd.Writer
	if out == nil {
		out = os.Stdout
	}
	stats := z.Stats()
	fmt.Fprintf(out, "Total tools indexed: %d\n", stats.Total)
	fmt.Fprintf(out, "Embedded (vector-searchable): %d\n\n", stats.EmbeddedCount)

	servers := make([]string, 0, len(stats.PerServer))
	for name := range stats.PerServer {
		servers = append(servers, name)
	}
	sort.Strings(servers)

	states := p.States()
	fmt.Fprintln(out, "SERVER                STATE      TOOLS")
	for _, name := range servers {
		fmt.Fprintf(out, "%-22s %-10s %d\n", name, states[name], stats.PerServer[name])
	}
	return nil
}
