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
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/frontend"
	"github.com/toolgate/toolgate/internal/logging"
	"github.com/toolgate/toolgate/internal/pool"
	"github.com/toolgate/toolgate/internal/router"
	"github.com/toolgate/toolgate/internal/session"
	"github.com/toolgate/toolgate/internal/store"
	"github.com/toolgate/toolgate/internal/telemetry"
	"github.com/toolgate/toolgate/internal/zoo"
)

// ServeCommand wires every gateway component together from the on-disk
// configuration and runs the frontend's stdio request loop until EOF or
// the process is signalled to stop.
var ServeCommand = &cli.Command{
	Name:        "serve",
	Usage:       "toolgate serve",
	Description: "Starts the toolgate MCP gateway over stdio, proxying the downstream servers declared in config.json.",
	Action:      handleServe,
}

func handleServe(ctx context.Context, _ *cli.Command) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(logging.Config{Level: cfg.Server.LogLevel})

	shutdownOTel, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{ServiceName: cfg.Server.Name})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry providers: %w", err)
	}
	defer func() {
		if shutdownErr := shutdownOTel(context.Background()); shutdownErr != nil {
			logger.Warn().Err(shutdownErr).Msg("failed to shut down telemetry providers cleanly")
		}
	}()

	metrics, err := telemetry.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create OTel instruments: %w", err)
	}

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		go func() {
			if srvErr := metricsServer.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
				logger.Warn().Err(srvErr).Str("addr", cfg.Server.MetricsAddr).Msg("metrics server stopped unexpectedly")
			}
		}()
		defer metricsServer.Close()
	}

	sinks := []telemetry.Sink{telemetry.NewLogSink(logger)}
	if logDir, dirErr := logging.GetLogsDirectory(); dirErr == nil {
		if mkErr := os.MkdirAll(logDir, 0o755); mkErr == nil {
			if appendStore, storeErr := store.NewFileAppendStore(logDir); storeErr == nil {
				sinks = append(sinks, telemetry.NewFileSink(func(line []byte) error {
					return appendStore.Append(ctx, "events", append(line, '\n'))
				}))
			}
		}
	}
	bus := telemetry.NewBus(1024, sinks...)
	bus.SetMetrics(metrics)
	defer bus.Close()

	z := zoo.New(buildEmbedder(cfg.ToolZoo, logger), 0, logger)

	var sessionBackend interface {
		Append(ctx context.Context, partition string, record []byte) error
		ReadAll(ctx context.Context, partition string) ([][]byte, error)
	}
	if cfg.Session.PersistDir != "" {
		if fs, storeErr := store.NewFileAppendStore(cfg.Session.PersistDir); storeErr == nil {
			sessionBackend = fs
		} else {
			logger.Warn().Err(storeErr).Msg("failed to open session persistence directory, sessions will not survive a restart")
		}
	}
	sessions := session.NewStore(sessionBackend, cfg.Session.MaxHistory)

	p := pool.New(z, bus, logger, pool.Options{})
	p.SetMetrics(metrics)
	if err := p.StartAll(ctx, spawnSpecs(cfg.DownstreamServers)); err != nil {
		logger.Warn().Err(err).Msg("one or more downstream servers failed to start")
	}
	defer p.Shutdown(ctx)

	r := router.New(z, bus, logger)
	r.SetMetrics(metrics)

	fe := frontend.New(p, r, z, sessions, bus, logger, frontend.Options{
		Name:    cfg.Server.Name,
		Version: "",
		RouterConfig: router.Config{
			MaxTools:          cfg.Router.MaxTools,
			MaxPerServer:      cfg.Router.MaxPerServer,
			MinConfidence:     cfg.Router.MinConfidence,
			FallbackTools:     cfg.Router.FallbackTools,
			DomainBoost:       cfg.Router.DomainBoost,
			UsageBoost:        cfg.Router.UsageBoost,
			CooccurrenceBoost: cfg.Router.CooccurrenceBoost,
			EnableLearning:    cfg.Router.EnableLearning,
		},
		Processors: cfg.Processors,
	})

	return fe.Serve(ctx, os.Stdin, os.Stdout)
}
