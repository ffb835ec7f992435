// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package serve implements the serve command: assemble the catalog and run
// the MCP server over stdio.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tombee/apibridge/internal/audit"
	"github.com/tombee/apibridge/internal/catalog"
	"github.com/tombee/apibridge/internal/commands/shared"
	"github.com/tombee/apibridge/internal/config"
	"github.com/tombee/apibridge/internal/credential"
	"github.com/tombee/apibridge/internal/dispatch"
	"github.com/tombee/apibridge/internal/log"
	"github.com/tombee/apibridge/internal/policy"
	"github.com/tombee/apibridge/internal/server"
)

// NewCommand creates the serve command.
func NewCommand() *cobra.Command {
	var (
		configPath  string
		logLevel    string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start the MCP (Model Context Protocol) server.

The server loads the configured OpenAPI document, builds one tool per
operation, and serves them over stdio. AI assistants connect via their MCP
configuration, for example:

  {
    "mcpServers": {
      "trello": {
        "command": "apibridge",
        "args": ["serve", "--config", "/path/to/service.yaml"]
      }
    }
  }

Besides the operation tools, the server exposes set_auth_token, logout, and
auth_status for session management.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel, metricsAddr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to the service configuration")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Logging verbosity (debug, info, warn, error)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Optional listen address for Prometheus metrics (e.g. 127.0.0.1:9090)")

	return cmd
}

func run(configPath, logLevel, metricsAddr string) error {
	logCfg := log.FromEnv()
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	logger := log.New(logCfg)

	cfg, err := shared.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	descriptors, err := shared.LoadDescriptors(cfg)
	if err != nil {
		return err
	}
	cat, err := catalog.Build(cfg.API.ToolPrefix, descriptors)
	if err != nil {
		return fmt.Errorf("building operation catalog: %w", err)
	}

	filter, err := policy.New(cfg.Policies)
	if err != nil {
		return fmt.Errorf("loading policies: %w", err)
	}

	gateway := credential.NewGateway(cfg.Auth, cfg.Service.Name, logger)
	cache := credential.NewCache(gateway, cfg.Auth.CacheTTL)
	dispatcher := dispatch.New(cfg.API, cfg.Limits, cfg.Auth.Credentials, logger)

	var auditor *audit.Store
	if cfg.AuditEnabled() {
		auditor, err = openAuditStore(cfg, logger)
		if err != nil {
			return fmt.Errorf("opening audit trail: %w", err)
		}
		defer auditor.Close()
	}

	versionStr, _, _ := shared.GetVersion()
	srv, err := server.New(server.Options{
		Config:     cfg,
		Catalog:    cat,
		Policies:   filter,
		Cache:      cache,
		Dispatcher: dispatcher,
		Auditor:    auditor,
		Logger:     logger,
		Version:    versionStr,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if metricsAddr != "" {
		go serveMetrics(metricsAddr, logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	return srv.Run(ctx)
}

// openAuditStore opens the configured audit database, defaulting to the
// data-dir path. A database that cannot be opened degrades to the in-memory
// store rather than refusing to serve; the trail is lost on exit, but tool
// calls keep working.
func openAuditStore(cfg *config.Config, logger *slog.Logger) (*audit.Store, error) {
	path := cfg.Audit.Path
	if path == "" {
		var err error
		path, err = config.DefaultAuditPath()
		if err != nil {
			return nil, fmt.Errorf("resolving audit path: %w", err)
		}
	}

	store, err := audit.Open(path)
	if err == nil {
		return store, nil
	}

	logger.Warn("audit database unavailable, falling back to in-memory",
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
	return audit.Open(":memory:")
}

// serveMetrics exposes Prometheus metrics on a side listener. Metrics never
// share stdio with the MCP transport.
func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("metrics listener started", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics listener failed", slog.String("error", err.Error()))
	}
}
