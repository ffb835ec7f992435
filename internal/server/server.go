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

// Package server exposes the operation catalog as MCP tools over stdio.
//
// Each catalog operation becomes one tool named by its identity. Three
// built-in tools (set_auth_token, logout, auth_status) manage the session.
// Every operation call runs the same pipeline: rate limit, bind, policy,
// credentials, dispatch.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tombee/apibridge/internal/audit"
	"github.com/tombee/apibridge/internal/binding"
	"github.com/tombee/apibridge/internal/catalog"
	"github.com/tombee/apibridge/internal/config"
	"github.com/tombee/apibridge/internal/credential"
	"github.com/tombee/apibridge/internal/dispatch"
	"github.com/tombee/apibridge/internal/policy"
)

// Server wires the catalog, binder, policy filter, credential cache, and
// dispatcher behind an MCP stdio surface.
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *config.Config
	catalog    *catalog.Catalog
	binder     *binding.Binder
	policies   *policy.Filter
	cache      *credential.Cache
	dispatcher *dispatch.Dispatcher
	auditor    *audit.Store
	session    *Session
	limiter    *callLimiter
	logger     *slog.Logger
	version    string
}

// Options carries the assembled components for a server.
type Options struct {
	Config     *config.Config
	Catalog    *catalog.Catalog
	Policies   *policy.Filter
	Cache      *credential.Cache
	Dispatcher *dispatch.Dispatcher

	// Auditor is optional; nil disables the audit trail.
	Auditor *audit.Store

	Logger  *slog.Logger
	Version string
}

// New assembles the MCP server and registers every tool.
func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Catalog == nil || opts.Policies == nil || opts.Dispatcher == nil {
		return nil, fmt.Errorf("server requires config, catalog, policies, and dispatcher")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	name := opts.Config.Service.Name
	if name == "" {
		name = "apibridge"
	}

	s := &Server{
		mcpServer:  server.NewMCPServer(name, opts.Version),
		cfg:        opts.Config,
		catalog:    opts.Catalog,
		binder:     binding.New(opts.Config.Validation.MaxValueLength),
		policies:   opts.Policies,
		cache:      opts.Cache,
		dispatcher: opts.Dispatcher,
		auditor:    opts.Auditor,
		session:    &Session{},
		limiter:    newCallLimiter(opts.Config.Limits.CallsPerMinute),
		logger:     opts.Logger.With(slog.String("component", "mcp")),
		version:    opts.Version,
	}

	s.registerAuthTools()
	s.registerOperationTools()

	return s, nil
}

// registerOperationTools registers one tool per catalog operation.
func (s *Server) registerOperationTools() {
	for _, def := range s.catalog.Operations() {
		def := def
		s.mcpServer.AddTool(mcp.Tool{
			Name:        def.Identity,
			Description: def.Description,
			InputSchema: toolInputSchema(def),
		}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return s.handleOperation(ctx, def, request)
		})
	}

	s.logger.Info("registered operation tools",
		slog.Int("operations", s.catalog.Len()),
		slog.String("prefix", s.catalog.Prefix()),
	)
}

// Run serves MCP over stdio until the transport closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server",
		slog.String("service", s.cfg.Service.Name),
		slog.String("version", s.version),
	)

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// MCPServer exposes the underlying server for in-process test transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}
