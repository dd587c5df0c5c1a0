// Copyright 2025 Kadir Pekel
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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/minerva/pkg/config"
	"github.com/kadirpekel/minerva/pkg/credentials"
	"github.com/kadirpekel/minerva/pkg/discovery"
	"github.com/kadirpekel/minerva/pkg/mcpserver"
	"github.com/kadirpekel/minerva/pkg/search"
	"github.com/kadirpekel/minerva/pkg/vector"
)

// ServeCmd serves MCP on stdio for local agent hosts.
type ServeCmd struct {
	Config string `short:"c" required:"" type:"path" help:"Path to the server config JSON."`
}

func (c *ServeCmd) Run() error {
	srv, cleanup, err := buildServer(context.Background(), c.Config)
	if err != nil {
		return err
	}
	defer cleanup()

	return srv.ServeStdio()
}

// ServeHTTPCmd serves MCP over HTTP, plus /health and /metrics.
type ServeHTTPCmd struct {
	Config string `short:"c" required:"" type:"path" help:"Path to the server config JSON."`
	Host   string `help:"Listen host (overrides config)."`
	Port   int    `help:"Listen port (overrides config)."`
}

func (c *ServeHTTPCmd) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down")
		cancel()
	}()

	cfg, err := config.LoadServer(c.Config)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}

	srv, cleanup, err := buildServerFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return srv.ServeHTTP(ctx, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
}

func buildServer(ctx context.Context, configPath string) (*mcpserver.Server, func(), error) {
	cfg, err := config.LoadServer(configPath)
	if err != nil {
		return nil, nil, err
	}
	return buildServerFromConfig(ctx, cfg)
}

// buildServerFromConfig opens the store, runs discovery, and assembles the
// MCP server. The returned cleanup closes providers and the store.
func buildServerFromConfig(ctx context.Context, cfg *config.ServerConfig) (*mcpserver.Server, func(), error) {
	store, err := vector.NewChromemStore(cfg.ChromaDBPath)
	if err != nil {
		return nil, nil, err
	}

	reg, err := discovery.Discover(ctx, store, credentials.NewStore())
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	if len(reg.Available()) == 0 {
		slog.Warn("No collections are available; searches will fail until one is indexed and reachable")
	}

	searcher := search.New(reg, search.WithDefaultMaxResults(cfg.DefaultMaxResults))
	srv := mcpserver.New(searcher, reg, Version)
	cleanup := func() {
		_ = reg.Close()
		_ = store.Close()
	}
	return srv, cleanup, nil
}
