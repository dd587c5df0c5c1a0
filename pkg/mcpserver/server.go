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

// Package mcpserver exposes the search layer over the Model Context
// Protocol, on stdio for local agents and over HTTP for remote ones.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kadirpekel/minerva/pkg/discovery"
	"github.com/kadirpekel/minerva/pkg/search"
)

const serverName = "minerva"

const searchToolDescription = `Search a knowledge base semantically and return the most relevant note chunks.
Each result carries noteTitle; cite it when answering from a result.
If the response is too large for your context, call again with a smaller max_results or context_mode "chunk_only".
Call list_knowledge_bases first to see which collections exist and what they cover.`

const listToolDescription = `List the knowledge bases that can be searched, with a description, note and chunk counts, and the embedding model of each.`

// Server wires the MCP tool surface to a Searcher.
type Server struct {
	mcp      *server.MCPServer
	searcher *search.Searcher
	reg      *discovery.Registry
	logger   *slog.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the MCP server and registers its tools.
func New(searcher *search.Searcher, reg *discovery.Registry, version string, opts ...Option) *Server {
	s := &Server{
		searcher: searcher,
		reg:      reg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(true),
	)

	s.mcp.AddTool(mcp.NewTool("list_knowledge_bases",
		mcp.WithDescription(listToolDescription),
	), s.handleList)

	s.mcp.AddTool(mcp.NewTool("search_knowledge_base",
		mcp.WithDescription(searchToolDescription),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural-language search query"),
		),
		mcp.WithString("collection_name",
			mcp.Required(),
			mcp.Description("Knowledge base to search; one of the names from list_knowledge_bases"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results, 1 to 15"),
		),
		mcp.WithString("context_mode",
			mcp.Description(`"enhanced" stitches neighboring chunks around each hit; "chunk_only" returns the bare chunk`),
			mcp.Enum(string(search.ContextChunkOnly), string(search.ContextEnhanced)),
		),
	), s.handleSearch)

	return s
}

func (s *Server) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kbs := s.searcher.ListKnowledgeBases(ctx)
	if kbs == nil {
		kbs = []search.KnowledgeBase{}
	}
	return jsonResult(map[string]any{"knowledge_bases": kbs})
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return toolError(err), nil
	}
	collectionName, err := req.RequireString("collection_name")
	if err != nil {
		return toolError(err), nil
	}

	resp, err := s.searcher.Search(ctx, search.Request{
		Collection:  collectionName,
		Query:       query,
		MaxResults:  req.GetInt("max_results", 0),
		ContextMode: search.ContextMode(req.GetString("context_mode", string(search.ContextEnhanced))),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(resp)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio blocks serving MCP over stdin and stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("Serving MCP on stdio",
		"collections", len(s.reg.All()), "available", len(s.reg.Available()))
	return server.ServeStdio(s.mcp)
}

// Handler returns the HTTP surface: the MCP endpoint plus health and
// metrics.
func (s *Server) Handler() http.Handler {
	streamable := server.NewStreamableHTTPServer(s.mcp,
		server.WithEndpointPath("/mcp"),
	)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/mcp", streamable)
	r.Handle("/mcp/*", streamable)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.handleHealth)
	return r
}

// ServeHTTP blocks serving the HTTP surface until ctx is canceled, then
// shuts down gracefully.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Serving MCP over HTTP", "addr", addr, "endpoint", "/mcp",
			"collections", len(s.reg.All()), "available", len(s.reg.Available()))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"collections": len(s.reg.All()),
		"available":   len(s.reg.Available()),
	})
}
