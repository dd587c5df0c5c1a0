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

package chat

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/minerva/pkg/minerr"
)

// ToolInfo describes one tool offered by the MCP server.
type ToolInfo struct {
	Name        string
	Description string
}

// ToolCaller is the slice of an MCP client the chat loop needs.
type ToolCaller interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// mcpClient talks to a running minerva server over streamable HTTP.
type mcpClient struct {
	client *client.Client
}

// Connect dials the MCP server and completes the initialize handshake.
func Connect(ctx context.Context, serverURL, version string) (ToolCaller, error) {
	c, err := client.NewStreamableHttpClient(serverURL,
		transport.WithHTTPTimeout(60*time.Second),
	)
	if err != nil {
		return nil, minerr.Wrap(minerr.KindConfig, err, "cannot create MCP client for %s", serverURL)
	}

	if err := c.Start(ctx); err != nil {
		return nil, minerr.Wrap(minerr.KindProviderUnavailable, err, "cannot reach MCP server at %s", serverURL).
			WithSuggestion("start it with: minerva serve-http --config <server config>")
	}

	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: "minerva-chat", Version: version},
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, minerr.Wrap(minerr.KindProviderUnavailable, err, "MCP handshake with %s failed", serverURL)
	}

	return &mcpClient{client: c}, nil
}

func (m *mcpClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	res, err := m.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, minerr.Wrap(minerr.KindProvider, err, "cannot list MCP tools")
	}

	out := make([]ToolInfo, 0, len(res.Tools))
	for _, tool := range res.Tools {
		out = append(out, ToolInfo{Name: tool.Name, Description: tool.Description})
	}
	return out, nil
}

func (m *mcpClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	res, err := m.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		return "", minerr.Wrap(minerr.KindProvider, err, "tool %s failed", name)
	}

	var text string
	if len(res.Content) > 0 {
		if tc, ok := mcp.AsTextContent(res.Content[0]); ok {
			text = tc.Text
		}
	}
	// Tool-level failures come back as results so the model can react,
	// for example by lowering max_results.
	return text, nil
}

func (m *mcpClient) Close() error {
	return m.client.Close()
}
