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

// Package chat drives a conversation between a chat model and a running
// minerva MCP server.
//
// The model is taught, through the system prompt, to request tools by
// replying with a single JSON object. The session executes the call,
// feeds the result back, and repeats up to a configured iteration cap.
// This keeps the loop independent of provider-native tool calling, which
// not every backend offers.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/minerva/pkg/minerr"
	"github.com/kadirpekel/minerva/pkg/provider"
)

// historyTokenBudget bounds how much transcript is replayed to the model.
const historyTokenBudget = 24000

const systemPromptTemplate = `You are a research assistant with access to the user's personal knowledge bases.

Available tools:
%s

To call a tool, reply with ONLY a JSON object on a single line:
{"tool": "<name>", "arguments": {...}}

Rules:
- Call list_knowledge_bases before your first search to see what exists.
- Cite the noteTitle of every result you use in your answer.
- If a tool result is too large, retry with a smaller max_results.
- When you have enough information, answer the user directly in plain text.`

// Session is one chat conversation bound to a provider and an MCP server.
type Session struct {
	provider      provider.Provider
	tools         ToolCaller
	conv          *Conversation
	counter       *TokenCounter
	maxIterations int
	logger        *slog.Logger

	systemPrompt string
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithConversation attaches a transcript, for persistence or resumption.
func WithConversation(c *Conversation) SessionOption {
	return func(s *Session) { s.conv = c }
}

// WithMaxToolIterations caps tool calls per user turn.
func WithMaxToolIterations(n int) SessionOption {
	return func(s *Session) { s.maxIterations = n }
}

// WithSessionLogger replaces the default logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession builds a session. The tool list is fetched once and baked
// into the system prompt.
func NewSession(ctx context.Context, p provider.Provider, tools ToolCaller, model string, opts ...SessionOption) (*Session, error) {
	s := &Session{
		provider:      p,
		tools:         tools,
		maxIterations: 10,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.conv == nil {
		s.conv = NewConversation("")
	}

	counter, err := NewTokenCounter(model)
	if err != nil {
		return nil, err
	}
	s.counter = counter

	available, err := tools.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, t := range available {
		lines = append(lines, fmt.Sprintf("- %s: %s", t.Name, t.Description))
	}
	s.systemPrompt = fmt.Sprintf(systemPromptTemplate, strings.Join(lines, "\n"))
	return s, nil
}

// Conversation returns the transcript.
func (s *Session) Conversation() *Conversation {
	return s.conv
}

// toolCall is the JSON shape the model uses to request a tool.
type toolCall struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Ask sends one user turn and drives tool calls until the model produces
// a plain-text answer.
func (s *Session) Ask(ctx context.Context, userText string) (string, error) {
	s.conv.Append("user", userText)

	for i := 0; i < s.maxIterations; i++ {
		reply, err := s.provider.Complete(ctx, s.window(), 0.7)
		if err != nil {
			return "", err
		}

		call, ok := parseToolCall(reply)
		if !ok {
			s.conv.Append("assistant", reply)
			if err := s.conv.Save(); err != nil {
				s.logger.Warn("Cannot persist conversation", "error", err)
			}
			return reply, nil
		}

		s.logger.Debug("Tool call", "tool", call.Tool)
		s.conv.Append("assistant", reply)

		result, err := s.tools.CallTool(ctx, call.Tool, call.Arguments)
		if err != nil {
			return "", err
		}
		s.conv.Append("user", fmt.Sprintf("Result of %s:\n%s", call.Tool, result))
	}

	return "", minerr.New(minerr.KindProvider,
		"model did not answer within %d tool iterations", s.maxIterations).
		WithSuggestion("raise max_tool_iterations or ask a narrower question")
}

// window builds the message list for the next completion, trimming old
// turns to the token budget.
func (s *Session) window() []provider.Message {
	history := s.counter.FitWithinLimit(s.conv.Messages, historyTokenBudget)
	msgs := make([]provider.Message, 0, len(history)+1)
	msgs = append(msgs, provider.Message{Role: "system", Content: s.systemPrompt})
	return append(msgs, history...)
}

// parseToolCall recognizes a reply that is a single tool invocation.
// Anything else, including JSON missing the tool field, is a final answer.
func parseToolCall(reply string) (toolCall, bool) {
	trimmed := strings.TrimSpace(reply)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if !strings.HasPrefix(trimmed, "{") {
		return toolCall{}, false
	}

	var call toolCall
	if err := json.Unmarshal([]byte(trimmed), &call); err != nil || call.Tool == "" {
		return toolCall{}, false
	}
	return call, true
}
