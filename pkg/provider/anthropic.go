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

package provider

import (
	"context"

	"github.com/kadirpekel/minerva/pkg/credentials"
	"github.com/kadirpekel/minerva/pkg/httpclient"
	"github.com/kadirpekel/minerva/pkg/minerr"
)

const anthropicVersion = "2023-06-01"

// anthropicProvider speaks the Anthropic Messages API. Anthropic exposes
// no embedding endpoint, so this provider is chat-only and refuses
// indexing work.
type anthropicProvider struct {
	cfg    Config
	creds  *credentials.Store
	client *httpclient.Client
	gate   *gate
}

func newAnthropic(cfg Config, creds *credentials.Store) *anthropicProvider {
	return &anthropicProvider{
		cfg:    cfg,
		creds:  creds,
		client: httpclient.New(),
		gate:   newGate(cfg.RateLimit),
	}
}

func (p *anthropicProvider) Kind() Kind             { return Anthropic }
func (p *anthropicProvider) EmbeddingModel() string { return "" }
func (p *anthropicProvider) Close() error           { return nil }

func (p *anthropicProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, minerr.New(minerr.KindProvider, "anthropic is chat-only and cannot embed").
		WithSuggestion("use ollama, lmstudio, openai or gemini for indexing")
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *anthropicProvider) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	model, err := chatModel(p.cfg)
	if err != nil {
		return "", err
	}

	ref := p.cfg.APIKeyRef
	if ref == "" {
		ref = "${ANTHROPIC_API_KEY}"
	}
	key, err := p.creds.Resolve(ref)
	if err != nil {
		return "", err
	}

	// Anthropic carries the system prompt as a top-level field.
	var system string
	chat := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		chat = append(chat, m)
	}

	if err := p.gate.acquire(ctx); err != nil {
		return "", err
	}
	defer p.gate.release()

	var resp anthropicResponse
	err = postJSON(ctx, p.client, p.cfg.BaseURL+"/v1/messages", map[string]string{
		"x-api-key":         key,
		"anthropic-version": anthropicVersion,
	}, anthropicRequest{
		Model:       model,
		MaxTokens:   4096,
		System:      system,
		Messages:    chat,
		Temperature: temperature,
	}, &resp)
	if err != nil {
		return "", err
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", minerr.New(minerr.KindProvider, "anthropic returned no text content")
}

func (p *anthropicProvider) Check(ctx context.Context) CheckResult {
	return CheckResult{
		Available: false,
		Reason:    "anthropic is chat-only and cannot embed",
	}
}
