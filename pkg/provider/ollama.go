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

	"github.com/kadirpekel/minerva/pkg/httpclient"
	"github.com/kadirpekel/minerva/pkg/minerr"
)

// ollamaEmbedBatchLimit keeps batches modest; the llama runner degrades
// with very large batch inputs.
const ollamaEmbedBatchLimit = 64

// ollamaProvider speaks Ollama's native API on a local server. No
// credentials are involved.
type ollamaProvider struct {
	cfg    Config
	client *httpclient.Client
	gate   *gate
}

func newOllama(cfg Config) *ollamaProvider {
	return &ollamaProvider{
		cfg:    cfg,
		client: httpclient.New(),
		gate:   newGate(cfg.RateLimit),
	}
}

func (p *ollamaProvider) Kind() Kind             { return Ollama }
func (p *ollamaProvider) EmbeddingModel() string { return p.cfg.EmbeddingModel }
func (p *ollamaProvider) Close() error           { return nil }

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *ollamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedBatches(ctx, Ollama, p.gate, texts, ollamaEmbedBatchLimit,
		func(ctx context.Context, batch []string) ([][]float32, error) {
			var resp ollamaEmbedResponse
			err := postJSON(ctx, p.client, p.cfg.BaseURL+"/api/embed", nil, ollamaEmbedRequest{
				Model: p.cfg.EmbeddingModel,
				Input: batch,
			}, &resp)
			if err != nil {
				return nil, err
			}
			if len(resp.Embeddings) == 0 {
				return nil, minerr.New(minerr.KindProvider, "ollama returned no embeddings for model %q", p.cfg.EmbeddingModel).
					WithSuggestion("pull the model first: ollama pull %s", p.cfg.EmbeddingModel)
			}
			return resp.Embeddings, nil
		})
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
}

func (p *ollamaProvider) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	model, err := chatModel(p.cfg)
	if err != nil {
		return "", err
	}

	if err := p.gate.acquire(ctx); err != nil {
		return "", err
	}
	defer p.gate.release()

	var resp ollamaChatResponse
	err = postJSON(ctx, p.client, p.cfg.BaseURL+"/api/chat", nil, ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{"temperature": temperature},
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func (p *ollamaProvider) Check(ctx context.Context) CheckResult {
	return check(ctx, p)
}
