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
	"sort"

	"github.com/kadirpekel/minerva/pkg/credentials"
	"github.com/kadirpekel/minerva/pkg/httpclient"
	"github.com/kadirpekel/minerva/pkg/minerr"
)

const openAIEmbedBatchLimit = 128

// openAICompat speaks the OpenAI wire format. It backs both the openai
// cloud provider and LM Studio, whose local server is OpenAI-compatible
// and needs no key.
type openAICompat struct {
	cfg    Config
	kind   Kind
	creds  *credentials.Store
	client *httpclient.Client
	gate   *gate
}

func newOpenAICompat(cfg Config, creds *credentials.Store) *openAICompat {
	return &openAICompat{
		cfg:    cfg,
		kind:   cfg.Type,
		creds:  creds,
		client: httpclient.New(),
		gate:   newGate(cfg.RateLimit),
	}
}

func (p *openAICompat) Kind() Kind             { return p.kind }
func (p *openAICompat) EmbeddingModel() string { return p.cfg.EmbeddingModel }
func (p *openAICompat) Close() error           { return nil }

// authHeaders resolves the API key reference just before the call. The
// resolved secret lives only in the returned header map.
func (p *openAICompat) authHeaders() (map[string]string, error) {
	if p.cfg.APIKeyRef == "" {
		return nil, nil
	}
	key, err := p.creds.Resolve(p.cfg.APIKeyRef)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + key}, nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *openAICompat) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.cfg.EmbeddingModel == "" {
		return nil, minerr.New(minerr.KindConfig, "provider %s has no embedding_model configured", p.kind).
			WithField("provider.embedding_model")
	}

	return embedBatches(ctx, p.kind, p.gate, texts, openAIEmbedBatchLimit,
		func(ctx context.Context, batch []string) ([][]float32, error) {
			headers, err := p.authHeaders()
			if err != nil {
				return nil, err
			}

			var resp openAIEmbedResponse
			err = postJSON(ctx, p.client, p.cfg.BaseURL+"/embeddings", headers, openAIEmbedRequest{
				Model: p.cfg.EmbeddingModel,
				Input: batch,
			}, &resp)
			if err != nil {
				return nil, err
			}

			sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
			out := make([][]float32, 0, len(resp.Data))
			for _, d := range resp.Data {
				out = append(out, d.Embedding)
			}
			return out, nil
		})
}

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (p *openAICompat) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	model, err := chatModel(p.cfg)
	if err != nil {
		return "", err
	}
	headers, err := p.authHeaders()
	if err != nil {
		return "", err
	}

	if err := p.gate.acquire(ctx); err != nil {
		return "", err
	}
	defer p.gate.release()

	var resp openAIChatResponse
	err = postJSON(ctx, p.client, p.cfg.BaseURL+"/chat/completions", headers, openAIChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", minerr.New(minerr.KindProvider, "%s returned no completion choices", p.kind)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *openAICompat) Check(ctx context.Context) CheckResult {
	return check(ctx, p)
}
