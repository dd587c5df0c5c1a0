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
	"sync"

	"google.golang.org/genai"

	"github.com/kadirpekel/minerva/pkg/credentials"
	"github.com/kadirpekel/minerva/pkg/minerr"
)

const geminiEmbedBatchLimit = 100

// geminiProvider wraps the official Gemini SDK. The client is created on
// first use so the API key resolves only when a call actually needs it.
type geminiProvider struct {
	cfg   Config
	creds *credentials.Store
	gate  *gate

	mu     sync.Mutex
	client *genai.Client
}

func newGemini(cfg Config, creds *credentials.Store) *geminiProvider {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-004"
	}
	return &geminiProvider{
		cfg:   cfg,
		creds: creds,
		gate:  newGate(cfg.RateLimit),
	}
}

func (p *geminiProvider) Kind() Kind             { return Gemini }
func (p *geminiProvider) EmbeddingModel() string { return p.cfg.EmbeddingModel }
func (p *geminiProvider) Close() error           { return nil }

func (p *geminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	ref := p.cfg.APIKeyRef
	if ref == "" {
		ref = "${GEMINI_API_KEY}"
	}
	key, err := p.creds.Resolve(ref)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key})
	if err != nil {
		return nil, minerr.Wrap(minerr.KindProviderUnavailable, err, "cannot create Gemini client")
	}
	p.client = client
	return client, nil
}

func (p *geminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	return embedBatches(ctx, Gemini, p.gate, texts, geminiEmbedBatchLimit,
		func(ctx context.Context, batch []string) ([][]float32, error) {
			contents := make([]*genai.Content, 0, len(batch))
			for _, text := range batch {
				contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
			}

			resp, err := client.Models.EmbedContent(ctx, p.cfg.EmbeddingModel, contents, nil)
			if err != nil {
				return nil, minerr.Wrap(minerr.KindProvider, err, "Gemini embedding failed")
			}

			out := make([][]float32, 0, len(resp.Embeddings))
			for _, e := range resp.Embeddings {
				out = append(out, e.Values)
			}
			return out, nil
		})
}

func (p *geminiProvider) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	model, err := chatModel(p.cfg)
	if err != nil {
		return "", err
	}
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	var system *genai.Content
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	if err := p.gate.acquire(ctx); err != nil {
		return "", err
	}
	defer p.gate.release()

	resp, err := client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(temperature)),
		SystemInstruction: system,
	})
	if err != nil {
		return "", minerr.Wrap(minerr.KindProvider, err, "Gemini generation failed")
	}
	return resp.Text(), nil
}

func (p *geminiProvider) Check(ctx context.Context) CheckResult {
	return check(ctx, p)
}
