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

// Package provider abstracts the AI backends used for embeddings and chat.
//
// Five backends are supported: ollama and lmstudio speak to local servers
// over HTTP without credentials; openai, gemini and anthropic are cloud
// APIs behind an API key. Anthropic is chat-only and cannot serve
// indexing.
//
// All embedding output is L2-normalized so the store can treat cosine
// similarity as an inner product.
package provider

import (
	"context"
	"errors"
	"math"

	"github.com/kadirpekel/minerva/pkg/credentials"
	"github.com/kadirpekel/minerva/pkg/metrics"
	"github.com/kadirpekel/minerva/pkg/minerr"
)

// Kind identifies a provider backend.
type Kind string

const (
	Ollama    Kind = "ollama"
	LMStudio  Kind = "lmstudio"
	OpenAI    Kind = "openai"
	Gemini    Kind = "gemini"
	Anthropic Kind = "anthropic"
)

// Kinds lists every supported backend.
func Kinds() []Kind {
	return []Kind{Ollama, LMStudio, OpenAI, Gemini, Anthropic}
}

// probeText is embedded once by Check to learn availability and dimension.
const probeText = "probe"

// RateLimit bounds outbound traffic to a provider.
type RateLimit struct {
	RequestsPerMinute int `json:"requests_per_minute,omitempty"`
	Concurrency       int `json:"concurrency,omitempty"`
}

// Config describes one AI backend.
//
// APIKeyRef holds the ${NAME} template, never a resolved secret; the
// secret is resolved immediately before each network call.
type Config struct {
	Type           Kind       `json:"type"`
	EmbeddingModel string     `json:"embedding_model,omitempty"`
	LLMModel       string     `json:"llm_model,omitempty"`
	BaseURL        string     `json:"base_url,omitempty"`
	APIKeyRef      string     `json:"api_key,omitempty"`
	RateLimit      *RateLimit `json:"rate_limit,omitempty"`
}

// SetDefaults fills in the per-backend base URL and embedding model.
func (c *Config) SetDefaults() {
	switch c.Type {
	case Ollama:
		if c.BaseURL == "" {
			c.BaseURL = "http://localhost:11434"
		}
		if c.EmbeddingModel == "" {
			c.EmbeddingModel = "nomic-embed-text"
		}
	case LMStudio:
		if c.BaseURL == "" {
			c.BaseURL = "http://localhost:1234/v1"
		}
	case OpenAI:
		if c.BaseURL == "" {
			c.BaseURL = "https://api.openai.com/v1"
		}
		if c.EmbeddingModel == "" {
			c.EmbeddingModel = "text-embedding-3-small"
		}
	case Anthropic:
		if c.BaseURL == "" {
			c.BaseURL = "https://api.anthropic.com"
		}
	}
}

// Validate rejects unknown backends.
func (c *Config) Validate() error {
	switch c.Type {
	case Ollama, LMStudio, OpenAI, Gemini, Anthropic:
		return nil
	default:
		return minerr.New(minerr.KindConfig, "unknown provider type %q", c.Type).
			WithField("provider.type").
			WithSuggestion("use one of: ollama, lmstudio, openai, gemini, anthropic")
	}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CheckResult reports provider availability.
type CheckResult struct {
	Available bool
	Reason    string
	Dimension int
}

// Provider is one AI backend.
type Provider interface {
	// Kind returns the backend identifier.
	Kind() Kind

	// EmbeddingModel returns the configured embedding model name.
	EmbeddingModel() string

	// Embed returns one L2-normalized vector per input text, in input
	// order. Large inputs are batched internally.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Complete runs a chat completion and returns the assistant message.
	Complete(ctx context.Context, messages []Message, temperature float64) (string, error)

	// Check probes the backend by embedding a short literal and reports
	// availability and the embedding dimension.
	Check(ctx context.Context) CheckResult

	// Close releases resources.
	Close() error
}

// New constructs a provider from configuration. Credentials stay
// unresolved until a call needs them.
func New(cfg Config, creds *credentials.Store) (Provider, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if creds == nil {
		creds = credentials.NewStore()
	}

	switch cfg.Type {
	case Ollama:
		return newOllama(cfg), nil
	case LMStudio, OpenAI:
		return newOpenAICompat(cfg, creds), nil
	case Gemini:
		return newGemini(cfg, creds), nil
	case Anthropic:
		return newAnthropic(cfg, creds), nil
	default:
		return nil, minerr.New(minerr.KindConfig, "unknown provider type %q", cfg.Type)
	}
}

// check implements the shared availability probe on top of Embed.
func check(ctx context.Context, p Provider) CheckResult {
	vecs, err := p.Embed(ctx, []string{probeText})
	if err != nil {
		return CheckResult{Available: false, Reason: unavailableReason(err)}
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return CheckResult{Available: false, Reason: "provider returned an empty embedding"}
	}
	return CheckResult{Available: true, Dimension: len(vecs[0])}
}

// unavailableReason flattens a probe failure into a short operator-facing
// string.
func unavailableReason(err error) string {
	var me *minerr.Error
	if errors.As(err, &me) && me.Kind == minerr.KindCredentialMissing && me.Field != "" {
		return "missing env var " + me.Field
	}
	return err.Error()
}

// embedBatches runs fn over texts in batches of at most batchSize through
// the rate gate, preserving order and normalizing every vector.
func embedBatches(ctx context.Context, kind Kind, g *gate, texts []string, batchSize int,
	fn func(ctx context.Context, batch []string) ([][]float32, error)) ([][]float32, error) {

	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		if err := g.acquire(ctx); err != nil {
			return nil, err
		}
		vecs, err := fn(ctx, batch)
		g.release()

		if err != nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues(string(kind), "error").Inc()
			return nil, err
		}
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(kind), "ok").Inc()
		metrics.EmbeddingTexts.WithLabelValues(string(kind)).Add(float64(len(batch)))

		if len(vecs) != len(batch) {
			return nil, minerr.New(minerr.KindProvider,
				"provider %s returned %d embeddings for %d inputs", kind, len(vecs), len(batch))
		}
		for _, v := range vecs {
			out = append(out, normalize(v))
		}
	}
	return out, nil
}

// normalize returns the L2-normalized copy of v. Zero vectors pass
// through unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
