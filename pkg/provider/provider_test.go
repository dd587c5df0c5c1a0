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
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/minerva/pkg/credentials"
	"github.com/kadirpekel/minerva/pkg/httpclient"
	"github.com/kadirpekel/minerva/pkg/minerr"
)

func testCreds(env map[string]string) *credentials.Store {
	return credentials.NewStore(credentials.WithGetenv(func(name string) string {
		return env[name]
	}))
}

func newProvider(t *testing.T, cfg Config, env map[string]string) Provider {
	t.Helper()
	p, err := New(cfg, testCreds(env))
	require.NoError(t, err)
	return p
}

func vecLen(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestOllamaEmbed_NormalizedInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		embeddings := make([][]float32, len(req.Input))
		for i := range req.Input {
			embeddings[i] = []float32{float32(i + 1), 0, 4}
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: embeddings})
	}))
	defer srv.Close()

	p := newProvider(t, Config{Type: Ollama, BaseURL: srv.URL}, nil)
	vecs, err := p.Embed(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	for i, v := range vecs {
		assert.InDelta(t, 1.0, vecLen(v), 1e-5, "vector %d is not unit length", i)
	}
	// Order preserved: first input embeds to direction (1,0,4), second (2,0,4).
	assert.Greater(t, vecs[1][0], vecs[0][0])
}

func TestOllamaEmbed_Batching(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len(req.Input), ollamaEmbedBatchLimit)

		embeddings := make([][]float32, len(req.Input))
		for i := range req.Input {
			embeddings[i] = []float32{1, 2, 3}
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: embeddings})
	}))
	defer srv.Close()

	texts := make([]string, ollamaEmbedBatchLimit+10)
	for i := range texts {
		texts[i] = "text"
	}

	p := newProvider(t, Config{Type: Ollama, BaseURL: srv.URL}, nil)
	vecs, err := p.Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vecs, len(texts))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: Message{Role: "assistant", Content: "hello back"},
		})
	}))
	defer srv.Close()

	p := newProvider(t, Config{Type: Ollama, BaseURL: srv.URL, LLMModel: "llama3"}, nil)
	out, err := p.Complete(context.Background(), []Message{{Role: "user", Content: "hello"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)
}

func TestOpenAIEmbed_AuthAndReordering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		// Deliberately out of order; the client must sort by index.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0, 1, 0}},
				{"index": 0, "embedding": []float32{1, 0, 0}},
			},
		})
	}))
	defer srv.Close()

	p := newProvider(t, Config{
		Type:           OpenAI,
		BaseURL:        srv.URL,
		EmbeddingModel: "text-embedding-3-small",
		APIKeyRef:      "${OPENAI_API_KEY}",
	}, map[string]string{"OPENAI_API_KEY": "sk-test"})

	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 1.0, float64(vecs[0][0]), 1e-5)
	assert.InDelta(t, 1.0, float64(vecs[1][1]), 1e-5)
}

func TestOpenAIEmbed_MissingCredential(t *testing.T) {
	p := newProvider(t, Config{
		Type:      OpenAI,
		APIKeyRef: "${MISSING_TEST_KEY}",
	}, nil)

	_, err := p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, minerr.Is(err, minerr.KindCredentialMissing))

	res := p.Check(context.Background())
	assert.False(t, res.Available)
	assert.Equal(t, "missing env var MISSING_TEST_KEY", res.Reason)
}

func TestLMStudio_NoKeyRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1, 1}}},
		})
	}))
	defer srv.Close()

	p := newProvider(t, Config{
		Type:           LMStudio,
		BaseURL:        srv.URL,
		EmbeddingModel: "nomic-embed-text-v1.5",
	}, nil)

	vecs, err := p.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
}

func TestCheck_ProbesWithLiteral(t *testing.T) {
	var gotInput []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotInput = req.Input
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 2, 3, 4}}})
	}))
	defer srv.Close()

	p := newProvider(t, Config{Type: Ollama, BaseURL: srv.URL}, nil)
	res := p.Check(context.Background())

	assert.True(t, res.Available)
	assert.Equal(t, 4, res.Dimension)
	assert.Equal(t, []string{"probe"}, gotInput)
}

func TestCheck_Unreachable(t *testing.T) {
	cfg := Config{Type: Ollama, BaseURL: "http://127.0.0.1:1"}
	cfg.SetDefaults()
	p := newOllama(cfg)
	p.client = httpclient.New(httpclient.WithMaxRetries(0))

	res := p.Check(context.Background())

	assert.False(t, res.Available)
	assert.Contains(t, res.Reason, "cannot reach")
}

func TestAnthropic_CannotEmbed(t *testing.T) {
	p := newProvider(t, Config{Type: Anthropic, LLMModel: "claude-sonnet-4-5"}, nil)

	_, err := p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, minerr.Is(err, minerr.KindProvider))

	res := p.Check(context.Background())
	assert.False(t, res.Available)
	assert.Contains(t, res.Reason, "chat-only")
}

func TestAnthropic_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be brief", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "done"}},
		})
	}))
	defer srv.Close()

	p := newProvider(t, Config{
		Type:      Anthropic,
		BaseURL:   srv.URL,
		LLMModel:  "claude-sonnet-4-5",
		APIKeyRef: "${ANTHROPIC_API_KEY}",
	}, map[string]string{"ANTHROPIC_API_KEY": "key-123"})

	out, err := p.Complete(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(Config{Type: "cohere"}, nil)
	require.Error(t, err)
	assert.True(t, minerr.Is(err, minerr.KindConfig))
}

func TestEmbed_CountMismatchSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 2}}})
	}))
	defer srv.Close()

	p := newProvider(t, Config{Type: Ollama, BaseURL: srv.URL}, nil)
	_, err := p.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, minerr.Is(err, minerr.KindProvider))
}
