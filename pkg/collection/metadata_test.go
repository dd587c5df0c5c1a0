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

package collection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/minerva/pkg/provider"
)

func sampleMetadata() Metadata {
	return New("bread baking notes", provider.Config{
		Type:           provider.Ollama,
		EmbeddingModel: "nomic-embed-text",
		LLMModel:       "llama3",
		BaseURL:        "http://localhost:11434",
	}, 768, 1200)
}

func TestNew_Fields(t *testing.T) {
	m := sampleMetadata()

	assert.Equal(t, CurrentVersion, m.Version)
	assert.Equal(t, HashAlgorithm, m.NoteHashAlgorithm)
	assert.Equal(t, "ollama", m.EmbeddingProvider)
	assert.Equal(t, 768, m.EmbeddingDimension)
	assert.Equal(t, 1200, m.ChunkSize)
	assert.NotEmpty(t, m.CreatedAt)
	assert.Equal(t, m.CreatedAt, m.LastUpdated)
	assert.False(t, m.IsLegacy())
}

func TestRoundTripThroughJSON(t *testing.T) {
	m := sampleMetadata()
	m.EmbeddingAPIKeyRef = "${OLLAMA_KEY}"
	m.NoteCount = 42

	raw, err := m.ToMap()
	require.NoError(t, err)

	// Simulate the storage round-trip, which turns ints into float64s.
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(data, &stored))

	got, err := FromMap(stored)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestFromMap_Legacy(t *testing.T) {
	got, err := FromMap(map[string]any{
		"description": "a v1 collection",
		"note_count":  float64(7),
	})
	require.NoError(t, err)
	assert.True(t, got.IsLegacy())
	assert.Equal(t, 7, got.NoteCount)
}

func TestValidate_RejectsResolvedSecret(t *testing.T) {
	m := sampleMetadata()
	m.EmbeddingAPIKeyRef = "sk-actual-secret-value"
	require.Error(t, m.Validate())

	m.EmbeddingAPIKeyRef = "${OPENAI_API_KEY}"
	require.NoError(t, m.Validate())

	m.EmbeddingAPIKeyRef = ""
	require.NoError(t, m.Validate())
}

func TestValidate_RequiresDimension(t *testing.T) {
	m := sampleMetadata()
	m.EmbeddingDimension = 0
	assert.Error(t, m.Validate())
}

func TestProviderConfig_Reconstruction(t *testing.T) {
	m := sampleMetadata()
	m.EmbeddingAPIKeyRef = "${GEMINI_API_KEY}"

	cfg := m.ProviderConfig()
	assert.Equal(t, provider.Ollama, cfg.Type)
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
	assert.Equal(t, "llama3", cfg.LLMModel)
	assert.Equal(t, "http://localhost:11434", cfg.BaseURL)
	// The template travels untouched.
	assert.Equal(t, "${GEMINI_API_KEY}", cfg.APIKeyRef)
}

func TestTouch(t *testing.T) {
	m := sampleMetadata()
	created := m.CreatedAt

	m.Touch(99, "new description")
	assert.Equal(t, 99, m.NoteCount)
	assert.Equal(t, "new description", m.Description)
	assert.Equal(t, created, m.CreatedAt)

	m.Touch(100, "")
	assert.Equal(t, "new description", m.Description, "empty description must not overwrite")
}
