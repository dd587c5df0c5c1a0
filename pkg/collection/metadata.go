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

// Package collection defines the metadata schema carried by every
// collection in the vector store.
//
// Metadata is the single source of truth for what embedding a collection
// speaks. It stores the ${NAME} credential reference, never a resolved
// secret, so a collection can be rehydrated into a working provider on any
// machine that has the credential.
package collection

import (
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/minerva/pkg/credentials"
	"github.com/kadirpekel/minerva/pkg/minerr"
	"github.com/kadirpekel/minerva/pkg/provider"
)

// CurrentVersion marks collections written by this metadata schema.
// Collections without a version are legacy and must be re-created.
const CurrentVersion = "2.0"

// HashAlgorithm names the note content-hash function.
const HashAlgorithm = "sha256"

// Metadata describes one collection.
type Metadata struct {
	Version            string `mapstructure:"version"`
	Description        string `mapstructure:"description"`
	NoteCount          int    `mapstructure:"note_count"`
	CreatedAt          string `mapstructure:"created_at"`
	LastUpdated        string `mapstructure:"last_updated"`
	NoteHashAlgorithm  string `mapstructure:"note_hash_algorithm"`
	EmbeddingProvider  string `mapstructure:"embedding_provider"`
	EmbeddingModel     string `mapstructure:"embedding_model"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension"`
	EmbeddingBaseURL   string `mapstructure:"embedding_base_url,omitempty"`
	EmbeddingAPIKeyRef string `mapstructure:"embedding_api_key,omitempty"`
	LLMModel           string `mapstructure:"llm_model,omitempty"`
	ChunkSize          int    `mapstructure:"chunk_size"`
}

// New assembles fresh metadata for a collection being created now.
func New(description string, cfg provider.Config, dimension, chunkSize int) Metadata {
	now := time.Now().UTC().Format(time.RFC3339)
	return Metadata{
		Version:            CurrentVersion,
		Description:        description,
		CreatedAt:          now,
		LastUpdated:        now,
		NoteHashAlgorithm:  HashAlgorithm,
		EmbeddingProvider:  string(cfg.Type),
		EmbeddingModel:     cfg.EmbeddingModel,
		EmbeddingDimension: dimension,
		EmbeddingBaseURL:   cfg.BaseURL,
		EmbeddingAPIKeyRef: cfg.APIKeyRef,
		LLMModel:           cfg.LLMModel,
		ChunkSize:          chunkSize,
	}
}

// IsLegacy reports whether the metadata predates the versioned schema.
func (m Metadata) IsLegacy() bool {
	return m.Version == ""
}

// Validate rejects metadata that must never reach the store.
func (m Metadata) Validate() error {
	if m.EmbeddingAPIKeyRef != "" && !credentials.IsTemplate(m.EmbeddingAPIKeyRef) {
		return minerr.New(minerr.KindInternal,
			"collection metadata may only carry a ${NAME} credential template, not a secret").
			WithField("embedding_api_key")
	}
	if m.EmbeddingDimension <= 0 {
		return minerr.New(minerr.KindInternal,
			"collection metadata requires a positive embedding dimension, got %d", m.EmbeddingDimension).
			WithField("embedding_dimension")
	}
	return nil
}

// ProviderConfig reconstructs the provider description this collection was
// indexed with. The ${NAME} reference is copied as-is; resolution happens
// at request time.
func (m Metadata) ProviderConfig() provider.Config {
	return provider.Config{
		Type:           provider.Kind(m.EmbeddingProvider),
		EmbeddingModel: m.EmbeddingModel,
		LLMModel:       m.LLMModel,
		BaseURL:        m.EmbeddingBaseURL,
		APIKeyRef:      m.EmbeddingAPIKeyRef,
	}
}

// ToMap flattens the metadata for storage.
func (m Metadata) ToMap() (map[string]any, error) {
	out := map[string]any{}
	if err := mapstructure.Decode(m, &out); err != nil {
		return nil, minerr.Wrap(minerr.KindInternal, err, "cannot encode collection metadata")
	}
	return out, nil
}

// FromMap rebuilds metadata from its stored form. Numeric fields survive
// the JSON float64 round-trip.
func FromMap(raw map[string]any) (Metadata, error) {
	var m Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &m,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Metadata{}, minerr.Wrap(minerr.KindInternal, err, "cannot build metadata decoder")
	}
	if err := dec.Decode(raw); err != nil {
		return Metadata{}, minerr.Wrap(minerr.KindStorage, err, "collection metadata is corrupt")
	}
	return m, nil
}

// Touch updates the mutable fields after an incremental index run.
func (m *Metadata) Touch(noteCount int, description string) {
	m.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	m.NoteCount = noteCount
	if description != "" {
		m.Description = description
	}
}
