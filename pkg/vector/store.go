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

// Package vector provides the persistent vector store used for chunk
// embeddings.
//
// The Store contract is satisfiable by any persistent ANN engine that
// supports per-collection metadata and cosine distance. The shipped
// implementation embeds chromem-go, so a plain directory on disk is the
// whole database.
package vector

import "context"

// UpsertBatchSize is the default number of documents written per batch.
const UpsertBatchSize = 64

// Document is one embedded chunk as stored.
type Document struct {
	ID        string
	Embedding []float32
	Content   string
	Metadata  map[string]string
}

// Result is one query hit.
//
// Distance is cosine distance: 0 is identical, higher is farther.
type Result struct {
	ID       string
	Content  string
	Metadata map[string]string
	Distance float32
}

// NoteState summarizes what the store holds for one note.
type NoteState struct {
	ContentHash string   `json:"contentHash"`
	ChunkIDs    []string `json:"chunkIds"`
}

// CollectionInfo pairs a collection name with its metadata.
type CollectionInfo struct {
	Name     string
	Metadata map[string]any
}

// Store manages named collections of embedded chunks.
type Store interface {
	// CreateCollection creates a collection with the given metadata.
	CreateCollection(ctx context.Context, name string, metadata map[string]any) (Collection, error)

	// GetCollection returns an existing collection, or a
	// minerr.KindCollectionNotFound error.
	GetCollection(ctx context.Context, name string) (Collection, error)

	// DeleteCollection removes a collection and everything in it.
	// Deleting a collection that does not exist is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// ListCollections enumerates all collections with their metadata.
	ListCollections(ctx context.Context) ([]CollectionInfo, error)

	// Close flushes any pending state to disk.
	Close() error
}

// Collection is a handle to one named collection.
type Collection interface {
	Name() string

	// Metadata returns a copy of the collection metadata.
	Metadata() map[string]any

	// UpdateMetadata replaces the collection metadata.
	UpdateMetadata(ctx context.Context, metadata map[string]any) error

	// Upsert writes documents in batches, idempotent on ID.
	Upsert(ctx context.Context, docs []Document) error

	// DeleteByNoteIDs removes every chunk belonging to the given notes.
	DeleteByNoteIDs(ctx context.Context, noteIDs []string) error

	// Query returns the k nearest documents by cosine distance, optionally
	// restricted by an exact-match metadata filter. k is clamped to the
	// number of stored documents.
	Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]Result, error)

	// GetByID fetches one document. A missing ID yields (nil, nil).
	GetByID(ctx context.Context, id string) (*Result, error)

	// NoteStates returns the per-note content hashes and chunk IDs,
	// keyed by note ID.
	NoteStates(ctx context.Context) (map[string]NoteState, error)

	// Count returns the number of stored documents.
	Count() int
}
