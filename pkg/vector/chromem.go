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

package vector

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/kadirpekel/minerva/pkg/minerr"
)

// ChromemStore implements Store using chromem-go for embedded persistent
// vector storage.
//
// This requires no external services: vectors live in memory and persist
// to a directory on disk. Cosine similarity search and exact-match metadata
// filtering come from chromem; collection metadata and per-note state are
// kept in JSON sidecar files next to the vector data, because chromem
// neither exposes collection metadata for reading nor supports scanning
// documents.
//
// Layout under the root directory:
//
//	chromem/            vector data, managed by chromem-go
//	collections.json    collection name to metadata
//	state/<name>.json   note ID to {contentHash, chunkIds}
type ChromemStore struct {
	root string
	db   *chromem.DB

	mu    sync.RWMutex
	meta  map[string]map[string]any
	state map[string]map[string]NoteState

	embeddingFunc chromem.EmbeddingFunc
}

// NewChromemStore opens (or creates) the store rooted at dir.
func NewChromemStore(dir string) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(filepath.Join(dir, "chromem"), true)
	if err != nil {
		return nil, minerr.Wrap(minerr.KindStorage, err, "cannot open vector database at %s", dir)
	}

	s := &ChromemStore{
		root:  dir,
		db:    db,
		meta:  map[string]map[string]any{},
		state: map[string]map[string]NoteState{},
		// Embeddings are computed externally; the store must never be
		// asked to embed on its own.
		embeddingFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, fmt.Errorf("embedding requested from the store; vectors must be pre-computed")
		},
	}

	if err := readJSONFile(s.metaPath(), &s.meta); err != nil {
		return nil, minerr.Wrap(minerr.KindStorage, err, "cannot read collection metadata at %s", s.metaPath())
	}
	return s, nil
}

func (s *ChromemStore) metaPath() string {
	return filepath.Join(s.root, "collections.json")
}

func (s *ChromemStore) statePath(name string) string {
	return filepath.Join(s.root, "state", name+".json")
}

// CreateCollection creates a collection with the given metadata.
func (s *ChromemStore) CreateCollection(ctx context.Context, name string, metadata map[string]any) (Collection, error) {
	col, err := s.db.CreateCollection(name, nil, s.embeddingFunc)
	if err != nil {
		return nil, minerr.Wrap(minerr.KindStorage, err, "cannot create collection %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[name] = copyMeta(metadata)
	s.state[name] = map[string]NoteState{}
	if err := s.persistMetaLocked(); err != nil {
		return nil, err
	}
	if err := s.persistStateLocked(name); err != nil {
		return nil, err
	}
	return &chromemCollection{store: s, name: name, col: col}, nil
}

// GetCollection returns an existing collection.
func (s *ChromemStore) GetCollection(ctx context.Context, name string) (Collection, error) {
	s.mu.RLock()
	_, known := s.meta[name]
	s.mu.RUnlock()

	col := s.db.GetCollection(name, s.embeddingFunc)
	if col == nil || !known {
		return nil, minerr.New(minerr.KindCollectionNotFound, "collection %q does not exist", name).
			WithField(name)
	}
	if err := s.loadState(name); err != nil {
		return nil, err
	}
	return &chromemCollection{store: s, name: name, col: col}, nil
}

// DeleteCollection removes a collection, its vectors and its sidecars.
func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) error {
	if err := s.db.DeleteCollection(name); err != nil {
		return minerr.Wrap(minerr.KindStorage, err, "cannot delete collection %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.meta, name)
	delete(s.state, name)
	if err := removeFile(s.statePath(name)); err != nil {
		return minerr.Wrap(minerr.KindStorage, err, "cannot remove state for collection %q", name)
	}
	return s.persistMetaLocked()
}

// ListCollections enumerates collections known to the metadata sidecar.
func (s *ChromemStore) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CollectionInfo, 0, len(s.meta))
	for name, md := range s.meta {
		out = append(out, CollectionInfo{Name: name, Metadata: copyMeta(md)})
	}
	return out, nil
}

// Close flushes sidecar state. Vector data persists continuously.
func (s *ChromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistMetaLocked(); err != nil {
		return err
	}
	for name := range s.state {
		if err := s.persistStateLocked(name); err != nil {
			return err
		}
	}
	return nil
}

// loadState lazily reads the note-state sidecar for a collection.
func (s *ChromemStore) loadState(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state[name]; ok {
		return nil
	}
	st := map[string]NoteState{}
	if err := readJSONFile(s.statePath(name), &st); err != nil {
		return minerr.Wrap(minerr.KindStorage, err, "cannot read note state for collection %q", name)
	}
	s.state[name] = st
	return nil
}

func (s *ChromemStore) persistMetaLocked() error {
	if err := writeJSONFile(s.metaPath(), s.meta); err != nil {
		return minerr.Wrap(minerr.KindStorage, err, "cannot persist collection metadata")
	}
	return nil
}

func (s *ChromemStore) persistStateLocked(name string) error {
	if err := writeJSONFile(s.statePath(name), s.state[name]); err != nil {
		return minerr.Wrap(minerr.KindStorage, err, "cannot persist note state for collection %q", name)
	}
	return nil
}

// chromemCollection is a Collection handle backed by chromem.
type chromemCollection struct {
	store *ChromemStore
	name  string
	col   *chromem.Collection
}

func (c *chromemCollection) Name() string {
	return c.name
}

func (c *chromemCollection) Metadata() map[string]any {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return copyMeta(c.store.meta[c.name])
}

func (c *chromemCollection) UpdateMetadata(ctx context.Context, metadata map[string]any) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.meta[c.name] = copyMeta(metadata)
	return c.store.persistMetaLocked()
}

func (c *chromemCollection) Upsert(ctx context.Context, docs []Document) error {
	for start := 0; start < len(docs); start += UpsertBatchSize {
		end := start + UpsertBatchSize
		if end > len(docs) {
			end = len(docs)
		}

		batch := make([]chromem.Document, 0, end-start)
		for _, d := range docs[start:end] {
			batch = append(batch, chromem.Document{
				ID:        d.ID,
				Content:   d.Content,
				Metadata:  d.Metadata,
				Embedding: d.Embedding,
			})
		}
		if err := c.col.AddDocuments(ctx, batch, runtime.NumCPU()); err != nil {
			return minerr.Wrap(minerr.KindStorage, err, "upsert failed for collection %q", c.name)
		}
	}
	return c.recordUpsert(docs)
}

// recordUpsert folds the written documents into the note-state sidecar.
func (c *chromemCollection) recordUpsert(docs []Document) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	states := c.store.state[c.name]
	if states == nil {
		states = map[string]NoteState{}
		c.store.state[c.name] = states
	}

	for _, d := range docs {
		noteID := d.Metadata["noteId"]
		if noteID == "" {
			continue
		}
		st := states[noteID]
		if hash := d.Metadata["contentHash"]; hash != "" {
			st.ContentHash = hash
		}
		if !containsString(st.ChunkIDs, d.ID) {
			st.ChunkIDs = append(st.ChunkIDs, d.ID)
		}
		states[noteID] = st
	}
	return c.store.persistStateLocked(c.name)
}

func (c *chromemCollection) DeleteByNoteIDs(ctx context.Context, noteIDs []string) error {
	for _, noteID := range noteIDs {
		if err := c.col.Delete(ctx, map[string]string{"noteId": noteID}, nil); err != nil {
			return minerr.Wrap(minerr.KindStorage, err,
				"cannot delete chunks of note %s from collection %q", noteID, c.name)
		}
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	states := c.store.state[c.name]
	for _, noteID := range noteIDs {
		delete(states, noteID)
	}
	return c.store.persistStateLocked(c.name)
}

func (c *chromemCollection) Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]Result, error) {
	// chromem rejects k larger than the number of stored documents.
	if count := c.col.Count(); k > count {
		k = count
	}
	if k <= 0 {
		return nil, nil
	}

	hits, err := c.col.QueryEmbedding(ctx, embedding, k, filter, nil)
	if err != nil {
		return nil, minerr.Wrap(minerr.KindStorage, err, "query failed for collection %q", c.name)
	}

	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, Result{
			ID:       h.ID,
			Content:  h.Content,
			Metadata: h.Metadata,
			Distance: 1 - h.Similarity,
		})
	}
	return out, nil
}

func (c *chromemCollection) GetByID(ctx context.Context, id string) (*Result, error) {
	doc, err := c.col.GetByID(ctx, id)
	if err != nil {
		// chromem reports a missing ID as an error; absence is not a
		// failure for callers.
		return nil, nil
	}
	return &Result{
		ID:       doc.ID,
		Content:  doc.Content,
		Metadata: doc.Metadata,
	}, nil
}

func (c *chromemCollection) NoteStates(ctx context.Context) (map[string]NoteState, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	states := c.store.state[c.name]
	out := make(map[string]NoteState, len(states))
	for noteID, st := range states {
		out[noteID] = NoteState{
			ContentHash: st.ContentHash,
			ChunkIDs:    append([]string(nil), st.ChunkIDs...),
		}
	}
	return out, nil
}

func (c *chromemCollection) Count() int {
	return c.col.Count()
}

func copyMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var (
	_ Store      = (*ChromemStore)(nil)
	_ Collection = (*chromemCollection)(nil)
)
