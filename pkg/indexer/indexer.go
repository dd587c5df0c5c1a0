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

// Package indexer orchestrates the note-to-collection pipeline: chunking,
// embedding, and incremental updates driven by content hashes.
package indexer

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/kadirpekel/minerva/pkg/chunker"
	"github.com/kadirpekel/minerva/pkg/collection"
	"github.com/kadirpekel/minerva/pkg/metrics"
	"github.com/kadirpekel/minerva/pkg/minerr"
	"github.com/kadirpekel/minerva/pkg/notes"
	"github.com/kadirpekel/minerva/pkg/provider"
	"github.com/kadirpekel/minerva/pkg/vector"
)

// CollectionSpec is the per-collection slice of the index config.
type CollectionSpec struct {
	Name             string
	Description      string
	JSONFile         string
	ChunkSize        int
	ForceRecreate    bool
	SkipAIValidation bool
}

// Stats summarizes one indexing run.
type Stats struct {
	Mode      string        `json:"mode"`
	Notes     int           `json:"notes"`
	Chunks    int           `json:"chunks"`
	Added     int           `json:"added"`
	Updated   int           `json:"updated"`
	Deleted   int           `json:"deleted"`
	Unchanged int           `json:"unchanged"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Indexer drives indexing runs against one store and one provider.
type Indexer struct {
	store    vector.Store
	provider provider.Provider
	cfg      provider.Config
	logger   *slog.Logger
	dryRun   bool
}

// Option customizes an Indexer.
type Option func(*Indexer)

// WithDryRun computes and reports the plan without touching the store or
// the embedding API.
func WithDryRun(dry bool) Option {
	return func(ix *Indexer) { ix.dryRun = dry }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) { ix.logger = l }
}

// New creates an Indexer. cfg is the provider config being indexed with;
// it is persisted (credential reference included, secret never) into the
// collection metadata.
func New(store vector.Store, p provider.Provider, cfg provider.Config, opts ...Option) *Indexer {
	ix := &Indexer{
		store:    store,
		provider: p,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Index runs the full decision tree for one collection spec over the
// loaded notes and returns run statistics.
func (ix *Indexer) Index(ctx context.Context, spec CollectionSpec, loaded []notes.Note) (*Stats, error) {
	start := time.Now()

	stats, err := ix.index(ctx, spec, loaded)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	mode := "unknown"
	if stats != nil {
		stats.Elapsed = time.Since(start)
		mode = stats.Mode
	}
	metrics.IndexRunsTotal.WithLabelValues(mode, outcome).Inc()
	return stats, err
}

func (ix *Indexer) index(ctx context.Context, spec CollectionSpec, loaded []notes.Note) (*Stats, error) {
	res := ix.provider.Check(ctx)
	if !res.Available {
		return nil, minerr.New(minerr.KindProviderUnavailable,
			"provider %s is not available: %s", ix.provider.Kind(), res.Reason).
			WithSuggestion("%s", availabilitySuggestion(ix.cfg))
	}
	dimension := res.Dimension

	if !spec.SkipAIValidation && ix.cfg.LLMModel != "" {
		ix.validateDescription(ctx, spec)
	}

	ck, err := chunker.New(chunker.Config{TargetChars: spec.ChunkSize})
	if err != nil {
		return nil, err
	}
	chunkSize := ck.Config().TargetChars

	col, err := ix.store.GetCollection(ctx, spec.Name)
	switch {
	case minerr.Is(err, minerr.KindCollectionNotFound):
		return ix.fullIndex(ctx, spec, loaded, ck, dimension, chunkSize)

	case err != nil:
		return nil, err

	case spec.ForceRecreate:
		ix.logger.Info("Recreating collection", "collection", spec.Name)
		if !ix.dryRun {
			if err := ix.store.DeleteCollection(ctx, spec.Name); err != nil {
				return nil, err
			}
		}
		return ix.fullIndex(ctx, spec, loaded, ck, dimension, chunkSize)

	default:
		md, err := collection.FromMap(col.Metadata())
		if err != nil {
			return nil, err
		}
		if err := ix.checkCompatibility(md, chunkSize); err != nil {
			return nil, err
		}
		return ix.incrementalIndex(ctx, spec, col, md, loaded, ck)
	}
}

// checkCompatibility refuses to mix embeddings from different pipelines.
func (ix *Indexer) checkCompatibility(md collection.Metadata, chunkSize int) error {
	if md.IsLegacy() {
		return minerr.New(minerr.KindIncompatibleCollection,
			"collection was written by a v1 index and cannot be updated in place").
			WithSuggestion("re-index with force_recreate: true")
	}

	mismatch := func(field, have, want string) error {
		return minerr.New(minerr.KindIncompatibleCollection,
			"collection %s is %q but the config requests %q; embeddings are not mixable", field, have, want).
			WithField(field).
			WithSuggestion("re-index with force_recreate: true to rebuild with the new settings")
	}

	if md.EmbeddingProvider != string(ix.cfg.Type) {
		return mismatch("embedding_provider", md.EmbeddingProvider, string(ix.cfg.Type))
	}
	if md.EmbeddingModel != ix.cfg.EmbeddingModel {
		return mismatch("embedding_model", md.EmbeddingModel, ix.cfg.EmbeddingModel)
	}
	if md.ChunkSize != chunkSize {
		return mismatch("chunk_size", strconv.Itoa(md.ChunkSize), strconv.Itoa(chunkSize))
	}
	return nil
}

// fullIndex chunks and embeds everything, then creates the collection and
// upserts in one pass.
func (ix *Indexer) fullIndex(ctx context.Context, spec CollectionSpec, loaded []notes.Note,
	ck *chunker.Chunker, dimension, chunkSize int) (*Stats, error) {

	stats := &Stats{Mode: "full", Notes: len(loaded)}

	chunks, failed := ix.chunkNotes(loaded, ck)
	stats.Failed = failed
	stats.Chunks = len(chunks)

	if ix.dryRun {
		stats.Mode = "dry-run"
		return stats, nil
	}

	docs, err := ix.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	md := collection.New(spec.Description, ix.cfg, dimension, chunkSize)
	md.NoteCount = len(loaded)
	if err := md.Validate(); err != nil {
		return nil, err
	}
	raw, err := md.ToMap()
	if err != nil {
		return nil, err
	}

	col, err := ix.store.CreateCollection(ctx, spec.Name, raw)
	if err != nil {
		return nil, err
	}
	if err := col.Upsert(ctx, docs); err != nil {
		return nil, upsertFailure(err)
	}

	metrics.ChunksIndexedTotal.WithLabelValues(spec.Name).Add(float64(len(docs)))
	ix.logger.Info("Full index complete",
		"collection", spec.Name, "notes", stats.Notes, "chunks", stats.Chunks)
	return stats, nil
}

// incrementalIndex classifies notes against the stored content hashes and
// applies only the difference. Deletions land before insertions so no
// reader ever sees a note's old and new chunks together.
func (ix *Indexer) incrementalIndex(ctx context.Context, spec CollectionSpec, col vector.Collection,
	md collection.Metadata, loaded []notes.Note, ck *chunker.Chunker) (*Stats, error) {

	stats := &Stats{Mode: "incremental", Notes: len(loaded)}

	existing, err := col.NoteStates(ctx)
	if err != nil {
		return nil, err
	}

	var toEmbed []notes.Note
	var deleteIDs []string
	incoming := make(map[string]bool, len(loaded))

	for _, n := range loaded {
		noteID := n.ID()
		incoming[noteID] = true

		prev, known := existing[noteID]
		switch {
		case !known && n.Markdown == "":
			// Empty notes store nothing; re-running must stay a no-op.
			stats.Unchanged++
		case !known:
			stats.Added++
			toEmbed = append(toEmbed, n)
		case prev.ContentHash != n.ContentHash():
			stats.Updated++
			deleteIDs = append(deleteIDs, noteID)
			toEmbed = append(toEmbed, n)
		default:
			stats.Unchanged++
		}
	}

	for noteID := range existing {
		if !incoming[noteID] {
			stats.Deleted++
			deleteIDs = append(deleteIDs, noteID)
		}
	}
	sort.Strings(deleteIDs)

	if ix.dryRun {
		stats.Mode = "dry-run"
		return stats, nil
	}

	chunks, failed := ix.chunkNotes(toEmbed, ck)
	stats.Failed = failed
	stats.Chunks = len(chunks)

	if len(deleteIDs) > 0 {
		if err := col.DeleteByNoteIDs(ctx, deleteIDs); err != nil {
			return nil, err
		}
	}

	if len(chunks) > 0 {
		docs, err := ix.embedChunks(ctx, chunks)
		if err != nil {
			return nil, err
		}
		if err := col.Upsert(ctx, docs); err != nil {
			return nil, upsertFailure(err)
		}
		metrics.ChunksIndexedTotal.WithLabelValues(spec.Name).Add(float64(len(docs)))
	}

	md.Touch(len(loaded), spec.Description)
	raw, err := md.ToMap()
	if err != nil {
		return nil, err
	}
	if err := col.UpdateMetadata(ctx, raw); err != nil {
		return nil, err
	}

	ix.logger.Info("Incremental index complete", "collection", spec.Name,
		"added", stats.Added, "updated", stats.Updated,
		"deleted", stats.Deleted, "unchanged", stats.Unchanged)
	return stats, nil
}

// chunkNotes chunks every note, skipping per-note failures.
func (ix *Indexer) chunkNotes(loaded []notes.Note, ck *chunker.Chunker) ([]chunker.Chunk, int) {
	var chunks []chunker.Chunk
	failed := 0
	for _, n := range loaded {
		cs, err := ck.ChunkNote(n)
		if err != nil {
			failed++
			ix.logger.Warn("Skipping note that failed to chunk", "title", n.Title, "error", err)
			continue
		}
		chunks = append(chunks, cs...)
	}
	return chunks, failed
}

// embedChunks embeds chunk contents and pairs them back into documents.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []chunker.Chunk) ([]vector.Document, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}

	vecs, err := ix.provider.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	docs := make([]vector.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = vector.Document{
			ID:        ch.ID,
			Embedding: vecs[i],
			Content:   ch.Content,
			Metadata:  chunkMetadata(ch),
		}
	}
	return docs, nil
}

// chunkMetadata flattens a chunk into store metadata.
func chunkMetadata(ch chunker.Chunk) map[string]string {
	md := map[string]string{
		"noteId":           ch.NoteID,
		"title":            ch.Title,
		"chunkIndex":       strconv.Itoa(ch.ChunkIndex),
		"modificationDate": ch.ModificationDate,
		"overlapLen":       strconv.Itoa(ch.OverlapLen),
	}
	if ch.ContentHash != "" {
		md["contentHash"] = ch.ContentHash
	}
	for level, heading := range ch.HeaderMetadata {
		md[level] = heading
	}
	return md
}

func upsertFailure(err error) error {
	var me *minerr.Error
	if errors.As(err, &me) && me.Kind == minerr.KindStorage && me.Suggestion == "" {
		me.Suggestion = "the collection may be partially written; re-run with force_recreate: true"
	}
	return err
}

func availabilitySuggestion(cfg provider.Config) string {
	switch cfg.Type {
	case provider.Ollama:
		return "start ollama (ollama serve) and pull the model: ollama pull " + cfg.EmbeddingModel
	case provider.LMStudio:
		return "start the LM Studio local server and load an embedding model"
	case provider.Anthropic:
		return "anthropic cannot index; choose an embedding-capable provider"
	default:
		return "verify the API key and network connectivity for " + string(cfg.Type)
	}
}
