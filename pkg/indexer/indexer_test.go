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

package indexer

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/minerva/pkg/chunker"
	"github.com/kadirpekel/minerva/pkg/collection"
	"github.com/kadirpekel/minerva/pkg/minerr"
	"github.com/kadirpekel/minerva/pkg/notes"
	"github.com/kadirpekel/minerva/pkg/provider"
	"github.com/kadirpekel/minerva/pkg/vector"
)

// fakeProvider embeds deterministically from a text hash. No network.
type fakeProvider struct {
	kind        provider.Kind
	dimension   int
	unavailable string
	completions []string
	chatCalls   int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{kind: provider.Ollama, dimension: 4}
}

func (f *fakeProvider) Kind() provider.Kind    { return f.kind }
func (f *fakeProvider) EmbeddingModel() string { return "fake-embed" }
func (f *fakeProvider) Close() error           { return nil }

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.unavailable != "" {
		return nil, minerr.New(minerr.KindProviderUnavailable, "%s", f.unavailable)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		vec := make([]float32, f.dimension)
		for d := 0; d < f.dimension; d++ {
			vec[d] = float32(sum[d]) + 1
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeProvider) Complete(ctx context.Context, messages []provider.Message, temperature float64) (string, error) {
	f.chatCalls++
	if len(f.completions) == 0 {
		return "8", nil
	}
	reply := f.completions[0]
	f.completions = f.completions[1:]
	return reply, nil
}

func (f *fakeProvider) Check(ctx context.Context) provider.CheckResult {
	if f.unavailable != "" {
		return provider.CheckResult{Available: false, Reason: f.unavailable}
	}
	return provider.CheckResult{Available: true, Dimension: f.dimension}
}

func testSpec() CollectionSpec {
	return CollectionSpec{
		Name:             "kb",
		Description:      "test knowledge base",
		ChunkSize:        1200,
		SkipAIValidation: true,
	}
}

func noteA(markdown string) notes.Note {
	return notes.Note{
		Title:            "A",
		Markdown:         markdown,
		Size:             int64(len(markdown)),
		ModificationDate: "2025-01-01T00:00:00Z",
	}
}

func newTestIndexer(t *testing.T) (*Indexer, vector.Store, *fakeProvider) {
	t.Helper()
	store, err := vector.NewChromemStore(t.TempDir())
	require.NoError(t, err)

	p := newFakeProvider()
	cfg := provider.Config{Type: provider.Ollama, EmbeddingModel: "fake-embed"}
	return New(store, p, cfg), store, p
}

func TestIndex_Fresh(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	n := noteA("# H\n\ntext")
	stats, err := ix.Index(ctx, testSpec(), []notes.Note{n})
	require.NoError(t, err)

	assert.Equal(t, "full", stats.Mode)
	assert.Equal(t, 1, stats.Notes)
	assert.Equal(t, 1, stats.Chunks)

	col, err := store.GetCollection(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, 1, col.Count())

	chunkID := chunker.ChunkID(n.ID(), n.ModificationDate, 0)
	doc, err := col.GetByID(ctx, chunkID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "A", doc.Metadata["title"])
	assert.Equal(t, "0", doc.Metadata["chunkIndex"])
	assert.Equal(t, n.ContentHash(), doc.Metadata["contentHash"])

	md, err := collection.FromMap(col.Metadata())
	require.NoError(t, err)
	assert.Equal(t, collection.CurrentVersion, md.Version)
	assert.Equal(t, "ollama", md.EmbeddingProvider)
	assert.Equal(t, 4, md.EmbeddingDimension)
	assert.Equal(t, 1200, md.ChunkSize)
	assert.Equal(t, 1, md.NoteCount)
}

func TestIndex_IncrementalNoOp(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	n := noteA("# H\n\ntext")
	_, err := ix.Index(ctx, testSpec(), []notes.Note{n})
	require.NoError(t, err)

	stats, err := ix.Index(ctx, testSpec(), []notes.Note{n})
	require.NoError(t, err)

	assert.Equal(t, "incremental", stats.Mode)
	assert.Equal(t, 0, stats.Added)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 0, stats.Deleted)
	assert.Equal(t, 1, stats.Unchanged)

	col, err := store.GetCollection(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, 1, col.Count())
}

func TestIndex_ContentChange(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	n := noteA("# H\n\ntext")
	_, err := ix.Index(ctx, testSpec(), []notes.Note{n})
	require.NoError(t, err)

	changed := noteA("# H\n\ndifferent text")
	stats, err := ix.Index(ctx, testSpec(), []notes.Note{changed})
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Added)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 0, stats.Deleted)
	assert.Equal(t, 0, stats.Unchanged)

	// Same noteId and chunkIndex keep the chunk ID stable while the hash
	// moves.
	col, err := store.GetCollection(ctx, "kb")
	require.NoError(t, err)
	doc, err := col.GetByID(ctx, chunker.ChunkID(changed.ID(), changed.ModificationDate, 0))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, changed.ContentHash(), doc.Metadata["contentHash"])
	assert.NotEqual(t, n.ContentHash(), doc.Metadata["contentHash"])
}

func TestIndex_Deletion(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	a := noteA("# H\n\ntext")
	b := notes.Note{Title: "B", Markdown: "other note", ModificationDate: "2025-01-02T00:00:00Z"}
	_, err := ix.Index(ctx, testSpec(), []notes.Note{a, b})
	require.NoError(t, err)

	stats, err := ix.Index(ctx, testSpec(), []notes.Note{a})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 1, stats.Unchanged)

	col, err := store.GetCollection(ctx, "kb")
	require.NoError(t, err)
	states, err := col.NoteStates(ctx)
	require.NoError(t, err)
	assert.NotContains(t, states, b.ID())
	assert.Contains(t, states, a.ID())
}

func TestIndex_CreationDateChangeCoarsening(t *testing.T) {
	ix, _, _ := newTestIndexer(t)
	ctx := context.Background()

	a := notes.Note{Title: "A", Markdown: "body", ModificationDate: "2025-01-01T00:00:00Z",
		CreationDate: "2024-01-01T00:00:00Z"}
	_, err := ix.Index(ctx, testSpec(), []notes.Note{a})
	require.NoError(t, err)

	// A changed creationDate re-keys the note: one delete plus one add.
	moved := a
	moved.CreationDate = "2024-06-01T00:00:00Z"
	stats, err := ix.Index(ctx, testSpec(), []notes.Note{moved})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Added)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 0, stats.Updated)
}

func TestIndex_EmptyNote(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	empty := notes.Note{Title: "Empty", ModificationDate: "2025-01-01T00:00:00Z"}
	stats, err := ix.Index(ctx, testSpec(), []notes.Note{empty})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Notes)
	assert.Equal(t, 0, stats.Chunks)

	// note_count still counts it.
	col, err := store.GetCollection(ctx, "kb")
	require.NoError(t, err)
	md, err := collection.FromMap(col.Metadata())
	require.NoError(t, err)
	assert.Equal(t, 1, md.NoteCount)

	// Re-running stays a no-op.
	stats, err = ix.Index(ctx, testSpec(), []notes.Note{empty})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Added)
	assert.Equal(t, 1, stats.Unchanged)
}

func TestIndex_IncompatibleModel(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	_, err := ix.Index(ctx, testSpec(), []notes.Note{noteA("text")})
	require.NoError(t, err)

	p2 := newFakeProvider()
	cfg2 := provider.Config{Type: provider.Ollama, EmbeddingModel: "different-model"}
	ix2 := New(store, p2, cfg2)

	_, err = ix2.Index(ctx, testSpec(), []notes.Note{noteA("text")})
	require.Error(t, err)
	assert.True(t, minerr.Is(err, minerr.KindIncompatibleCollection))
	assert.Contains(t, minerr.SuggestionOf(err), "force_recreate")
}

func TestIndex_ForceRecreate(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	_, err := ix.Index(ctx, testSpec(), []notes.Note{noteA("text")})
	require.NoError(t, err)

	p2 := newFakeProvider()
	cfg2 := provider.Config{Type: provider.Ollama, EmbeddingModel: "different-model"}
	ix2 := New(store, p2, cfg2)

	spec := testSpec()
	spec.ForceRecreate = true
	stats, err := ix2.Index(ctx, spec, []notes.Note{noteA("text")})
	require.NoError(t, err)
	assert.Equal(t, "full", stats.Mode)

	col, err := store.GetCollection(ctx, "kb")
	require.NoError(t, err)
	md, err := collection.FromMap(col.Metadata())
	require.NoError(t, err)
	assert.Equal(t, "different-model", md.EmbeddingModel)
}

func TestIndex_LegacyCollection(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	// A v1 collection has no version field in its metadata.
	_, err := store.CreateCollection(ctx, "kb", map[string]any{"description": "old"})
	require.NoError(t, err)

	_, err = ix.Index(ctx, testSpec(), []notes.Note{noteA("text")})
	require.Error(t, err)
	assert.True(t, minerr.Is(err, minerr.KindIncompatibleCollection))
	assert.Contains(t, minerr.SuggestionOf(err), "force_recreate: true")
}

func TestIndex_ProviderUnavailable(t *testing.T) {
	store, err := vector.NewChromemStore(t.TempDir())
	require.NoError(t, err)

	p := newFakeProvider()
	p.unavailable = "cannot reach http://localhost:11434"
	ix := New(store, p, provider.Config{Type: provider.Ollama, EmbeddingModel: "fake-embed"})

	_, err = ix.Index(context.Background(), testSpec(), []notes.Note{noteA("text")})
	require.Error(t, err)
	assert.True(t, minerr.Is(err, minerr.KindProviderUnavailable))
	assert.Contains(t, err.Error(), "cannot reach")
}

func TestIndex_DryRun(t *testing.T) {
	store, err := vector.NewChromemStore(t.TempDir())
	require.NoError(t, err)
	p := newFakeProvider()
	cfg := provider.Config{Type: provider.Ollama, EmbeddingModel: "fake-embed"}

	ix := New(store, p, cfg, WithDryRun(true))
	stats, err := ix.Index(context.Background(), testSpec(), []notes.Note{noteA("# H\n\ntext")})
	require.NoError(t, err)

	assert.Equal(t, "dry-run", stats.Mode)
	assert.Equal(t, 1, stats.Chunks)

	// Nothing was written.
	_, err = store.GetCollection(context.Background(), "kb")
	assert.True(t, minerr.Is(err, minerr.KindCollectionNotFound))
}

func TestIndex_DescriptionValidation(t *testing.T) {
	store, err := vector.NewChromemStore(t.TempDir())
	require.NoError(t, err)

	p := newFakeProvider()
	p.completions = []string{"5"}
	cfg := provider.Config{Type: provider.Ollama, EmbeddingModel: "fake-embed", LLMModel: "fake-chat"}
	ix := New(store, p, cfg)

	spec := testSpec()
	spec.SkipAIValidation = false
	_, err = ix.Index(context.Background(), spec, []notes.Note{noteA("text")})
	require.NoError(t, err, "a low score warns but never fails the run")
	assert.Equal(t, 1, p.chatCalls)
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		reply   string
		want    int
		wantErr bool
	}{
		{"8", 8, false},
		{" 10 ", 10, false},
		{"7/10", 7, false},
		{"Score: 9", 9, false},
		{"excellent", 0, true},
		{"42", 0, true},
	}
	for _, tt := range tests {
		got, err := parseScore(tt.reply)
		if tt.wantErr {
			assert.Error(t, err, "reply=%q", tt.reply)
			continue
		}
		require.NoError(t, err, "reply=%q", tt.reply)
		assert.Equal(t, tt.want, got, "reply=%q", tt.reply)
	}
}
