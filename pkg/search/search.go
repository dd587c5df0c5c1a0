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

// Package search answers semantic queries against discovered collections.
//
// A query is embedded with the collection's own provider, matched by
// cosine similarity, and optionally enriched with the neighboring chunks
// of each hit. Neighbor lookups are direct ID fetches derived from the
// chunk naming scheme, never a second vector query.
package search

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/kadirpekel/minerva/pkg/chunker"
	"github.com/kadirpekel/minerva/pkg/discovery"
	"github.com/kadirpekel/minerva/pkg/metrics"
	"github.com/kadirpekel/minerva/pkg/minerr"
	"github.com/kadirpekel/minerva/pkg/vector"
)

// MaxResults caps how many hits a single search may return.
const MaxResults = 15

// DefaultMaxResults applies when the caller does not ask for a count.
const DefaultMaxResults = 5

// tokenWarnThreshold is the estimated result size above which the response
// is likely to crowd an agent's context window.
const tokenWarnThreshold = 25000

// ContextMode selects how much surrounding text each hit carries.
type ContextMode string

const (
	// ContextChunkOnly returns the matched chunk verbatim.
	ContextChunkOnly ContextMode = "chunk_only"

	// ContextEnhanced stitches the previous and next chunk of the same
	// note around the match, with the overlap removed.
	ContextEnhanced ContextMode = "enhanced"
)

// Request is one search call.
type Request struct {
	Collection  string
	Query       string
	MaxResults  int
	ContextMode ContextMode
}

// Result is one search hit.
type Result struct {
	NoteTitle        string  `json:"noteTitle"`
	NoteID           string  `json:"noteId"`
	ChunkIndex       int     `json:"chunkIndex"`
	ModificationDate string  `json:"modificationDate"`
	CollectionName   string  `json:"collectionName"`
	SimilarityScore  float64 `json:"similarityScore"`
	Content          string  `json:"content"`
}

// Response carries the hits plus a rough token estimate of the payload.
type Response struct {
	Results         []Result `json:"results"`
	EstimatedTokens int      `json:"estimatedTokens"`
}

// KnowledgeBase describes one searchable collection.
type KnowledgeBase struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	NoteCount      int    `json:"note_count"`
	ChunkCount     int    `json:"chunk_count"`
	EmbeddingModel string `json:"embedding_model"`
}

// Searcher serves queries from a frozen discovery registry.
type Searcher struct {
	reg               *discovery.Registry
	logger            *slog.Logger
	defaultMaxResults int
}

// Option customizes a Searcher.
type Option func(*Searcher)

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Searcher) { s.logger = l }
}

// WithDefaultMaxResults sets the result count used when a request does
// not ask for one.
func WithDefaultMaxResults(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.defaultMaxResults = n
		}
	}
}

// New creates a Searcher over the given registry.
func New(reg *discovery.Registry, opts ...Option) *Searcher {
	s := &Searcher{reg: reg, logger: slog.Default(), defaultMaxResults: DefaultMaxResults}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListKnowledgeBases describes the available collections. Unavailable ones
// are omitted; agents should only be offered collections that can answer.
func (s *Searcher) ListKnowledgeBases(ctx context.Context) []KnowledgeBase {
	var out []KnowledgeBase
	for _, e := range s.reg.Available() {
		out = append(out, KnowledgeBase{
			Name:           e.Name,
			Description:    e.Metadata.Description,
			NoteCount:      e.Metadata.NoteCount,
			ChunkCount:     e.Collection.Count(),
			EmbeddingModel: e.Metadata.EmbeddingModel,
		})
	}
	return out
}

// Search runs one semantic query.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := s.search(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.SearchesTotal.WithLabelValues(req.Collection, outcome).Inc()
	metrics.SearchDuration.WithLabelValues(req.Collection).Observe(time.Since(start).Seconds())
	return resp, err
}

func (s *Searcher) search(ctx context.Context, req Request) (*Response, error) {
	if req.Query == "" {
		return nil, minerr.New(minerr.KindValidation, "query must not be empty").WithField("query")
	}

	entry, err := s.reg.Get(req.Collection)
	if err != nil {
		return nil, err
	}

	k := req.MaxResults
	if k <= 0 {
		k = s.defaultMaxResults
	}
	if k > MaxResults {
		k = MaxResults
	}

	mode := req.ContextMode
	if mode == "" {
		mode = ContextEnhanced
	}

	vecs, err := entry.Provider.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, err
	}
	embedding := vecs[0]

	if len(embedding) != entry.Metadata.EmbeddingDimension {
		return nil, minerr.New(minerr.KindDimensionMismatch,
			"provider returned a %d-dimensional embedding but collection %s stores %d dimensions",
			len(embedding), entry.Name, entry.Metadata.EmbeddingDimension).
			WithSuggestion("the provider model changed; re-index with force_recreate: true")
	}

	hits, err := entry.Collection.Query(ctx, embedding, k, nil)
	if err != nil {
		return nil, err
	}

	resp := &Response{Results: make([]Result, 0, len(hits))}
	totalChars := 0
	for _, hit := range hits {
		r := toResult(hit, entry.Name)
		if mode == ContextEnhanced {
			r.Content = s.enhance(ctx, entry.Collection, hit, r)
		}
		totalChars += len(r.Content)
		resp.Results = append(resp.Results, r)
	}

	// A token is roughly four characters of English text.
	resp.EstimatedTokens = (totalChars + 3) / 4
	metrics.EstimatedResultTokens.Observe(float64(resp.EstimatedTokens))
	if resp.EstimatedTokens > tokenWarnThreshold {
		s.logger.Warn("Search response is large",
			"collection", req.Collection, "estimated_tokens", resp.EstimatedTokens,
			"hint", "lower max_results or use chunk_only context")
	}
	return resp, nil
}

func toResult(hit vector.Result, collectionName string) Result {
	index, _ := strconv.Atoi(hit.Metadata["chunkIndex"])
	return Result{
		NoteTitle:        hit.Metadata["title"],
		NoteID:           hit.Metadata["noteId"],
		ChunkIndex:       index,
		ModificationDate: hit.Metadata["modificationDate"],
		CollectionName:   collectionName,
		SimilarityScore:  1 - float64(hit.Distance),
		Content:          hit.Content,
	}
}

// enhance stitches the previous and next chunk of the note around the hit.
// Chunk IDs are derivable from note identity, so neighbors cost one direct
// fetch each. Overlap prefixes are stripped so text never repeats.
func (s *Searcher) enhance(ctx context.Context, col vector.Collection, hit vector.Result, r Result) string {
	content := hit.Content

	if r.ChunkIndex > 0 {
		if prev := s.neighbor(ctx, col, r, r.ChunkIndex-1); prev != nil {
			content = prev.Content + stripOverlap(hit)
		}
	}
	if next := s.neighbor(ctx, col, r, r.ChunkIndex+1); next != nil {
		content += stripOverlap(*next)
	}
	return content
}

func (s *Searcher) neighbor(ctx context.Context, col vector.Collection, r Result, index int) *vector.Result {
	id := chunker.ChunkID(r.NoteID, r.ModificationDate, index)
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		s.logger.Debug("Neighbor fetch failed", "id", id, "error", err)
		return nil
	}
	return doc
}

// stripOverlap drops the duplicated prefix a chunk copies from its
// predecessor.
func stripOverlap(doc vector.Result) string {
	overlap, _ := strconv.Atoi(doc.Metadata["overlapLen"])
	if overlap <= 0 || overlap > len(doc.Content) {
		return doc.Content
	}
	return doc.Content[overlap:]
}
