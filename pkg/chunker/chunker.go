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

// Package chunker splits note markdown into structure-preserving,
// size-bounded chunks.
//
// Chunking is critical for retrieval quality:
//   - Too small: loses context, retrieves fragments
//   - Too large: wastes tokens, dilutes relevance
//
// The splitter respects markdown structure: heading sections carry their
// heading path as metadata, and fenced code blocks and tables are never
// split. Concatenating the chunks of a note (minus each chunk's overlap
// prefix) reproduces the original markdown byte for byte.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kadirpekel/minerva/pkg/minerr"
	"github.com/kadirpekel/minerva/pkg/notes"
)

// Chunk is a bounded slice of one note, the unit of embedding and retrieval.
type Chunk struct {
	// ID is SHA-256 of "noteId|modificationDate|chunkIndex", hex-encoded.
	ID string

	// NoteID identifies the note this chunk came from.
	NoteID string

	// ChunkIndex is the 0-based position within the note.
	ChunkIndex int

	// Content is the chunk text, including the overlap prefix.
	Content string

	// Title, ModificationDate and Size are copied from the note.
	Title            string
	ModificationDate string
	Size             int64

	// HeaderMetadata maps heading levels ("h1".."h6") to the headings
	// enclosing this chunk, when any exist.
	HeaderMetadata map[string]string

	// ContentHash is set only on the first chunk of each note.
	ContentHash string

	// OverlapLen is the byte length of the prefix duplicated from the
	// previous chunk. Content[OverlapLen:] is this chunk's novel text.
	OverlapLen int
}

// ChunkID derives the stable chunk identifier.
func ChunkID(noteID, modificationDate string, index int) string {
	sum := sha256.Sum256([]byte(noteID + "|" + modificationDate + "|" + strconv.Itoa(index)))
	return hex.EncodeToString(sum[:])
}

// Config configures chunking behavior.
type Config struct {
	// TargetChars is the target chunk size in characters.
	// Default: 1200
	TargetChars int

	// Overlap is the overlap window in characters prepended from the
	// previous chunk. Default: TargetChars/6
	Overlap int
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.TargetChars <= 0 {
		c.TargetChars = 1200
	}
	if c.Overlap <= 0 {
		c.Overlap = c.TargetChars / 6
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.TargetChars <= 0 {
		return fmt.Errorf("target chunk size must be positive, got %d", c.TargetChars)
	}
	if c.Overlap >= c.TargetChars {
		return fmt.Errorf("overlap (%d) must be less than target size (%d)", c.Overlap, c.TargetChars)
	}
	return nil
}

// Chunker splits notes into chunks.
type Chunker struct {
	cfg Config
}

// New creates a chunker from configuration.
func New(cfg Config) (*Chunker, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, minerr.Wrap(minerr.KindValidation, err, "invalid chunker config")
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (c *Chunker) Config() Config {
	return c.cfg
}

// ChunkNote splits a note's markdown into chunks in document order.
//
// Empty markdown yields zero chunks. The first chunk carries the note's
// content hash.
func (c *Chunker) ChunkNote(n notes.Note) ([]Chunk, error) {
	if n.Markdown == "" {
		return nil, nil
	}

	target := c.cfg.TargetChars
	minLen := target / 4
	maxLen := target + target/2

	var pieces []piece
	for _, sec := range splitSections(n.Markdown) {
		frags := sec.fragments(target)
		for _, content := range mergeFragments(frags, target, minLen, maxLen) {
			pieces = append(pieces, piece{content: content, headers: sec.headers})
		}
	}

	noteID := n.ID()
	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		ch := Chunk{
			ID:               ChunkID(noteID, n.ModificationDate, i),
			NoteID:           noteID,
			ChunkIndex:       i,
			Content:          p.content,
			Title:            n.Title,
			ModificationDate: n.ModificationDate,
			Size:             n.Size,
			HeaderMetadata:   p.headers,
		}
		if i == 0 {
			ch.ContentHash = n.ContentHash()
		} else {
			tail := overlapTail(pieces[i-1].content, c.cfg.Overlap)
			ch.Content = tail + ch.Content
			ch.OverlapLen = len(tail)
		}
		chunks = append(chunks, ch)
	}

	if err := verifyLossless(n.Markdown, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// piece is a merged chunk body awaiting ID assignment.
type piece struct {
	content string
	headers map[string]string
}

// mergeFragments absorbs adjacent small fragments so chunk lengths stay
// within [minLen, maxLen] where the content allows it. The tail of a
// section may fall short of minLen.
func mergeFragments(frags []string, target, minLen, maxLen int) []string {
	var out []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for _, frag := range frags {
		if cur.Len() >= minLen && cur.Len()+len(frag) > maxLen {
			flush()
		}
		cur.WriteString(frag)
		if cur.Len() >= target {
			flush()
		}
	}

	if cur.Len() > 0 && cur.Len() < minLen && len(out) > 0 &&
		len(out[len(out)-1])+cur.Len() <= maxLen {
		out[len(out)-1] += cur.String()
		cur.Reset()
	}
	flush()
	return out
}

// overlapTail returns the suffix of prev used as overlap context. It never
// covers the whole previous chunk and never cuts a rune in half.
func overlapTail(prev string, overlap int) string {
	if overlap <= 0 || len(prev) <= 1 {
		return ""
	}
	if overlap >= len(prev) {
		overlap = len(prev) / 2
	}
	start := len(prev) - overlap
	for start < len(prev) && !utf8.RuneStart(prev[start]) {
		start++
	}
	return prev[start:]
}

// verifyLossless asserts the round-trip invariant: concatenating every
// chunk's novel text reproduces the source markdown.
func verifyLossless(markdown string, chunks []Chunk) error {
	var b strings.Builder
	b.Grow(len(markdown))
	for _, ch := range chunks {
		b.WriteString(ch.Content[ch.OverlapLen:])
	}
	if b.String() != markdown {
		return minerr.New(minerr.KindInternal,
			"chunker dropped or duplicated content while splitting a note")
	}
	return nil
}
