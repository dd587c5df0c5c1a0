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

package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/minerva/pkg/notes"
)

func testNote(markdown string) notes.Note {
	return notes.Note{
		Title:            "Test Note",
		Markdown:         markdown,
		Size:             int64(len(markdown)),
		ModificationDate: "2025-01-01T00:00:00Z",
		CreationDate:     "2024-06-01T00:00:00Z",
	}
}

// reconstruct concatenates chunk contents stripping each overlap prefix.
func reconstruct(chunks []Chunk) string {
	var b strings.Builder
	for _, ch := range chunks {
		b.WriteString(ch.Content[ch.OverlapLen:])
	}
	return b.String()
}

func paragraphs(count, words int) string {
	var b strings.Builder
	for p := 0; p < count; p++ {
		for w := 0; w < words; w++ {
			fmt.Fprintf(&b, "word%d-%d ", p, w)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestChunkNote_EmptyMarkdown(t *testing.T) {
	c, err := New(Config{TargetChars: 1200})
	require.NoError(t, err)

	chunks, err := c.ChunkNote(testNote(""))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkNote_SmallNote(t *testing.T) {
	c, err := New(Config{TargetChars: 1200})
	require.NoError(t, err)

	n := testNote("# H\n\ntext")
	chunks, err := c.ChunkNote(n)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	ch := chunks[0]
	assert.Equal(t, 0, ch.ChunkIndex)
	assert.Equal(t, "# H\n\ntext", ch.Content)
	assert.Equal(t, "Test Note", ch.Title)
	assert.Equal(t, n.ID(), ch.NoteID)
	assert.Equal(t, n.ContentHash(), ch.ContentHash)
	assert.Equal(t, ChunkID(n.ID(), n.ModificationDate, 0), ch.ID)
	assert.Equal(t, map[string]string{"h1": "H"}, ch.HeaderMetadata)
}

func TestChunkNote_Deterministic(t *testing.T) {
	c, err := New(Config{TargetChars: 400})
	require.NoError(t, err)

	n := testNote(paragraphs(10, 20))
	first, err := c.ChunkNote(n)
	require.NoError(t, err)
	second, err := c.ChunkNote(n)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
	}
}

func TestChunkNote_RoundTrip(t *testing.T) {
	inputs := map[string]string{
		"plain":    paragraphs(12, 30),
		"headings": "# One\n\n" + paragraphs(4, 30) + "## Two\n\n" + paragraphs(4, 30),
		"code":     paragraphs(2, 30) + "```go\nfunc main() {}\n```\n" + paragraphs(2, 30),
		"table":    paragraphs(2, 30) + "| a | b |\n|---|---|\n| 1 | 2 |\n" + paragraphs(2, 30),
		"no-final-newline": "# T\n\nbody without trailing newline",
		"unicode":          strings.Repeat("héllo wörld, naïve café. ", 80),
	}

	c, err := New(Config{TargetChars: 300})
	require.NoError(t, err)

	for name, markdown := range inputs {
		t.Run(name, func(t *testing.T) {
			chunks, err := c.ChunkNote(testNote(markdown))
			require.NoError(t, err)
			assert.Equal(t, markdown, reconstruct(chunks))
		})
	}
}

func TestChunkNote_LengthBounds(t *testing.T) {
	target := 400
	c, err := New(Config{TargetChars: target})
	require.NoError(t, err)

	chunks, err := c.ChunkNote(testNote(paragraphs(20, 25)))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	minLen := target / 4
	maxLen := target + target/2
	for i, ch := range chunks {
		novel := len(ch.Content) - ch.OverlapLen
		if i < len(chunks)-1 {
			assert.GreaterOrEqual(t, novel, minLen, "chunk %d below minimum", i)
		}
		assert.LessOrEqual(t, novel, maxLen, "chunk %d above maximum", i)
	}
}

func TestChunkNote_ContiguousIndexes(t *testing.T) {
	c, err := New(Config{TargetChars: 300})
	require.NoError(t, err)

	chunks, err := c.ChunkNote(testNote(paragraphs(15, 25)))
	require.NoError(t, err)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
	}
}

func TestChunkNote_ContentHashOnFirstChunkOnly(t *testing.T) {
	c, err := New(Config{TargetChars: 300})
	require.NoError(t, err)

	n := testNote(paragraphs(15, 25))
	chunks, err := c.ChunkNote(n)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	assert.Equal(t, n.ContentHash(), chunks[0].ContentHash)
	for _, ch := range chunks[1:] {
		assert.Empty(t, ch.ContentHash)
	}
}

func TestChunkNote_OverlapPrefix(t *testing.T) {
	c, err := New(Config{TargetChars: 300, Overlap: 50})
	require.NoError(t, err)

	chunks, err := c.ChunkNote(testNote(paragraphs(15, 25)))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		ch := chunks[i]
		require.Greater(t, ch.OverlapLen, 0, "chunk %d has no overlap", i)
		assert.LessOrEqual(t, ch.OverlapLen, 50)
		assert.True(t, strings.HasSuffix(prev.Content, ch.Content[:ch.OverlapLen]),
			"chunk %d overlap is not the tail of its predecessor", i)
	}
}

func TestChunkNote_FencedCodeNeverSplit(t *testing.T) {
	code := "```python\n" + strings.Repeat("print('line of code here')\n", 30) + "```\n"
	markdown := paragraphs(2, 25) + code + paragraphs(2, 25)

	c, err := New(Config{TargetChars: 200})
	require.NoError(t, err)

	chunks, err := c.ChunkNote(testNote(markdown))
	require.NoError(t, err)

	var holder string
	for _, ch := range chunks {
		if strings.Contains(ch.Content[ch.OverlapLen:], "```python") {
			holder = ch.Content
		}
	}
	require.NotEmpty(t, holder, "no chunk contains the code fence opening")
	assert.Contains(t, holder, code, "fence was split across chunks")
}

func TestChunkNote_TableNeverSplit(t *testing.T) {
	table := "| name | qty |\n|------|-----|\n" + strings.Repeat("| item | 42 |\n", 20)
	markdown := paragraphs(2, 25) + table + paragraphs(2, 25)

	c, err := New(Config{TargetChars: 150})
	require.NoError(t, err)

	chunks, err := c.ChunkNote(testNote(markdown))
	require.NoError(t, err)

	var found bool
	for _, ch := range chunks {
		if strings.Contains(ch.Content, table) {
			found = true
		}
	}
	assert.True(t, found, "table was split across chunks")
}

func TestChunkNote_HeaderMetadata(t *testing.T) {
	markdown := "# Top\n\n" + paragraphs(3, 30) +
		"## Nested\n\n" + paragraphs(3, 30) +
		"# Second Top\n\n" + paragraphs(3, 30)

	c, err := New(Config{TargetChars: 300})
	require.NoError(t, err)

	chunks, err := c.ChunkNote(testNote(markdown))
	require.NoError(t, err)

	var sawNested, sawSecond bool
	for _, ch := range chunks {
		switch ch.HeaderMetadata["h2"] {
		case "Nested":
			sawNested = true
			assert.Equal(t, "Top", ch.HeaderMetadata["h1"])
		}
		if ch.HeaderMetadata["h1"] == "Second Top" {
			sawSecond = true
			// The h2 from the previous branch must not leak.
			assert.Empty(t, ch.HeaderMetadata["h2"])
		}
	}
	assert.True(t, sawNested)
	assert.True(t, sawSecond)
}

func TestChunkNote_HeadingInsideFenceIgnored(t *testing.T) {
	markdown := "# Real\n\n```\n# not a heading\n```\n\ntext after\n"

	c, err := New(Config{TargetChars: 1200})
	require.NoError(t, err)

	chunks, err := c.ChunkNote(testNote(markdown))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, map[string]string{"h1": "Real"}, chunks[0].HeaderMetadata)
}

func TestChunkID_Derivation(t *testing.T) {
	a := ChunkID("note1", "2025-01-01T00:00:00Z", 0)
	b := ChunkID("note1", "2025-01-01T00:00:00Z", 0)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, ChunkID("note1", "2025-01-01T00:00:00Z", 1))
	assert.NotEqual(t, a, ChunkID("note1", "2025-01-02T00:00:00Z", 0))
	assert.NotEqual(t, a, ChunkID("note2", "2025-01-01T00:00:00Z", 0))
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, 1200, cfg.TargetChars)
	assert.Equal(t, 200, cfg.Overlap)
}

func TestConfig_OverlapMustBeSmallerThanTarget(t *testing.T) {
	_, err := New(Config{TargetChars: 100, Overlap: 100})
	assert.Error(t, err)
}
