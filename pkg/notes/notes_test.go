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

package notes

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/minerva/pkg/minerr"
)

func TestNoteID_Stable(t *testing.T) {
	a := Note{Title: "Sourdough Starter", CreationDate: "2024-03-01T10:00:00Z"}
	b := Note{Title: "Sourdough Starter", CreationDate: "2024-03-01T10:00:00Z", Markdown: "changed body"}

	// Identity depends only on title and creationDate, never on content.
	assert.Equal(t, a.ID(), b.ID())
	assert.Len(t, a.ID(), 40) // hex-encoded SHA-1

	c := Note{Title: "Sourdough Starter", CreationDate: "2024-03-02T10:00:00Z"}
	assert.NotEqual(t, a.ID(), c.ID())
}

func TestNoteID_MissingCreationDate(t *testing.T) {
	a := Note{Title: "Untracked"}
	b := Note{Title: "Untracked", CreationDate: ""}
	assert.Equal(t, a.ID(), b.ID())
}

func TestContentHash(t *testing.T) {
	a := Note{Title: "T", Markdown: "body"}
	b := Note{Title: "T", Markdown: "body"}
	assert.Equal(t, a.ContentHash(), b.ContentHash())
	assert.Len(t, a.ContentHash(), 64) // hex-encoded SHA-256

	c := Note{Title: "T", Markdown: "body changed"}
	assert.NotEqual(t, a.ContentHash(), c.ContentHash())

	d := Note{Title: "T changed", Markdown: "body"}
	assert.NotEqual(t, a.ContentHash(), d.ContentHash())
}

func TestValidate(t *testing.T) {
	valid := Note{
		Title:            "A note",
		Markdown:         "# A note\n\nBody.",
		Size:             15,
		ModificationDate: "2025-01-01T00:00:00Z",
		CreationDate:     "2024-12-31T00:00:00Z",
	}
	require.NoError(t, valid.Validate(0))

	tests := []struct {
		name   string
		mutate func(*Note)
		field  string
	}{
		{"empty title", func(n *Note) { n.Title = "" }, "notes[3].title"},
		{"negative size", func(n *Note) { n.Size = -1 }, "notes[3].size"},
		{"no trailing Z", func(n *Note) { n.ModificationDate = "2025-01-01T00:00:00+02:00" }, "notes[3].modificationDate"},
		{"garbage timestamp", func(n *Note) { n.ModificationDate = "yesterdayZ" }, "notes[3].modificationDate"},
		{"bad creationDate", func(n *Note) { n.CreationDate = "not-a-dateZ" }, "notes[3].creationDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := valid
			tt.mutate(&n)
			err := n.Validate(3)
			require.Error(t, err)
			assert.True(t, minerr.Is(err, minerr.KindValidation))

			var me *minerr.Error
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.field, me.Field)
		})
	}
}

func TestValidate_EmptyMarkdownOK(t *testing.T) {
	n := Note{Title: "Empty", ModificationDate: "2025-01-01T00:00:00Z"}
	assert.NoError(t, n.Validate(0))
}

func TestParse_PreservesExtraFields(t *testing.T) {
	data := []byte(`[{
		"title": "Tagged",
		"markdown": "body",
		"size": 4,
		"modificationDate": "2025-01-01T00:00:00Z",
		"tags": ["bread", "kitchen"],
		"pinned": true
	}]`)

	loaded, err := Parse(data, "inline")
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	n := loaded[0]
	assert.Equal(t, "Tagged", n.Title)
	require.Contains(t, n.Extra, "tags")
	require.Contains(t, n.Extra, "pinned")

	// Round-trip keeps the extras.
	out, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"bread"`)
	assert.Contains(t, string(out), `"pinned":true`)
}

func TestParse_EmptyArray(t *testing.T) {
	loaded, err := Parse([]byte(`[]`), "inline")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestParse_NotAnArray(t *testing.T) {
	_, err := Parse([]byte(`{"title": "x"}`), "inline")
	require.Error(t, err)
	assert.True(t, minerr.Is(err, minerr.KindValidation))
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"title": "One", "markdown": "a", "size": 1, "modificationDate": "2025-01-01T00:00:00Z"}
	]`), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "One", loaded[0].Title)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, minerr.Is(err, minerr.KindValidation))
}
