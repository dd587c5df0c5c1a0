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

// Package notes defines the externally-supplied note schema and its stable
// identity derivations.
//
// Notes arrive pre-normalized from source extractors (Bear, ZIM, markdown
// books, repo docs) as a JSON array. This package validates the schema and
// derives the identifiers the rest of the pipeline keys on.
package notes

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kadirpekel/minerva/pkg/minerr"
)

// Note is the unit of content produced by source extractors.
//
// Extra fields beyond the known schema are preserved opaquely so future
// surfaces can pass them through.
type Note struct {
	Title            string `json:"title"`
	Markdown         string `json:"markdown"`
	Size             int64  `json:"size"`
	ModificationDate string `json:"modificationDate"`
	CreationDate     string `json:"creationDate,omitempty"`

	// Extra holds unrecognized fields, keyed by their JSON name.
	Extra map[string]json.RawMessage `json:"-"`
}

var knownFields = map[string]bool{
	"title":            true,
	"markdown":         true,
	"size":             true,
	"modificationDate": true,
	"creationDate":     true,
}

// UnmarshalJSON decodes a note, capturing unknown fields into Extra.
func (n *Note) UnmarshalJSON(data []byte) error {
	type alias Note
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range raw {
		if !knownFields[k] {
			if a.Extra == nil {
				a.Extra = make(map[string]json.RawMessage)
			}
			a.Extra[k] = raw[k]
		}
	}

	*n = Note(a)
	return nil
}

// MarshalJSON encodes a note including preserved extra fields.
func (n Note) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(knownFields)+len(n.Extra))
	out["title"] = n.Title
	out["markdown"] = n.Markdown
	out["size"] = n.Size
	out["modificationDate"] = n.ModificationDate
	if n.CreationDate != "" {
		out["creationDate"] = n.CreationDate
	}
	for k, v := range n.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}

// ID returns the stable note identifier: SHA-1 of "title|creationDate",
// hex-encoded. SHA-1 is used solely as a compact stable key, not for
// security.
func (n Note) ID() string {
	sum := sha1.Sum([]byte(n.Title + "|" + n.CreationDate))
	return hex.EncodeToString(sum[:])
}

// ContentHash returns SHA-256 of `title + "\n" + markdown`, hex-encoded.
// It is the cheap change-detection key stored on the first chunk of a note.
func (n Note) ContentHash() string {
	sum := sha256.Sum256([]byte(n.Title + "\n" + n.Markdown))
	return hex.EncodeToString(sum[:])
}

// Validate checks a single note against the schema.
// The index identifies the note inside its source array for field-precise
// diagnostics.
func (n Note) Validate(index int) error {
	field := func(name string) string {
		return fmt.Sprintf("notes[%d].%s", index, name)
	}

	if n.Title == "" {
		return minerr.New(minerr.KindValidation, "note title must not be empty").
			WithField(field("title")).
			WithSuggestion("fix the extractor output; every note needs a title")
	}
	if n.Size < 0 {
		return minerr.New(minerr.KindValidation, "note size must be non-negative, got %d", n.Size).
			WithField(field("size"))
	}
	if err := validateTimestamp(n.ModificationDate); err != nil {
		return minerr.Wrap(minerr.KindValidation, err,
			"note modificationDate is not an ISO-8601 UTC timestamp: %q", n.ModificationDate).
			WithField(field("modificationDate")).
			WithSuggestion("use the form 2025-01-01T00:00:00Z")
	}
	if n.CreationDate != "" {
		if err := validateTimestamp(n.CreationDate); err != nil {
			return minerr.Wrap(minerr.KindValidation, err,
				"note creationDate is not an ISO-8601 UTC timestamp: %q", n.CreationDate).
				WithField(field("creationDate")).
				WithSuggestion("use the form 2025-01-01T00:00:00Z")
		}
	}
	return nil
}

// validateTimestamp requires RFC 3339 with a trailing Z (UTC).
func validateTimestamp(ts string) error {
	if ts == "" {
		return fmt.Errorf("timestamp is empty")
	}
	if ts[len(ts)-1] != 'Z' {
		return fmt.Errorf("timestamp %q lacks the trailing Z", ts)
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		return err
	}
	return nil
}

// Load reads and validates a notes JSON file.
//
// An empty array is valid. Validation stops at the first offending note so
// the diagnostic stays field-precise.
func Load(path string) ([]Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, minerr.Wrap(minerr.KindValidation, err, "cannot read notes file").
			WithField(path).
			WithSuggestion("check the json_file path in the index config")
	}
	return Parse(data, path)
}

// Parse decodes and validates a notes JSON document.
func Parse(data []byte, source string) ([]Note, error) {
	var loaded []Note
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, minerr.Wrap(minerr.KindValidation, err, "notes file is not a JSON array of notes").
			WithField(source).
			WithSuggestion("the extractor must emit a top-level JSON array")
	}

	for i, n := range loaded {
		if err := n.Validate(i); err != nil {
			return nil, err
		}
	}
	return loaded, nil
}
