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

package chat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/minerva/pkg/minerr"
	"github.com/kadirpekel/minerva/pkg/provider"
)

// Conversation is one persisted chat transcript. With an empty directory
// the conversation lives only in memory.
type Conversation struct {
	ID        string             `json:"id"`
	StartedAt string             `json:"started_at"`
	Messages  []provider.Message `json:"messages"`

	dir string
}

// NewConversation starts a transcript that persists under dir.
func NewConversation(dir string) *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		dir:       dir,
	}
}

// LoadConversation resumes a transcript from disk.
func LoadConversation(path string) (*Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, minerr.Wrap(minerr.KindStorage, err, "cannot read conversation %s", path)
	}

	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, minerr.Wrap(minerr.KindStorage, err, "conversation %s is corrupt", path)
	}
	c.dir = filepath.Dir(path)
	return &c, nil
}

// Append records one turn.
func (c *Conversation) Append(role, content string) {
	c.Messages = append(c.Messages, provider.Message{Role: role, Content: content})
}

// Path returns where the transcript is stored, or empty when in-memory.
func (c *Conversation) Path() string {
	if c.dir == "" {
		return ""
	}
	return filepath.Join(c.dir, c.ID+".json")
}

// Save writes the transcript atomically.
func (c *Conversation) Save() error {
	path := c.Path()
	if path == "" {
		return nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return minerr.Wrap(minerr.KindStorage, err, "cannot create conversation directory %s", c.dir)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return minerr.Wrap(minerr.KindInternal, err, "cannot encode conversation")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return minerr.Wrap(minerr.KindStorage, err, "cannot write conversation %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		return minerr.Wrap(minerr.KindStorage, err, "cannot write conversation %s", path)
	}
	return nil
}
