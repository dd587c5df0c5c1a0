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

// Package config loads the three JSON config shapes: index, server, and
// chat.
//
// Every loader returns a fully resolved object or a config error naming
// the offending field. Relative paths resolve against the directory of
// the config file, so a config can be run from anywhere. ${NAME}
// credential references inside provider blocks are not resolved here;
// they travel through to the credential store at call time.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kadirpekel/minerva/pkg/minerr"
	"github.com/kadirpekel/minerva/pkg/provider"
)

// MaxResultsLimit bounds default_max_results in the server config.
const MaxResultsLimit = 15

// IndexConfig drives one indexing run.
type IndexConfig struct {
	ChromaDBPath string           `json:"chromadb_path"`
	Collection   CollectionConfig `json:"collection"`
	Provider     provider.Config  `json:"provider"`
}

// CollectionConfig names the target collection and its source file.
type CollectionConfig struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	JSONFile         string `json:"json_file"`
	ChunkSize        int    `json:"chunk_size,omitempty"`
	ForceRecreate    bool   `json:"force_recreate,omitempty"`
	SkipAIValidation bool   `json:"skip_ai_validation,omitempty"`
}

// ServerConfig drives the MCP server.
type ServerConfig struct {
	ChromaDBPath      string `json:"chromadb_path"`
	DefaultMaxResults int    `json:"default_max_results,omitempty"`
	Host              string `json:"host,omitempty"`
	Port              int    `json:"port,omitempty"`
}

// ChatConfig drives the interactive chat client.
type ChatConfig struct {
	ChromaDBPath      string          `json:"chromadb_path"`
	Provider          provider.Config `json:"provider"`
	MCPServerURL      string          `json:"mcp_server_url"`
	ConversationDir   string          `json:"conversation_dir,omitempty"`
	EnableStreaming   bool            `json:"enable_streaming,omitempty"`
	MaxToolIterations int             `json:"max_tool_iterations,omitempty"`
}

// LoadIndex reads and validates an index config.
func LoadIndex(path string) (*IndexConfig, error) {
	var cfg IndexConfig
	dir, err := loadJSON(path, &cfg)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.ChromaDBPath = resolvePath(dir, cfg.ChromaDBPath)
	cfg.Collection.JSONFile = resolvePath(dir, cfg.Collection.JSONFile)
	return &cfg, nil
}

// SetDefaults fills provider defaults.
func (c *IndexConfig) SetDefaults() {
	c.Provider.SetDefaults()
}

// Validate checks the index config, naming the failing field.
func (c *IndexConfig) Validate() error {
	if c.ChromaDBPath == "" {
		return missing("chromadb_path", "set it to the vector store directory")
	}
	if c.Collection.Name == "" {
		return missing("collection.name", "name the collection to index into")
	}
	if c.Collection.Description == "" {
		return missing("collection.description", "describe the collection so agents know when to search it")
	}
	if c.Collection.JSONFile == "" {
		return missing("collection.json_file", "point it at the exported notes JSON file")
	}
	if c.Collection.ChunkSize < 0 {
		return minerr.New(minerr.KindConfig, "chunk_size must not be negative, got %d", c.Collection.ChunkSize).
			WithField("collection.chunk_size")
	}
	// Provider validation already qualifies its fields with "provider.".
	if err := c.Provider.Validate(); err != nil {
		return err
	}
	return nil
}

// LoadServer reads and validates a server config.
func LoadServer(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	dir, err := loadJSON(path, &cfg)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.ChromaDBPath = resolvePath(dir, cfg.ChromaDBPath)
	return &cfg, nil
}

// SetDefaults fills the serving defaults.
func (c *ServerConfig) SetDefaults() {
	if c.DefaultMaxResults == 0 {
		c.DefaultMaxResults = 5
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8585
	}
}

// Validate checks the server config.
func (c *ServerConfig) Validate() error {
	if c.ChromaDBPath == "" {
		return missing("chromadb_path", "set it to the vector store directory")
	}
	if c.DefaultMaxResults < 1 || c.DefaultMaxResults > MaxResultsLimit {
		return minerr.New(minerr.KindConfig,
			"default_max_results must be between 1 and %d, got %d", MaxResultsLimit, c.DefaultMaxResults).
			WithField("default_max_results")
	}
	if c.Port < 0 || c.Port > 65535 {
		return minerr.New(minerr.KindConfig, "port must be a valid TCP port, got %d", c.Port).
			WithField("port")
	}
	return nil
}

// LoadChat reads and validates a chat config.
func LoadChat(path string) (*ChatConfig, error) {
	var cfg ChatConfig
	dir, err := loadJSON(path, &cfg)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.ChromaDBPath = resolvePath(dir, cfg.ChromaDBPath)
	if cfg.ConversationDir != "" {
		cfg.ConversationDir = resolvePath(dir, cfg.ConversationDir)
	}
	return &cfg, nil
}

// SetDefaults fills the chat defaults.
func (c *ChatConfig) SetDefaults() {
	c.Provider.SetDefaults()
	if c.MaxToolIterations == 0 {
		c.MaxToolIterations = 10
	}
}

// Validate checks the chat config.
func (c *ChatConfig) Validate() error {
	if c.ChromaDBPath == "" {
		return missing("chromadb_path", "set it to the vector store directory")
	}
	if c.MCPServerURL == "" {
		return missing("mcp_server_url", "point it at a running minerva serve-http endpoint")
	}
	if c.Provider.LLMModel == "" {
		return missing("provider.llm_model", "chat requires a chat-capable model")
	}
	if c.MaxToolIterations < 1 {
		return minerr.New(minerr.KindConfig,
			"max_tool_iterations must be at least 1, got %d", c.MaxToolIterations).
			WithField("max_tool_iterations")
	}
	// Provider validation already qualifies its fields with "provider.".
	if err := c.Provider.Validate(); err != nil {
		return err
	}
	return nil
}

// loadJSON reads a config file into out and returns the config directory
// for path resolution.
func loadJSON(path string, out any) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", minerr.Wrap(minerr.KindConfig, err, "cannot read config file %s", path)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return "", minerr.Wrap(minerr.KindConfig, err, "config file %s is not valid JSON", path).
			WithSuggestion("check for trailing commas, comments, or misspelled field names")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", minerr.Wrap(minerr.KindConfig, err, "cannot resolve config path %s", path)
	}
	return filepath.Dir(abs), nil
}

// resolvePath makes a path absolute relative to the config directory.
func resolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func missing(field, suggestion string) error {
	return minerr.New(minerr.KindConfig, "%s is required", field).
		WithField(field).
		WithSuggestion("%s", suggestion)
}
