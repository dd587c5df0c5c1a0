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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/minerva/pkg/config"
)

// SchemaCmd emits JSON Schema for one of the config file shapes, for
// editor completion and config validation tooling.
type SchemaCmd struct {
	Shape   string `arg:"" optional:"" enum:"index,server,chat," help:"Config shape (index, server, or chat; omit for all three)."`
	Compact bool   `help:"Compact JSON output."`
}

func (c *SchemaCmd) Run() error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	shapes := map[string]any{
		"index":  &config.IndexConfig{},
		"server": &config.ServerConfig{},
		"chat":   &config.ChatConfig{},
	}

	var out any
	if c.Shape != "" {
		out = reflector.Reflect(shapes[c.Shape])
	} else {
		all := map[string]*jsonschema.Schema{}
		for name, shape := range shapes {
			all[name] = reflector.Reflect(shape)
		}
		out = all
	}

	enc := json.NewEncoder(os.Stdout)
	if !c.Compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("cannot encode schema: %w", err)
	}
	return nil
}
