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
	"fmt"

	"github.com/kadirpekel/minerva/pkg/notes"
)

// ValidateCmd checks a notes JSON file against the schema without
// touching providers or the store.
type ValidateCmd struct {
	File    string `arg:"" type:"path" help:"Notes JSON file."`
	Verbose bool   `short:"v" help:"Print per-note details."`
}

func (c *ValidateCmd) Run() error {
	loaded, err := notes.Load(c.File)
	if err != nil {
		return err
	}

	totalBytes := int64(0)
	empty := 0
	for _, n := range loaded {
		totalBytes += n.Size
		if n.Markdown == "" {
			empty++
		}
		if c.Verbose {
			fmt.Printf("  %s  %q  %d bytes  modified %s\n", n.ID(), n.Title, n.Size, n.ModificationDate)
		}
	}

	fmt.Printf("%s is valid: %d notes, %d bytes of markdown", c.File, len(loaded), totalBytes)
	if empty > 0 {
		fmt.Printf(" (%d empty)", empty)
	}
	fmt.Println()
	return nil
}
