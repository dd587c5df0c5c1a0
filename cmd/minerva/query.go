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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kadirpekel/minerva/pkg/credentials"
	"github.com/kadirpekel/minerva/pkg/discovery"
	"github.com/kadirpekel/minerva/pkg/minerr"
	"github.com/kadirpekel/minerva/pkg/search"
	"github.com/kadirpekel/minerva/pkg/vector"
)

// QueryCmd searches a collection directly against the store, without a
// running server.
type QueryCmd struct {
	Path  string `arg:"" type:"path" help:"Vector store directory."`
	Query string `arg:"" help:"Search query."`

	Collection string `help:"Collection to search (required when more than one is available)."`
	MaxResults int    `help:"Maximum number of results." default:"5"`
	Format     string `help:"Output format (text or json)." enum:"text,json" default:"text"`
}

func (c *QueryCmd) Run() error {
	ctx := context.Background()

	store, err := vector.NewChromemStore(c.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	reg, err := discovery.Discover(ctx, store, credentials.NewStore())
	if err != nil {
		return err
	}
	defer reg.Close()

	name := c.Collection
	if name == "" {
		available := reg.Available()
		switch len(available) {
		case 0:
			return minerr.New(minerr.KindCollectionUnavailable, "no collections are available in %s", c.Path).
				WithSuggestion("index one first: minerva index --config <index config>")
		case 1:
			name = available[0].Name
		default:
			var names []string
			for _, e := range available {
				names = append(names, e.Name)
			}
			return minerr.New(minerr.KindValidation,
				"multiple collections are available; pick one with --collection").
				WithSuggestion("available: %s", strings.Join(names, ", "))
		}
	}

	resp, err := search.New(reg).Search(ctx, search.Request{
		Collection:  name,
		Query:       c.Query,
		MaxResults:  c.MaxResults,
		ContextMode: search.ContextChunkOnly,
	})
	if err != nil {
		return err
	}

	if c.Format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if len(resp.Results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range resp.Results {
		fmt.Printf("%d. %s  (score %.3f, chunk %d, modified %s)\n",
			i+1, r.NoteTitle, r.SimilarityScore, r.ChunkIndex, r.ModificationDate)
		fmt.Println(indent(strings.TrimSpace(r.Content), "   "))
		fmt.Println()
	}
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
