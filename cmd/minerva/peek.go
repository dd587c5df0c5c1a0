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
	"sort"
	"text/tabwriter"

	"github.com/kadirpekel/minerva/pkg/collection"
	"github.com/kadirpekel/minerva/pkg/vector"
)

// PeekCmd shows what a collection contains. Read-only; it never touches
// providers or credentials.
type PeekCmd struct {
	Collection string `arg:"" optional:"" help:"Collection name (omit to list all)."`
	ChromaDB   string `required:"" type:"path" help:"Vector store directory."`
	Format     string `help:"Output format (table or json)." enum:"table,json" default:"table"`
}

func (c *PeekCmd) Run() error {
	ctx := context.Background()

	store, err := vector.NewChromemStore(c.ChromaDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if c.Collection == "" {
		return c.list(ctx, store)
	}
	return c.show(ctx, store)
}

func (c *PeekCmd) list(ctx context.Context, store vector.Store) error {
	infos, err := store.ListCollections(ctx)
	if err != nil {
		return err
	}

	if c.Format == "json" {
		return printJSON(infos)
	}

	if len(infos) == 0 {
		fmt.Println("No collections.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tPROVIDER\tMODEL\tNOTES\tUPDATED")
	for _, info := range infos {
		md, err := collection.FromMap(info.Metadata)
		if err != nil {
			fmt.Fprintf(w, "%s\t(corrupt metadata)\t\t\t\t\n", info.Name)
			continue
		}
		version := md.Version
		if md.IsLegacy() {
			version = "v1 (legacy)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			info.Name, version, md.EmbeddingProvider, md.EmbeddingModel, md.NoteCount, md.LastUpdated)
	}
	return w.Flush()
}

func (c *PeekCmd) show(ctx context.Context, store vector.Store) error {
	col, err := store.GetCollection(ctx, c.Collection)
	if err != nil {
		return err
	}

	md, err := collection.FromMap(col.Metadata())
	if err != nil {
		return err
	}

	states, err := col.NoteStates(ctx)
	if err != nil {
		return err
	}

	if c.Format == "json" {
		return printJSON(map[string]any{
			"name":        c.Collection,
			"metadata":    col.Metadata(),
			"chunk_count": col.Count(),
			"note_count":  len(states),
		})
	}

	fmt.Printf("Collection:  %s\n", c.Collection)
	fmt.Printf("Description: %s\n", md.Description)
	fmt.Printf("Version:     %s\n", md.Version)
	fmt.Printf("Provider:    %s / %s (dimension %d)\n", md.EmbeddingProvider, md.EmbeddingModel, md.EmbeddingDimension)
	fmt.Printf("Chunk size:  %d\n", md.ChunkSize)
	fmt.Printf("Notes:       %d  Chunks: %d\n", md.NoteCount, col.Count())
	fmt.Printf("Created:     %s  Updated: %s\n", md.CreatedAt, md.LastUpdated)

	if len(states) > 0 {
		fmt.Println("\nNotes (by chunk count):")
		type row struct {
			id     string
			chunks int
		}
		rows := make([]row, 0, len(states))
		for id, st := range states {
			rows = append(rows, row{id, len(st.ChunkIDs)})
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].chunks != rows[j].chunks {
				return rows[i].chunks > rows[j].chunks
			}
			return rows[i].id < rows[j].id
		})
		for _, r := range rows {
			fmt.Printf("  %s  %d chunks\n", r.id, r.chunks)
		}
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
