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
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kadirpekel/minerva/pkg/config"
	"github.com/kadirpekel/minerva/pkg/credentials"
	"github.com/kadirpekel/minerva/pkg/indexer"
	"github.com/kadirpekel/minerva/pkg/logger"
	"github.com/kadirpekel/minerva/pkg/notes"
	"github.com/kadirpekel/minerva/pkg/provider"
	"github.com/kadirpekel/minerva/pkg/vector"
)

// IndexCmd runs one indexing pass.
type IndexCmd struct {
	Config  string `short:"c" required:"" type:"path" help:"Path to the index config JSON."`
	DryRun  bool   `help:"Report the plan without embedding or writing."`
	Verbose bool   `short:"v" help:"Debug logging."`
}

func (c *IndexCmd) Run() error {
	if c.Verbose {
		logger.Init(slog.LevelDebug, os.Stderr, "simple")
	}
	ctx := context.Background()

	cfg, err := config.LoadIndex(c.Config)
	if err != nil {
		return err
	}

	loaded, err := notes.Load(cfg.Collection.JSONFile)
	if err != nil {
		return err
	}

	p, err := provider.New(cfg.Provider, credentials.NewStore())
	if err != nil {
		return err
	}
	defer p.Close()

	store, err := vector.NewChromemStore(cfg.ChromaDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ix := indexer.New(store, p, cfg.Provider, indexer.WithDryRun(c.DryRun))
	stats, err := ix.Index(ctx, indexer.CollectionSpec{
		Name:             cfg.Collection.Name,
		Description:      cfg.Collection.Description,
		JSONFile:         cfg.Collection.JSONFile,
		ChunkSize:        cfg.Collection.ChunkSize,
		ForceRecreate:    cfg.Collection.ForceRecreate,
		SkipAIValidation: cfg.Collection.SkipAIValidation,
	}, loaded)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %q (%s) in %s\n", cfg.Collection.Name, stats.Mode, stats.Elapsed.Round(time.Millisecond))
	fmt.Printf("  notes: %d  chunks: %d\n", stats.Notes, stats.Chunks)
	if stats.Mode == "incremental" {
		fmt.Printf("  added: %d  updated: %d  deleted: %d  unchanged: %d\n",
			stats.Added, stats.Updated, stats.Deleted, stats.Unchanged)
	}
	if stats.Failed > 0 {
		fmt.Printf("  failed notes (skipped): %d\n", stats.Failed)
	}
	return nil
}
