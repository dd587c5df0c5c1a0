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

// Package discovery scans the vector store at server startup and builds a
// registry of collections, each paired with a provider rehydrated from its
// stored metadata.
//
// Availability is decided once per process. A collection whose provider
// cannot embed, whose credential is missing, or whose dimension disagrees
// with its metadata is registered as unavailable with a human-readable
// reason; the server still starts and serves whatever remains.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kadirpekel/minerva/pkg/collection"
	"github.com/kadirpekel/minerva/pkg/credentials"
	"github.com/kadirpekel/minerva/pkg/minerr"
	"github.com/kadirpekel/minerva/pkg/provider"
	"github.com/kadirpekel/minerva/pkg/vector"
)

// Entry is one discovered collection. Collection and Provider are nil when
// the entry is unavailable.
type Entry struct {
	Name       string
	Metadata   collection.Metadata
	Collection vector.Collection
	Provider   provider.Provider
	Available  bool
	Reason     string
}

// ProviderFactory builds a provider from a rehydrated config.
type ProviderFactory func(cfg provider.Config) (provider.Provider, error)

// Registry holds the frozen discovery result.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

// Option customizes discovery.
type Option func(*discoverer)

type discoverer struct {
	factory ProviderFactory
	logger  *slog.Logger
}

// WithProviderFactory replaces how providers are constructed from
// collection metadata.
func WithProviderFactory(f ProviderFactory) Option {
	return func(d *discoverer) { d.factory = f }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *discoverer) { d.logger = l }
}

// Discover probes every collection in the store and returns the registry.
// It never fails because a single collection is broken; only a store-level
// listing error is returned.
func Discover(ctx context.Context, store vector.Store, creds *credentials.Store, opts ...Option) (*Registry, error) {
	d := &discoverer{
		factory: func(cfg provider.Config) (provider.Provider, error) {
			return provider.New(cfg, creds)
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	infos, err := store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}

	reg := &Registry{entries: make(map[string]*Entry, len(infos))}
	for _, info := range infos {
		entry := d.probe(ctx, store, info)
		reg.entries[entry.Name] = entry
		reg.order = append(reg.order, entry.Name)

		if entry.Available {
			d.logger.Info("Collection available",
				"collection", entry.Name,
				"provider", entry.Metadata.EmbeddingProvider,
				"model", entry.Metadata.EmbeddingModel,
				"notes", entry.Metadata.NoteCount)
		} else {
			d.logger.Warn("Collection unavailable",
				"collection", entry.Name, "reason", entry.Reason)
		}
	}
	sort.Strings(reg.order)
	return reg, nil
}

// probe decides availability for one collection.
func (d *discoverer) probe(ctx context.Context, store vector.Store, info vector.CollectionInfo) *Entry {
	entry := &Entry{Name: info.Name}

	md, err := collection.FromMap(info.Metadata)
	if err != nil {
		entry.Reason = "collection metadata is corrupt"
		return entry
	}
	entry.Metadata = md

	if md.IsLegacy() {
		entry.Reason = "legacy v1 collection; re-index with force_recreate: true"
		return entry
	}

	p, err := d.factory(md.ProviderConfig())
	if err != nil {
		entry.Reason = fmt.Sprintf("unknown provider type %q", md.EmbeddingProvider)
		if minerr.KindOf(err) != minerr.KindConfig {
			entry.Reason = err.Error()
		}
		return entry
	}

	res := p.Check(ctx)
	if !res.Available {
		entry.Reason = res.Reason
		_ = p.Close()
		return entry
	}
	if res.Dimension != md.EmbeddingDimension {
		entry.Reason = fmt.Sprintf("dimension mismatch: provider returns %d but collection stores %d",
			res.Dimension, md.EmbeddingDimension)
		_ = p.Close()
		return entry
	}

	col, err := store.GetCollection(ctx, info.Name)
	if err != nil {
		entry.Reason = "cannot open collection: " + err.Error()
		_ = p.Close()
		return entry
	}

	entry.Collection = col
	entry.Provider = p
	entry.Available = true
	return entry
}

// Get returns the entry for a collection, failing with a distinct kind for
// unknown versus unavailable names.
func (r *Registry) Get(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil, minerr.New(minerr.KindCollectionNotFound, "collection %s does not exist", name).
			WithSuggestion("list_knowledge_bases shows the collections that can be searched")
	}
	if !entry.Available {
		return nil, minerr.New(minerr.KindCollectionUnavailable,
			"collection %s is not available: %s", name, entry.Reason)
	}
	return entry, nil
}

// Available returns the available entries in name order.
func (r *Registry) Available() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Entry
	for _, name := range r.order {
		if e := r.entries[name]; e.Available {
			out = append(out, e)
		}
	}
	return out
}

// All returns every entry in name order, unavailable ones included.
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// Close releases every provider held by available entries.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for _, e := range r.entries {
		if e.Provider == nil {
			continue
		}
		if err := e.Provider.Close(); err != nil && first == nil {
			first = err
		}
		e.Provider = nil
	}
	return first
}
