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

// Package metrics exposes Prometheus instrumentation for the indexing and
// search pipelines. Metrics register on the default registry and are served
// by the HTTP transport's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchesTotal counts search_knowledge_base calls by collection and
	// outcome ("ok" or "error").
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minerva",
		Name:      "searches_total",
		Help:      "Semantic searches served, by collection and outcome.",
	}, []string{"collection", "outcome"})

	// SearchDuration observes end-to-end search latency.
	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "minerva",
		Name:      "search_duration_seconds",
		Help:      "End-to-end search latency, embedding included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"collection"})

	// IndexRunsTotal counts indexing runs by mode ("full", "incremental",
	// "dry-run") and outcome.
	IndexRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minerva",
		Name:      "index_runs_total",
		Help:      "Indexing runs, by mode and outcome.",
	}, []string{"mode", "outcome"})

	// ChunksIndexedTotal counts chunks written to the store.
	ChunksIndexedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minerva",
		Name:      "chunks_indexed_total",
		Help:      "Chunks upserted into collections.",
	}, []string{"collection"})

	// EmbeddingRequestsTotal counts embedding API calls by provider and
	// outcome.
	EmbeddingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minerva",
		Name:      "embedding_requests_total",
		Help:      "Embedding API requests, by provider and outcome.",
	}, []string{"provider", "outcome"})

	// EmbeddingTexts counts texts embedded per provider.
	EmbeddingTexts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minerva",
		Name:      "embedding_texts_total",
		Help:      "Individual texts embedded, by provider.",
	}, []string{"provider"})

	// EstimatedResultTokens observes the estimated token footprint of
	// search responses.
	EstimatedResultTokens = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "minerva",
		Name:      "estimated_result_tokens",
		Help:      "Estimated token count of search responses.",
		Buckets:   []float64{500, 1000, 2500, 5000, 10000, 25000, 50000},
	})
)
