// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var retrieverTracer = otel.Tracer("codevigil.knowledge")

// overFetchFactor widens the vector candidate set before metadata
// post-filtering so that severity/language filters do not starve the
// final result below k.
const overFetchFactor = 3

// RetrievalEngine serves similarity queries over the vulnerability
// corpus.
//
// # Description
//
// The engine prefers the embedding index: it embeds the query, takes
// an over-fetched neighbour set, filters it on sidecar metadata,
// truncates to k, and hydrates full records from the store. When the
// vector path is unavailable for any reason (no index on disk, a
// corrupt file pair, an embedding failure) it falls back to the
// store's lexical search. Search therefore never fails on an engine
// fault; it degrades.
type RetrievalEngine struct {
	store    *Store
	embedder Embedder
	indexDir string
	logger   *slog.Logger

	mu    sync.RWMutex
	index *VectorIndex
}

// NewRetrievalEngine wires a retrieval engine over an open store.
//
// The on-disk index is loaded lazily on first use; an engine over a
// corpus with no index is valid and serves lexical results.
func NewRetrievalEngine(store *Store, embedder Embedder, indexDir string, logger *slog.Logger) *RetrievalEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalEngine{
		store:    store,
		embedder: embedder,
		indexDir: indexDir,
		logger:   logger,
	}
}

// Search returns up to k records relevant to query, best match first.
//
// # Description
//
// Runs the hybrid retrieval described on RetrievalEngine. Filters are
// optional; zero-valued fields match everything. k <= 0 returns an
// empty result. An empty corpus returns an empty result. The lexical
// fallback swallows vector-path faults, so the only errors surfaced
// here are store-level ones from the fallback itself.
func (e *RetrievalEngine) Search(ctx context.Context, query string, k int, filters Filters) ([]SearchHit, error) {
	ctx, span := retrieverTracer.Start(ctx, "knowledge.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieval.k", k))

	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	hits, err := e.vectorSearch(ctx, query, k, filters)
	if err == nil {
		span.SetAttributes(attribute.String("retrieval.mode", "vector"))
		return hits, nil
	}

	e.logger.Warn("vector retrieval unavailable, falling back to lexical search",
		"error", err)
	span.SetAttributes(attribute.String("retrieval.mode", "lexical"))
	return e.store.LexicalSearch(ctx, query, filters, k)
}

// vectorSearch runs the embedding path end to end. Any error here
// means "use the fallback", not "fail the query".
func (e *RetrievalEngine) vectorSearch(ctx context.Context, query string, k int, filters Filters) ([]SearchHit, error) {
	if e.embedder == nil {
		return nil, &RetrievalError{Op: "search", Message: "no embedder configured"}
	}
	index, err := e.loadIndex()
	if err != nil {
		return nil, err
	}
	if index.Len() == 0 {
		return nil, &RetrievalError{Op: "search", Message: "embedding index is empty"}
	}

	vecs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &RetrievalError{Op: "search", Message: "query embedding failed", Cause: err}
	}
	if len(vecs) != 1 {
		return nil, &RetrievalError{Op: "search", Message: fmt.Sprintf(
			"embedder returned %d vectors for one query", len(vecs))}
	}

	candidates, err := index.Search(vecs[0], k*overFetchFactor)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, k)
	for _, cand := range candidates {
		if len(hits) == k {
			break
		}
		meta := index.Meta(cand.pos)
		if !filters.matchMeta(meta) {
			continue
		}
		rec, err := e.store.Get(ctx, meta.RecordID)
		if err != nil {
			return nil, &RetrievalError{Op: "search", Message: "record hydration failed", Cause: err}
		}
		if rec == nil {
			// Index references a record the corpus no longer holds;
			// the index is stale, skip the entry.
			continue
		}
		hits = append(hits, SearchHit{Record: *rec, Similarity: cand.similarity})
	}
	return hits, nil
}

// Rebuild regenerates the embedding index from the corpus.
//
// # Description
//
// Loads the filtered corpus in id order, embeds one text per record,
// and writes the vector file and metadata sidecar atomically. The live
// in-memory index is replaced only after the new pair is on disk. An
// empty selection writes an empty but valid index.
//
// # Errors
//
// Returns *RetrievalError when the corpus cannot be read or the
// embedder fails; the previous on-disk index is left untouched.
func (e *RetrievalEngine) Rebuild(ctx context.Context, filters Filters, maxRecords int) (int, error) {
	ctx, span := retrieverTracer.Start(ctx, "knowledge.Rebuild")
	defer span.End()

	if e.embedder == nil {
		return 0, &RetrievalError{Op: "rebuild", Message: "no embedder configured"}
	}

	records, err := e.store.ListForIndex(ctx, filters, maxRecords)
	if err != nil {
		return 0, &RetrievalError{Op: "rebuild", Message: "corpus listing failed", Cause: err}
	}

	texts := make([]string, len(records))
	meta := make([]EmbeddingMeta, len(records))
	for i, rec := range records {
		texts[i] = rec.EmbeddingText()
		meta[i] = EmbeddingMeta{
			RecordID: rec.ID,
			Severity: string(rec.Severity),
			Language: rec.Language,
			CWEID:    rec.CWEID,
		}
	}

	var vectors [][]float32
	if len(texts) > 0 {
		vectors, err = e.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, &RetrievalError{Op: "rebuild", Message: "corpus embedding failed", Cause: err}
		}
		if len(vectors) != len(texts) {
			return 0, &RetrievalError{Op: "rebuild", Message: fmt.Sprintf(
				"embedder returned %d vectors for %d records", len(vectors), len(texts))}
		}
	}

	if err := WriteVectorIndex(e.indexDir, vectors, meta, e.embedder.Model()); err != nil {
		return 0, &RetrievalError{Op: "rebuild", Message: "index write failed", Cause: err}
	}

	fresh := &VectorIndex{vectors: vectors, meta: meta}
	if len(vectors) > 0 {
		fresh.dim = len(vectors[0])
	}
	e.mu.Lock()
	e.index = fresh
	e.mu.Unlock()

	span.SetAttributes(attribute.Int("retrieval.indexed", len(records)))
	e.logger.Info("embedding index rebuilt",
		"indexed_records", len(records),
		"index_dir", e.indexDir)
	return len(records), nil
}

// Status reports index freshness against the corpus.
//
// Staleness is a count comparison: the index is stale whenever the
// number of indexed entries differs from the number of corpus records.
// A stale index still serves queries; this is advisory.
func (e *RetrievalEngine) Status(ctx context.Context) (IndexStatus, error) {
	ctx, span := retrieverTracer.Start(ctx, "knowledge.Status")
	defer span.End()

	corpus, err := e.store.Count(ctx)
	if err != nil {
		return IndexStatus{}, &RetrievalError{Op: "status", Message: "corpus count failed", Cause: err}
	}

	indexed := 0
	if index, err := e.loadIndex(); err == nil {
		indexed = index.Len()
	} else {
		e.logger.Warn("embedding index unreadable, reporting zero indexed records", "error", err)
	}

	return IndexStatus{
		IndexedRecords: indexed,
		CorpusRecords:  corpus,
		Stale:          indexed != corpus,
	}, nil
}

// loadIndex returns the cached index, loading it from disk on first
// use.
func (e *RetrievalEngine) loadIndex() (*VectorIndex, error) {
	e.mu.RLock()
	if e.index != nil {
		defer e.mu.RUnlock()
		return e.index, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index != nil {
		return e.index, nil
	}
	index, err := LoadVectorIndex(e.indexDir)
	if err != nil {
		return nil, err
	}
	e.index = index
	return index, nil
}

// matchMeta mirrors the store's filter semantics on sidecar entries.
func (f Filters) matchMeta(meta EmbeddingMeta) bool {
	if f.Language != "" && !strings.EqualFold(f.Language, meta.Language) {
		return false
	}
	if f.Severity != "" && f.Severity != meta.Severity {
		return false
	}
	return true
}
