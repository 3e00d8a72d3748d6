// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge holds the historical vulnerability/fix corpus and
// the hybrid retrieval engine over it.
//
// The corpus lives in a relational store keyed by corpus id. An
// optional vector index accelerates similarity search; when it is
// absent, empty or broken, retrieval falls back to lexical search
// against the store. Both resources are long-lived, shared across
// pipeline runs, and read-only during a run.
package knowledge

import (
	"fmt"
	"strings"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
)

// CodeExcerpt is one before/after pair extracted from a historical fix
// commit. A record carries one or more excerpts.
type CodeExcerpt struct {
	MethodName string `json:"method_name,omitempty"`
	Before     string `json:"before"`
	After      string `json:"after"`
}

// KnowledgeRecord is one historical vulnerability/fix entry of the corpus.
//
// # Fields
//
//   - ID: corpus id, e.g. "CVE-2021-23337".
//   - Severity: ordered severity of the historical vulnerability.
//   - CWEID: optional classification id.
//   - CVSSScore: numeric severity score, used as a tiebreaker when
//     ordering lexical results.
//   - Language: language of the fixed code.
//   - Excerpts: before/after code pairs from the fix commit.
//   - FixNarrative: free-text description of how the fix works.
type KnowledgeRecord struct {
	ID           string             `json:"id"`
	Severity     datatypes.Severity `json:"severity"`
	Description  string             `json:"description"`
	CWEID        string             `json:"cwe_id,omitempty"`
	CVSSScore    float64            `json:"cvss_score"`
	Language     string             `json:"language"`
	Excerpts     []CodeExcerpt      `json:"excerpts"`
	FixNarrative string             `json:"fix_narrative"`
}

// EmbeddingText is the text encoded into the record's index vector:
// the description and fix narrative, plus the first excerpt's
// vulnerable code so that lookalike code retrieves lookalike fixes.
func (r KnowledgeRecord) EmbeddingText() string {
	parts := make([]string, 0, 3)
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	if r.FixNarrative != "" {
		parts = append(parts, r.FixNarrative)
	}
	if len(r.Excerpts) > 0 && r.Excerpts[0].Before != "" {
		parts = append(parts, r.Excerpts[0].Before)
	}
	return strings.Join(parts, "\n\n")
}

// EmbeddingMeta is the denormalized filter metadata stored in the index
// sidecar, id-ordered to mirror the vector file. Filtering on it avoids
// a full record fetch per candidate hit.
type EmbeddingMeta struct {
	RecordID string `json:"record_id"`
	Severity string `json:"severity"`
	Language string `json:"language"`
	CWEID    string `json:"cwe_id,omitempty"`
}

// Filters narrows a search to a language and/or severity. Empty fields
// match everything.
type Filters struct {
	Language string `json:"language,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// SearchHit is one ranked retrieval result.
type SearchHit struct {
	Record     KnowledgeRecord `json:"record"`
	Similarity float64         `json:"similarity"`
}

// IndexStatus reports index size versus corpus size. A mismatch means
// the index is stale and semantic search cannot be trusted until it is
// rebuilt.
type IndexStatus struct {
	IndexedRecords int  `json:"indexed_records"`
	CorpusRecords  int  `json:"corpus_records"`
	Stale          bool `json:"stale"`
}

// RetrievalError reports an unavailable or corrupt embedding index. The
// retrieval engine converts it into a lexical fallback; it never
// reaches pipeline callers.
type RetrievalError struct {
	Op      string
	Message string
	Cause   error
}

// Error implements the error interface for RetrievalError.
func (e *RetrievalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("retrieval %s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("retrieval %s: %s", e.Op, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *RetrievalError) Unwrap() error { return e.Cause }

// IsRetrievalError checks if an error is a *RetrievalError.
func IsRetrievalError(err error) bool {
	_, ok := err.(*RetrievalError)
	return ok
}
