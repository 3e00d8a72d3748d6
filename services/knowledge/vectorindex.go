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
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// On-disk layout of the embedding index: a vector file plus an
// id-ordered metadata sidecar. Both are rebuilt together and swapped
// into place atomically; the loader refuses a mismatched pair.
const (
	vectorFileName  = "records.vec"
	sidecarFileName = "records.meta.json"

	vectorFileMagic = "CVIGVEC1"
)

// indexHit is a position in the index with its similarity to a query.
type indexHit struct {
	pos        int
	similarity float64
}

// VectorIndex is the in-memory form of the embedding index.
//
// # Description
//
// Vectors and sidecar metadata are loaded once and then only read;
// the index is safe to share across concurrent retrieval workers
// without locking. Rebuilds write a new file pair and the engine loads
// a fresh instance, they never mutate a live one.
type VectorIndex struct {
	dim     int
	vectors [][]float32
	meta    []EmbeddingMeta
}

// sidecar is the JSON shape of the metadata file.
type sidecar struct {
	Model   string          `json:"model,omitempty"`
	Entries []EmbeddingMeta `json:"entries"`
}

// LoadVectorIndex loads the index pair from dir.
//
// An absent index is not an error: it loads as an empty index, which
// the retrieval engine treats as "fall back to lexical". A present but
// unreadable or inconsistent pair returns a *RetrievalError, because a
// half-written index must not silently serve wrong neighbours.
func LoadVectorIndex(dir string) (*VectorIndex, error) {
	vecPath := filepath.Join(dir, vectorFileName)
	metaPath := filepath.Join(dir, sidecarFileName)

	vecBytes, err := os.ReadFile(vecPath)
	if os.IsNotExist(err) {
		return &VectorIndex{}, nil
	}
	if err != nil {
		return nil, &RetrievalError{Op: "load", Message: "cannot read vector file", Cause: err}
	}
	metaBytes, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return nil, &RetrievalError{Op: "load", Message: "vector file present but sidecar missing"}
	}
	if err != nil {
		return nil, &RetrievalError{Op: "load", Message: "cannot read metadata sidecar", Cause: err}
	}

	vectors, dim, err := decodeVectorFile(vecBytes)
	if err != nil {
		return nil, &RetrievalError{Op: "load", Message: "corrupt vector file", Cause: err}
	}
	var sc sidecar
	if err := json.Unmarshal(metaBytes, &sc); err != nil {
		return nil, &RetrievalError{Op: "load", Message: "corrupt metadata sidecar", Cause: err}
	}
	if len(sc.Entries) != len(vectors) {
		return nil, &RetrievalError{Op: "load", Message: fmt.Sprintf(
			"index pair mismatch: %d vectors, %d metadata entries", len(vectors), len(sc.Entries))}
	}

	return &VectorIndex{dim: dim, vectors: vectors, meta: sc.Entries}, nil
}

// WriteVectorIndex persists vectors and their id-ordered metadata to
// dir atomically: both files are written to temp names first and then
// renamed into place, so a crashed rebuild never leaves a live index
// half-written.
func WriteVectorIndex(dir string, vectors [][]float32, meta []EmbeddingMeta, model string) error {
	if len(vectors) != len(meta) {
		return fmt.Errorf("vector/metadata length mismatch: %d vs %d", len(vectors), len(meta))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	vecBytes, err := encodeVectorFile(vectors)
	if err != nil {
		return err
	}
	metaBytes, err := json.Marshal(sidecar{Model: model, Entries: meta})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata sidecar: %w", err)
	}

	vecPath := filepath.Join(dir, vectorFileName)
	metaPath := filepath.Join(dir, sidecarFileName)
	vecTmp := vecPath + ".tmp"
	metaTmp := metaPath + ".tmp"

	if err := os.WriteFile(vecTmp, vecBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write temp vector file: %w", err)
	}
	if err := os.WriteFile(metaTmp, metaBytes, 0o644); err != nil {
		os.Remove(vecTmp)
		return fmt.Errorf("failed to write temp sidecar: %w", err)
	}
	if err := os.Rename(vecTmp, vecPath); err != nil {
		os.Remove(vecTmp)
		os.Remove(metaTmp)
		return fmt.Errorf("failed to swap vector file: %w", err)
	}
	if err := os.Rename(metaTmp, metaPath); err != nil {
		os.Remove(metaTmp)
		return fmt.Errorf("failed to swap sidecar: %w", err)
	}
	return nil
}

// Len returns the number of indexed entries.
func (ix *VectorIndex) Len() int { return len(ix.vectors) }

// Meta returns the sidecar entry at pos.
func (ix *VectorIndex) Meta(pos int) EmbeddingMeta { return ix.meta[pos] }

// Search returns the n most similar entries to query by cosine
// similarity, best first. Ties break on record id so results are
// deterministic.
func (ix *VectorIndex) Search(query []float32, n int) ([]indexHit, error) {
	if ix.Len() == 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, &RetrievalError{Op: "search", Message: fmt.Sprintf(
			"query dimension %d does not match index dimension %d", len(query), ix.dim)}
	}

	hits := make([]indexHit, 0, ix.Len())
	for pos, vec := range ix.vectors {
		hits = append(hits, indexHit{pos: pos, similarity: cosineSimilarity(query, vec)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].similarity != hits[j].similarity {
			return hits[i].similarity > hits[j].similarity
		}
		return ix.meta[hits[i].pos].RecordID < ix.meta[hits[j].pos].RecordID
	})
	if n < len(hits) {
		hits = hits[:n]
	}
	return hits, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func encodeVectorFile(vectors [][]float32) ([]byte, error) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if _, err := w.WriteString(vectorFileMagic); err != nil {
		return nil, fmt.Errorf("failed to write vector file header: %w", err)
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(dim)); err != nil {
		return nil, fmt.Errorf("failed to write vector dimension: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(vectors))); err != nil {
		return nil, fmt.Errorf("failed to write vector count: %w", err)
	}
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(vec), dim)
		}
		if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("failed to write vector %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush vector file: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVectorFile(data []byte) ([][]float32, int, error) {
	r := bytes.NewReader(data)
	magic := make([]byte, len(vectorFileMagic))
	if _, err := r.Read(magic); err != nil || string(magic) != vectorFileMagic {
		return nil, 0, fmt.Errorf("bad vector file magic")
	}
	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, 0, fmt.Errorf("failed to read vector dimension: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, 0, fmt.Errorf("failed to read vector count: %w", err)
	}
	vectors := make([][]float32, 0, count)
	for i := uint32(0); i < count; i++ {
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, 0, fmt.Errorf("failed to read vector %d: %w", i, err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, int(dim), nil
}
