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
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/Balmy-afterGlow/CodeVigil/pkg/validation"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
)

const schema = `
CREATE TABLE IF NOT EXISTS knowledge_records (
	id            TEXT PRIMARY KEY,
	severity      TEXT NOT NULL,
	description   TEXT NOT NULL,
	cwe_id        TEXT,
	cvss_score    REAL NOT NULL DEFAULT 0,
	language      TEXT NOT NULL DEFAULT '',
	fix_narrative TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS record_excerpts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id   TEXT NOT NULL REFERENCES knowledge_records(id) ON DELETE CASCADE,
	method_name TEXT,
	code_before TEXT NOT NULL,
	code_after  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_severity ON knowledge_records(severity);
CREATE INDEX IF NOT EXISTS idx_records_language ON knowledge_records(language);
CREATE INDEX IF NOT EXISTS idx_excerpts_record ON record_excerpts(record_id);
`

// severityRankSQL orders lexical results critical-first. Kept as a SQL
// fragment so both lexical queries share one definition.
const severityRankSQL = `CASE severity
	WHEN 'critical' THEN 4
	WHEN 'high' THEN 3
	WHEN 'medium' THEN 2
	WHEN 'low' THEN 1
	ELSE 0 END`

// Store is the relational knowledge corpus.
//
// # Thread Safety
//
// Safe for concurrent use. The corpus is read-mostly: writes happen
// during seeding and maintenance, never during a pipeline run.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if necessary creates) the corpus database at
// path. The parent directory is created when missing.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create knowledge store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply knowledge store schema: %w", err)
	}
	slog.Info("Knowledge store ready", "path", path)
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Put inserts or replaces one record and its excerpts. The record id
// must be a well-formed corpus id.
func (s *Store) Put(ctx context.Context, rec KnowledgeRecord) error {
	if err := validation.ValidateRecordID(rec.ID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO knowledge_records
			(id, severity, description, cwe_id, cvss_score, language, fix_narrative)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Severity), rec.Description, rec.CWEID,
		rec.CVSSScore, rec.Language, rec.FixNarrative)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM record_excerpts WHERE record_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("failed to clear excerpts for %s: %w", rec.ID, err)
	}
	for _, ex := range rec.Excerpts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO record_excerpts (record_id, method_name, code_before, code_after)
			VALUES (?, ?, ?, ?)`,
			rec.ID, ex.MethodName, ex.Before, ex.After)
		if err != nil {
			return fmt.Errorf("failed to insert excerpt for %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// PutAll inserts or replaces a batch of records. Every id is validated
// before anything is written, so one malformed id rejects the whole
// batch with an error naming all offenders.
func (s *Store) PutAll(ctx context.Context, records []KnowledgeRecord) error {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	if err := validation.ValidateRecordIDs(ids); err != nil {
		return err
	}
	for _, rec := range records {
		if err := s.Put(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Get fetches one full record by corpus id. Returns (nil, nil) when the
// id is unknown.
func (s *Store) Get(ctx context.Context, id string) (*KnowledgeRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, severity, description, COALESCE(cwe_id, ''), cvss_score, language, fix_narrative
		FROM knowledge_records WHERE id = ?`, id)

	var rec KnowledgeRecord
	var severity string
	err := row.Scan(&rec.ID, &severity, &rec.Description, &rec.CWEID,
		&rec.CVSSScore, &rec.Language, &rec.FixNarrative)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch record %s: %w", id, err)
	}
	rec.Severity = datatypes.Severity(severity)

	rec.Excerpts, err = s.excerpts(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Count returns the number of records in the corpus.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// LexicalSearch runs the fallback substring search: description and fix
// narrative matched against the query, filtered, ordered by severity
// rank then CVSS score. It never fails on an empty corpus or an empty
// query; both simply narrow the result set.
func (s *Store) LexicalSearch(ctx context.Context, query string, filters Filters, k int) ([]SearchHit, error) {
	if k <= 0 {
		return nil, nil
	}

	where := []string{"1=1"}
	args := []any{}
	if q := strings.TrimSpace(query); q != "" {
		where = append(where, "(description LIKE ? OR fix_narrative LIKE ?)")
		pattern := "%" + q + "%"
		args = append(args, pattern, pattern)
	}
	if filters.Language != "" {
		where = append(where, "language = ?")
		args = append(args, filters.Language)
	}
	if filters.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, filters.Severity)
	}
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id FROM knowledge_records
		WHERE %s
		ORDER BY %s DESC, cvss_score DESC, id
		LIMIT ?`, strings.Join(where, " AND "), severityRankSQL), args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("lexical search scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lexical search iteration failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(ids))
	for rank, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		// Lexical results carry a rank-derived pseudo-similarity so the
		// hit shape is uniform across both retrieval paths.
		hits = append(hits, SearchHit{Record: *rec, Similarity: 1.0 - float64(rank)*0.05})
	}
	return hits, nil
}

// ListForIndex streams the (optionally filtered, capped) corpus subset
// that an index rebuild encodes, ordered by id so the vector file and
// sidecar are deterministic.
func (s *Store) ListForIndex(ctx context.Context, filters Filters, maxRecords int) ([]KnowledgeRecord, error) {
	where := []string{"1=1"}
	args := []any{}
	if filters.Language != "" {
		where = append(where, "language = ?")
		args = append(args, filters.Language)
	}
	if filters.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, filters.Severity)
	}
	limit := maxRecords
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id FROM knowledge_records WHERE %s ORDER BY id LIMIT ?`,
		strings.Join(where, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records for index: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("record listing failed: %w", err)
	}

	records := make([]KnowledgeRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

func (s *Store) excerpts(ctx context.Context, recordID string) ([]CodeExcerpt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(method_name, ''), code_before, code_after
		FROM record_excerpts WHERE record_id = ? ORDER BY id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch excerpts for %s: %w", recordID, err)
	}
	defer rows.Close()

	var excerpts []CodeExcerpt
	for rows.Next() {
		var ex CodeExcerpt
		if err := rows.Scan(&ex.MethodName, &ex.Before, &ex.After); err != nil {
			return nil, fmt.Errorf("failed to scan excerpt for %s: %w", recordID, err)
		}
		excerpts = append(excerpts, ex)
	}
	return excerpts, rows.Err()
}
