// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the data model shared by the triage,
// deep-analysis and remediation stages of the pipeline.
//
// All entities created inside a single pipeline run are append-only:
// the stages build new values and accumulate them, they never mutate
// a value after it has been handed to the next stage.
package datatypes

// StaticFinding is a pre-existing finding attached to a candidate by the
// upstream static scanner. The pipeline treats it as opaque prompt
// context; it never re-validates the finding.
type StaticFinding struct {
	Severity string `json:"severity"`
	RuleID   string `json:"rule_id"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
}

// ChangeHistory summarises the git history of a candidate file.
//
// # Fields
//
//   - TotalCommits: number of commits that touched the file.
//   - FixCommits: subset of commits whose message looks like a bug or
//     security fix. A high fix count is a strong triage signal.
type ChangeHistory struct {
	TotalCommits int `json:"total_commits"`
	FixCommits   int `json:"fix_commits"`
}

// FileCandidate is the immutable input unit of the pipeline.
//
// # Description
//
// A FileCandidate carries everything the reasoning stages need to know
// about one source file: its content, language, the structural feature
// map produced by the upstream extractor, any findings from the static
// rule scanner, and a summary of its change history.
//
// Candidates are produced by external collaborators (repository
// acquisition and feature extraction); the pipeline never reads the
// filesystem itself.
//
// # Thread Safety
//
// FileCandidate values are read-only once constructed and may be shared
// freely across concurrent stage workers.
type FileCandidate struct {
	Path          string          `json:"path" validate:"required"`
	Language      string          `json:"language"`
	Content       string          `json:"content"`
	Features      map[string]any  `json:"features,omitempty"`
	PriorFindings []StaticFinding `json:"prior_findings,omitempty"`
	History       ChangeHistory   `json:"history"`
}
