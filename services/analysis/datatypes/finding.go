// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// Location pins a finding to a line range and, when the model could name
// it, the enclosing symbol.
type Location struct {
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Symbol    string `json:"symbol,omitempty"`
}

// VulnerabilityFinding is one vulnerability extracted by deep analysis.
//
// # Description
//
// A finding belongs to exactly one FileCandidate (FilePath). Remediation
// starts as the deep-analysis suggestion and is replaced in place by the
// remediation-synthesis stage when retrieval-augmented enhancement
// succeeds; Enhanced and ReferencedRecords record whether and from which
// corpus records that happened.
//
// # Fields
//
//   - ID: unique id assigned when the finding is parsed.
//   - FilePath: the candidate this finding belongs to.
//   - Severity: ordered severity (critical > high > medium > low).
//   - CWEID: optional classification id, e.g. "CWE-89".
//   - Confidence: model confidence in [0,1].
//   - FixDiff: optional unified diff produced by remediation synthesis.
type VulnerabilityFinding struct {
	ID                string   `json:"id"`
	FilePath          string   `json:"file_path"`
	Title             string   `json:"title"`
	Severity          Severity `json:"severity"`
	CWEID             string   `json:"cwe_id,omitempty"`
	Description       string   `json:"description"`
	Location          Location `json:"location"`
	CodeSnippet       string   `json:"code_snippet"`
	Impact            string   `json:"impact"`
	Remediation       string   `json:"remediation"`
	Confidence        float64  `json:"confidence"`
	Enhanced          bool     `json:"enhanced"`
	ReferencedRecords []string `json:"referenced_records,omitempty"`
	FixDiff           string   `json:"fix_diff,omitempty"`
}

// FixSuggestion is a concrete before/after rewrite proposed by deep
// analysis. EndLine is always >= StartLine; the parser rejects inverted
// ranges.
type FixSuggestion struct {
	Description  string `json:"description"`
	OriginalCode string `json:"original_code"`
	FixedCode    string `json:"fixed_code"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	Explanation  string `json:"explanation"`
}

// FileReport is the per-file output of the deep-analysis stage: zero or
// more findings plus fix suggestions, an overall risk judgement and a
// one-paragraph summary.
type FileReport struct {
	Path           string                 `json:"path"`
	Findings       []VulnerabilityFinding `json:"findings"`
	FixSuggestions []FixSuggestion        `json:"fix_suggestions"`
	OverallRisk    Severity               `json:"overall_risk"`
	Summary        string                 `json:"summary"`
	Elapsed        time.Duration          `json:"elapsed"`
}
