// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
)

// ParseError reports a model response that could not be decoded into
// the expected structure. Callers degrade on it; it never aborts a run.
type ParseError struct {
	Stage   datatypes.Stage
	Message string
	Cause   error
}

// Error implements the error interface for ParseError.
func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse %s response: %s: %v", e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("parse %s response: %s", e.Stage, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *ParseError) Unwrap() error { return e.Cause }

// IsParseError checks if an error is a *ParseError.
func IsParseError(err error) bool {
	_, ok := err.(*ParseError)
	return ok
}

// extractJSON cuts the substring between the first '{' and the last
// '}' of a model response. Models wrap JSON in prose and code fences
// despite instructions; everything outside the braces is noise.
func extractJSON(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// triageScoreEntry is one per-file entry of a triage response.
type triageScoreEntry struct {
	Path       string  `json:"path"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

type triageResponse struct {
	Scores []triageScoreEntry `json:"scores"`
}

// decodeTriageResponse parses one batch triage answer and validates
// score ranges. Entries for unknown paths are dropped; missing entries
// are the caller's problem (it fills per-file defaults).
func decodeTriageResponse(raw string) (map[string]triageScoreEntry, error) {
	payload, ok := extractJSON(raw)
	if !ok {
		return nil, &ParseError{Stage: datatypes.StageTriage, Message: "no JSON object in response"}
	}
	var resp triageResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, &ParseError{Stage: datatypes.StageTriage, Message: "malformed JSON", Cause: err}
	}
	if len(resp.Scores) == 0 {
		return nil, &ParseError{Stage: datatypes.StageTriage, Message: "response carries no scores"}
	}

	entries := make(map[string]triageScoreEntry, len(resp.Scores))
	for _, entry := range resp.Scores {
		if entry.Path == "" {
			continue
		}
		if entry.Score < 0 || entry.Score > 100 {
			return nil, &ParseError{Stage: datatypes.StageTriage, Message: fmt.Sprintf(
				"score %.2f for %q outside [0,100]", entry.Score, entry.Path)}
		}
		if entry.Confidence < 0 || entry.Confidence > 1 {
			return nil, &ParseError{Stage: datatypes.StageTriage, Message: fmt.Sprintf(
				"confidence %.2f for %q outside [0,1]", entry.Confidence, entry.Path)}
		}
		entries[entry.Path] = entry
	}
	return entries, nil
}

// Wire shapes of the deep-analysis response. Field names follow the
// prompt contract exactly.
type reportResponse struct {
	Vulnerabilities []vulnerabilityEntry `json:"vulnerabilities"`
	FixSuggestions  []fixSuggestionEntry `json:"fix_suggestions"`
	OverallRisk     string               `json:"overall_risk"`
	Summary         string               `json:"summary"`
}

type vulnerabilityEntry struct {
	Title       string        `json:"title"`
	Severity    string        `json:"severity"`
	CWEID       string        `json:"cwe_id"`
	Description string        `json:"description"`
	Location    locationEntry `json:"location"`
	CodeSnippet string        `json:"code_snippet"`
	Impact      string        `json:"impact"`
	Remediation string        `json:"remediation"`
	Confidence  float64       `json:"confidence"`
}

type locationEntry struct {
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Function  string `json:"function"`
}

type fixSuggestionEntry struct {
	Description  string `json:"description"`
	OriginalCode string `json:"original_code"`
	FixedCode    string `json:"fixed_code"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	Explanation  string `json:"explanation"`
}

// decodeReportResponse parses one deep-analysis answer into a file
// report. Unknown severities collapse to low rather than failing the
// whole file; untitled vulnerability entries are rejected because a
// finding without a title is unusable downstream.
func decodeReportResponse(raw, path string) (*datatypes.FileReport, error) {
	payload, ok := extractJSON(raw)
	if !ok {
		return nil, &ParseError{Stage: datatypes.StageDeepScan, Message: "no JSON object in response"}
	}
	var resp reportResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, &ParseError{Stage: datatypes.StageDeepScan, Message: "malformed JSON", Cause: err}
	}

	report := &datatypes.FileReport{
		Path:        path,
		OverallRisk: datatypes.ParseSeverity(resp.OverallRisk),
		Summary:     resp.Summary,
	}
	for _, v := range resp.Vulnerabilities {
		if v.Title == "" {
			return nil, &ParseError{Stage: datatypes.StageDeepScan, Message: "vulnerability entry without title"}
		}
		if v.Confidence < 0 || v.Confidence > 1 {
			return nil, &ParseError{Stage: datatypes.StageDeepScan, Message: fmt.Sprintf(
				"confidence %.2f outside [0,1] for %q", v.Confidence, v.Title)}
		}
		report.Findings = append(report.Findings, datatypes.VulnerabilityFinding{
			ID:          uuid.NewString(),
			FilePath:    path,
			Title:       v.Title,
			Severity:    datatypes.ParseSeverity(v.Severity),
			CWEID:       v.CWEID,
			Description: v.Description,
			Location: datatypes.Location{
				StartLine: v.Location.StartLine,
				EndLine:   v.Location.EndLine,
				Symbol:    v.Location.Function,
			},
			CodeSnippet: v.CodeSnippet,
			Impact:      v.Impact,
			Remediation: v.Remediation,
			Confidence:  v.Confidence,
		})
	}
	for _, f := range resp.FixSuggestions {
		if f.EndLine < f.StartLine {
			return nil, &ParseError{Stage: datatypes.StageDeepScan, Message: fmt.Sprintf(
				"fix suggestion range inverted: %d..%d", f.StartLine, f.EndLine)}
		}
		report.FixSuggestions = append(report.FixSuggestions, datatypes.FixSuggestion{
			Description:  f.Description,
			OriginalCode: f.OriginalCode,
			FixedCode:    f.FixedCode,
			StartLine:    f.StartLine,
			EndLine:      f.EndLine,
			Explanation:  f.Explanation,
		})
	}
	return report, nil
}

type remedyResponse struct {
	Remediation string `json:"remediation"`
	FixDiff     string `json:"fix_diff"`
}

// decodeRemedyResponse parses one remediation-enhancement answer. An
// empty remediation field counts as a parse failure so the caller keeps
// the finding's original guidance.
func decodeRemedyResponse(raw string) (*remedyResponse, error) {
	payload, ok := extractJSON(raw)
	if !ok {
		return nil, &ParseError{Stage: datatypes.StageRemedy, Message: "no JSON object in response"}
	}
	var resp remedyResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, &ParseError{Stage: datatypes.StageRemedy, Message: "malformed JSON", Cause: err}
	}
	if strings.TrimSpace(resp.Remediation) == "" {
		return nil, &ParseError{Stage: datatypes.StageRemedy, Message: "response carries no remediation"}
	}
	return &resp, nil
}
