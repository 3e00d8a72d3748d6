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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`, true},
		{"prose wrapped", "Here is the result:\n{\"a\": 1}\nHope that helps!", `{"a": 1}`, true},
		{"code fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"nested braces", `x {"a": {"b": 2}} y`, `{"a": {"b": 2}}`, true},
		{"no object", "sorry, cannot help", "", false},
		{"only open brace", "{ broken", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSON(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeTriageResponse(t *testing.T) {
	raw := `{"scores": [
		{"path": "a.py", "score": 85, "confidence": 0.9, "rationale": "raw SQL"},
		{"path": "b.py", "score": 12.5, "confidence": 0.4, "rationale": "docs only"}
	]}`
	entries, err := decodeTriageResponse(raw)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 85.0, entries["a.py"].Score)
	assert.Equal(t, 0.4, entries["b.py"].Confidence)
}

func TestDecodeTriageResponse_Faults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no JSON", "I cannot score these files."},
		{"malformed JSON", `{"scores": [}`},
		{"empty scores", `{"scores": []}`},
		{"score above range", `{"scores": [{"path": "a.py", "score": 101, "confidence": 0.5}]}`},
		{"score below range", `{"scores": [{"path": "a.py", "score": -1, "confidence": 0.5}]}`},
		{"confidence above range", `{"scores": [{"path": "a.py", "score": 50, "confidence": 1.5}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeTriageResponse(tt.raw)
			require.Error(t, err)
			assert.True(t, IsParseError(err))
		})
	}
}

func TestDecodeTriageResponse_DropsPathlessEntries(t *testing.T) {
	raw := `{"scores": [
		{"path": "", "score": 50, "confidence": 0.5},
		{"path": "a.py", "score": 50, "confidence": 0.5}
	]}`
	entries, err := decodeTriageResponse(raw)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDecodeReportResponse(t *testing.T) {
	raw := `{
		"vulnerabilities": [{
			"title": "SQL injection",
			"severity": "critical",
			"cwe_id": "CWE-89",
			"description": "string-built query",
			"location": {"start_line": 10, "end_line": 14, "function": "get_user"},
			"code_snippet": "cursor.execute(q)",
			"impact": "full table read",
			"remediation": "parameterize",
			"confidence": 0.95
		}],
		"fix_suggestions": [{
			"description": "use placeholders",
			"original_code": "q = \"...\" + name",
			"fixed_code": "cursor.execute(q, (name,))",
			"start_line": 10,
			"end_line": 14,
			"explanation": "bind variables"
		}],
		"overall_risk": "high",
		"summary": "one injectable query"
	}`
	report, err := decodeReportResponse(raw, "db/query.py")
	require.NoError(t, err)
	assert.Equal(t, "db/query.py", report.Path)
	assert.Equal(t, datatypes.SeverityHigh, report.OverallRisk)
	require.Len(t, report.Findings, 1)
	f := report.Findings[0]
	assert.Equal(t, "db/query.py", f.FilePath)
	assert.Equal(t, datatypes.SeverityCritical, f.Severity)
	assert.Equal(t, "CWE-89", f.CWEID)
	assert.Equal(t, "get_user", f.Location.Symbol)
	assert.Equal(t, 10, f.Location.StartLine)
	require.Len(t, report.FixSuggestions, 1)
	assert.Equal(t, "use placeholders", report.FixSuggestions[0].Description)
	assert.NotEmpty(t, f.ID)
}

func TestDecodeReportResponse_UnknownSeverityCollapsesToLow(t *testing.T) {
	raw := `{"vulnerabilities": [{"title": "weird", "severity": "catastrophic", "confidence": 0.5}],
		"overall_risk": "nonsense", "summary": ""}`
	report, err := decodeReportResponse(raw, "a.py")
	require.NoError(t, err)
	assert.Equal(t, datatypes.SeverityLow, report.OverallRisk)
	assert.Equal(t, datatypes.SeverityLow, report.Findings[0].Severity)
}

func TestDecodeReportResponse_Faults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no JSON", "the file looks fine to me"},
		{"malformed JSON", `{"vulnerabilities": [`},
		{"untitled vulnerability", `{"vulnerabilities": [{"title": "", "severity": "high", "confidence": 0.5}]}`},
		{"bad confidence", `{"vulnerabilities": [{"title": "x", "severity": "high", "confidence": 2}]}`},
		{"inverted fix range", `{"fix_suggestions": [{"description": "d", "start_line": 9, "end_line": 3}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeReportResponse(tt.raw, "a.py")
			require.Error(t, err)
			assert.True(t, IsParseError(err))
		})
	}
}

func TestDecodeRemedyResponse(t *testing.T) {
	resp, err := decodeRemedyResponse(`{"remediation": "use bind variables", "fix_diff": ""}`)
	require.NoError(t, err)
	assert.Equal(t, "use bind variables", resp.Remediation)

	for name, raw := range map[string]string{
		"no JSON":           "happy to help",
		"blank remediation": `{"remediation": "   ", "fix_diff": "x"}`,
		"malformed JSON":    `{"remediation": `,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeRemedyResponse(raw)
			require.Error(t, err)
			assert.True(t, IsParseError(err))
		})
	}
}

func TestParseError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ParseError{Stage: datatypes.StageTriage, Message: "malformed JSON", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "triage")
	assert.Contains(t, err.Error(), "boom")

	bare := &ParseError{Stage: datatypes.StageRemedy, Message: "no JSON object in response"}
	assert.NotContains(t, bare.Error(), "<nil>")
	assert.False(t, IsParseError(errors.New("other")))
	assert.False(t, IsParseError(nil))
}
