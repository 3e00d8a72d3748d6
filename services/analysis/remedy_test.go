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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
	"github.com/Balmy-afterGlow/CodeVigil/services/knowledge"
)

func sqlInjectionFinding() datatypes.VulnerabilityFinding {
	return datatypes.VulnerabilityFinding{
		FilePath:    "db/query.py",
		Title:       "SQL injection in user lookup",
		Severity:    datatypes.SeverityCritical,
		CWEID:       "CWE-89",
		Description: "SQL injection",
		CodeSnippet: `cursor.execute("SELECT * FROM users WHERE id = '%s'" % uid)`,
		Remediation: "sanitize input",
		Confidence:  0.9,
	}
}

func sqlInjectionHit() knowledge.SearchHit {
	return knowledge.SearchHit{
		Record: knowledge.KnowledgeRecord{
			ID:          "sql-injection-001",
			Severity:    datatypes.SeverityCritical,
			Description: "SQL injection via string concatenation",
			CWEID:       "CWE-89",
			Language:    "python",
			Excerpts: []knowledge.CodeExcerpt{{
				Before: `cursor.execute("... %s" % uid)`,
				After:  `cursor.execute("... %s", (uid,))`,
			}},
			FixNarrative: "Use parameterized queries.",
		},
		Similarity: 0.92,
	}
}

func TestRemedy_EnhancesWithCorpusReferences(t *testing.T) {
	findings := []datatypes.VulnerabilityFinding{sqlInjectionFinding()}
	retriever := &MockRetriever{Hits: []knowledge.SearchHit{sqlInjectionHit()}}
	gw := &MockGateway{Respond: func(prompt string) (string, error) {
		// The reference block must have reached the model.
		assert.Contains(t, prompt, "sql-injection-001")
		assert.Contains(t, prompt, "Historical fix references")
		return `{"remediation": "Replace string interpolation with a parameterized query: cursor.execute(\"... %s\", (uid,))", "fix_diff": ""}`, nil
	}}
	p := NewPipeline(gw, retriever, testTuning(), nil)

	degraded, referenced := p.runRemedy(context.Background(), findings)

	assert.Zero(t, degraded)
	assert.Equal(t, 1, referenced)
	assert.True(t, findings[0].Enhanced)
	assert.Contains(t, findings[0].Remediation, "parameterized query")
	assert.Equal(t, []string{"sql-injection-001"}, findings[0].ReferencedRecords)
}

func TestRemedy_GatewayFailureKeepsOriginal(t *testing.T) {
	original := sqlInjectionFinding()
	findings := []datatypes.VulnerabilityFinding{original}
	gw := &MockGateway{Respond: timeoutResponder}
	p := NewPipeline(gw, &MockRetriever{}, testTuning(), nil)

	degraded, referenced := p.runRemedy(context.Background(), findings)

	assert.Equal(t, 1, degraded)
	assert.Zero(t, referenced)
	assert.Equal(t, original.Remediation, findings[0].Remediation)
	assert.False(t, findings[0].Enhanced)
	assert.Empty(t, findings[0].ReferencedRecords)
}

func TestRemedy_UnparseableResponseKeepsOriginal(t *testing.T) {
	original := sqlInjectionFinding()
	findings := []datatypes.VulnerabilityFinding{original}
	gw := &MockGateway{Respond: func(string) (string, error) {
		return `{"remediation": ""}`, nil
	}}
	p := NewPipeline(gw, &MockRetriever{}, testTuning(), nil)

	degraded, _ := p.runRemedy(context.Background(), findings)

	assert.Equal(t, 1, degraded)
	assert.Equal(t, original.Remediation, findings[0].Remediation)
}

func TestRemedy_RetrievalFailureStillEnhances(t *testing.T) {
	findings := []datatypes.VulnerabilityFinding{sqlInjectionFinding()}
	retriever := &MockRetriever{Err: &knowledge.RetrievalError{Op: "search", Message: "scripted"}}
	gw := &MockGateway{Respond: func(prompt string) (string, error) {
		assert.NotContains(t, prompt, "Historical fix references")
		return `{"remediation": "improved guidance", "fix_diff": ""}`, nil
	}}
	p := NewPipeline(gw, retriever, testTuning(), nil)

	degraded, referenced := p.runRemedy(context.Background(), findings)

	assert.Zero(t, degraded)
	assert.Zero(t, referenced)
	assert.True(t, findings[0].Enhanced)
	assert.Equal(t, "improved guidance", findings[0].Remediation)
}

func TestRemedy_ValidDiffIsKept(t *testing.T) {
	findings := []datatypes.VulnerabilityFinding{sqlInjectionFinding()}
	gw := &MockGateway{Respond: func(string) (string, error) {
		return `{"remediation": "parameterize", "fix_diff": "--- a/db/query.py\n+++ b/db/query.py\n@@ -1,1 +1,1 @@\n-old line\n+new line\n"}`, nil
	}}
	p := NewPipeline(gw, &MockRetriever{}, testTuning(), nil)

	degraded, _ := p.runRemedy(context.Background(), findings)

	assert.Zero(t, degraded)
	assert.NotEmpty(t, findings[0].FixDiff)
}

func TestRemedy_MangledDiffIsDropped(t *testing.T) {
	findings := []datatypes.VulnerabilityFinding{sqlInjectionFinding()}
	gw := &MockGateway{Respond: func(string) (string, error) {
		return `{"remediation": "parameterize", "fix_diff": "this is not a diff"}`, nil
	}}
	p := NewPipeline(gw, &MockRetriever{}, testTuning(), nil)

	degraded, _ := p.runRemedy(context.Background(), findings)

	assert.Zero(t, degraded)
	assert.True(t, findings[0].Enhanced)
	assert.Empty(t, findings[0].FixDiff, "a non-diff payload must not be attached")
}
