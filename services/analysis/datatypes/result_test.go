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

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finding(title string, sev Severity, cwe string) VulnerabilityFinding {
	return VulnerabilityFinding{Title: title, Severity: sev, CWEID: cwe}
}

func TestRunSummary_Aggregate(t *testing.T) {
	var s RunSummary
	s.Aggregate([]VulnerabilityFinding{
		finding("SQL injection", SeverityCritical, "CWE-89"),
		finding("SQL injection", SeverityHigh, "CWE-89"),
		finding("Stored XSS", SeverityHigh, "CWE-79"),
		finding("Hardcoded secret", SeverityMedium, ""),
	})

	assert.Equal(t, 1, s.SeverityBreakdown[SeverityCritical])
	assert.Equal(t, 2, s.SeverityBreakdown[SeverityHigh])
	assert.Equal(t, 1, s.SeverityBreakdown[SeverityMedium])
	assert.Equal(t, 0, s.SeverityBreakdown[SeverityLow])

	// Findings without a CWE id do not pollute the distribution.
	assert.Equal(t, 2, s.CWEDistribution["CWE-89"])
	assert.Equal(t, 1, s.CWEDistribution["CWE-79"])
	assert.NotContains(t, s.CWEDistribution, "")

	require.Len(t, s.MostCommonIssues, 3)
	assert.Equal(t, IssueCount{Title: "SQL injection", Count: 2}, s.MostCommonIssues[0])
	// Ties break alphabetically.
	assert.Equal(t, "Hardcoded secret", s.MostCommonIssues[1].Title)
	assert.Equal(t, "Stored XSS", s.MostCommonIssues[2].Title)
}

func TestRunSummary_Aggregate_CapsMostCommonAtTen(t *testing.T) {
	findings := make([]VulnerabilityFinding, 0, 15)
	for i := 0; i < 15; i++ {
		findings = append(findings, finding(fmt.Sprintf("issue-%02d", i), SeverityLow, ""))
	}
	var s RunSummary
	s.Aggregate(findings)
	assert.Len(t, s.MostCommonIssues, 10)
}

func TestRunSummary_Aggregate_Empty(t *testing.T) {
	var s RunSummary
	s.Aggregate(nil)
	assert.Empty(t, s.MostCommonIssues)
	assert.NotNil(t, s.SeverityBreakdown)
	assert.Empty(t, s.CWEDistribution)
}
