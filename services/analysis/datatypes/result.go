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
	"sort"
	"time"
)

// Stage names the three pipeline stages. Used as a label on timings,
// metrics and log lines.
type Stage string

const (
	StageTriage   Stage = "triage"
	StageDeepScan Stage = "deepscan"
	StageRemedy   Stage = "remedy"
)

// IssueCount is one entry of the most-common-issues summary.
type IssueCount struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

// RunSummary aggregates counters over a completed pipeline run.
//
// The degradation counters let callers assess result quality: a run
// with many degraded batches still returns a full result set, but the
// scores in it carry little information.
type RunSummary struct {
	FilesScanned       int              `json:"files_scanned"`
	HighRiskFiles      int              `json:"high_risk_files"`
	FindingsDiscovered int              `json:"findings_discovered"`
	RecordsReferenced  int              `json:"records_referenced"`
	DegradedBatches    int              `json:"degraded_batches"`
	DroppedFiles       int              `json:"dropped_files"`
	DegradedFindings   int              `json:"degraded_findings"`
	SeverityBreakdown  map[Severity]int `json:"severity_breakdown"`
	CWEDistribution    map[string]int   `json:"cwe_distribution"`
	MostCommonIssues   []IssueCount     `json:"most_common_issues"`
}

// PipelineResult is the single value returned by a pipeline run.
//
// # Description
//
// Holds the full output of every stage plus aggregate counters and
// per-stage wall-clock timings. Run never fails after parameter
// validation, so a PipelineResult is produced for every run, including
// runs where every external call degraded.
type PipelineResult struct {
	RunID        string                   `json:"run_id"`
	RiskScores   []RiskScore              `json:"risk_scores"`
	Reports      []FileReport             `json:"reports"`
	Findings     []VulnerabilityFinding   `json:"findings"`
	Summary      RunSummary               `json:"summary"`
	StageTimings map[Stage]time.Duration  `json:"stage_timings"`
	StartedAt    time.Time                `json:"started_at"`
	FinishedAt   time.Time                `json:"finished_at"`
}

// Aggregate fills the severity breakdown, CWE distribution and
// most-common-issues list from the final findings. Call once, after the
// remediation stage has produced the finding list.
func (s *RunSummary) Aggregate(findings []VulnerabilityFinding) {
	s.SeverityBreakdown = map[Severity]int{
		SeverityCritical: 0,
		SeverityHigh:     0,
		SeverityMedium:   0,
		SeverityLow:      0,
	}
	s.CWEDistribution = map[string]int{}
	titles := map[string]int{}

	for _, f := range findings {
		s.SeverityBreakdown[f.Severity]++
		if f.CWEID != "" {
			s.CWEDistribution[f.CWEID]++
		}
		titles[f.Title]++
	}

	s.MostCommonIssues = s.MostCommonIssues[:0]
	for title, count := range titles {
		s.MostCommonIssues = append(s.MostCommonIssues, IssueCount{Title: title, Count: count})
	}
	sort.Slice(s.MostCommonIssues, func(i, j int) bool {
		if s.MostCommonIssues[i].Count != s.MostCommonIssues[j].Count {
			return s.MostCommonIssues[i].Count > s.MostCommonIssues[j].Count
		}
		return s.MostCommonIssues[i].Title < s.MostCommonIssues[j].Title
	})
	if len(s.MostCommonIssues) > 10 {
		s.MostCommonIssues = s.MostCommonIssues[:10]
	}
}
