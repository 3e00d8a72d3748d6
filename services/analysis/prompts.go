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
	"fmt"
	"sort"
	"strings"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
	"github.com/Balmy-afterGlow/CodeVigil/services/knowledge"
)

// excerptLimit caps each before/after code sample quoted in the
// remediation reference block so a few large fix commits cannot crowd
// the finding itself out of the context window.
const excerptLimit = 500

// maxExcerptsPerRecord bounds how many fix pairs one reference record
// contributes.
const maxExcerptsPerRecord = 2

// buildTriagePrompt renders one batched risk-scoring request. The
// model sees path, language, signal summaries and a content preview for
// every candidate in the batch and must answer with one score entry per
// path.
func buildTriagePrompt(batch []datatypes.FileCandidate) string {
	var sb strings.Builder
	sb.WriteString("Score the security risk of each file below from 0 to 100,\n")
	sb.WriteString("where 100 means almost certainly exploitable. Weigh the static\n")
	sb.WriteString("findings, change history and the code itself.\n\n")

	for i, cand := range batch {
		sb.WriteString(fmt.Sprintf("[File %d]\n", i+1))
		sb.WriteString(fmt.Sprintf("Path: %s\n", cand.Path))
		if cand.Language != "" {
			sb.WriteString(fmt.Sprintf("Language: %s\n", cand.Language))
		}
		sb.WriteString(fmt.Sprintf("Size: %d bytes\n", len(cand.Content)))
		if summary := featureSummary(cand.Features); summary != "" {
			sb.WriteString(fmt.Sprintf("Structure: %s\n", summary))
		}
		if len(cand.PriorFindings) > 0 {
			sb.WriteString("Static findings:\n")
			for _, f := range cand.PriorFindings {
				sb.WriteString(fmt.Sprintf("  - [%s] %s: %s (line %d)\n",
					f.Severity, f.RuleID, f.Message, f.Line))
			}
		}
		sb.WriteString(fmt.Sprintf("Change history: %d commits, %d fix commits\n",
			cand.History.TotalCommits, cand.History.FixCommits))
		sb.WriteString("Code:\n```")
		sb.WriteString(cand.Language)
		sb.WriteString("\n")
		sb.WriteString(truncate(cand.Content, 2000))
		sb.WriteString("\n```\n\n")
	}

	sb.WriteString("Respond with JSON only, one entry per file, in input order:\n")
	sb.WriteString(`{
  "scores": [
    {
      "path": "file path exactly as given",
      "score": 0-100,
      "confidence": 0.0-1.0,
      "rationale": "one-sentence justification"
    }
  ]
}`)
	return sb.String()
}

// buildDeepScanPrompt renders the per-file vulnerability analysis
// request. The response shape mirrors the report structure one to one
// so parsing stays a plain decode.
func buildDeepScanPrompt(cand datatypes.FileCandidate) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following file for security vulnerabilities.\n\n")
	sb.WriteString(fmt.Sprintf("File path: %s\n", cand.Path))
	sb.WriteString(fmt.Sprintf("Language: %s\n", cand.Language))
	sb.WriteString(fmt.Sprintf("Size: %d bytes\n", len(cand.Content)))
	if summary := featureSummary(cand.Features); summary != "" {
		sb.WriteString(fmt.Sprintf("Structure: %s\n", summary))
	}
	sb.WriteString("Code:\n```")
	sb.WriteString(cand.Language)
	sb.WriteString("\n")
	sb.WriteString(cand.Content)
	sb.WriteString("\n```\n\n")

	if len(cand.PriorFindings) > 0 {
		sb.WriteString("Issues flagged by static analysis:\n")
		for _, f := range cand.PriorFindings {
			sb.WriteString(fmt.Sprintf("  - [%s] %s: %s (line %d)\n",
				f.Severity, f.RuleID, f.Message, f.Line))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("Change history: %d total commits, %d fix commits.\n\n",
		cand.History.TotalCommits, cand.History.FixCommits))

	sb.WriteString("Respond with JSON only in this exact shape:\n")
	sb.WriteString(`{
  "vulnerabilities": [
    {
      "title": "short vulnerability title",
      "severity": "critical|high|medium|low",
      "cwe_id": "CWE-XXX",
      "description": "detailed description",
      "location": {"start_line": N, "end_line": N, "function": "symbol name"},
      "code_snippet": "the offending code",
      "impact": "security impact",
      "remediation": "how to fix it",
      "confidence": 0.0-1.0
    }
  ],
  "fix_suggestions": [
    {
      "description": "what the fix does",
      "original_code": "code as it is",
      "fixed_code": "code after the fix",
      "start_line": N,
      "end_line": N,
      "explanation": "why this fixes the issue"
    }
  ],
  "overall_risk": "critical|high|medium|low",
  "summary": "overall security assessment"
}`)
	sb.WriteString("\nFocus on injection, privilege bypass and sensitive-data exposure.")
	sb.WriteString(" Consider the real execution context and keep confidence honest.")
	return sb.String()
}

// buildRemedyPrompt renders the remediation-enhancement request for one
// finding, grounding the model on retrieved historical fixes. With no
// hits the reference block is omitted and the model works from the
// finding alone.
func buildRemedyPrompt(finding datatypes.VulnerabilityFinding, hits []knowledge.SearchHit) string {
	var sb strings.Builder
	sb.WriteString("Improve the remediation guidance for this vulnerability.\n\n")
	sb.WriteString(fmt.Sprintf("File: %s\n", finding.FilePath))
	sb.WriteString(fmt.Sprintf("Title: %s\n", finding.Title))
	sb.WriteString(fmt.Sprintf("Severity: %s\n", finding.Severity))
	if finding.CWEID != "" {
		sb.WriteString(fmt.Sprintf("CWE: %s\n", finding.CWEID))
	}
	sb.WriteString(fmt.Sprintf("Description: %s\n", finding.Description))
	if finding.CodeSnippet != "" {
		sb.WriteString("Affected code:\n```\n")
		sb.WriteString(finding.CodeSnippet)
		sb.WriteString("\n```\n")
	}
	sb.WriteString(fmt.Sprintf("Current remediation: %s\n", finding.Remediation))

	if len(hits) > 0 {
		sb.WriteString("\n=== Historical fix references ===\n")
		for i, hit := range hits {
			sb.WriteString(fmt.Sprintf("[Reference %d]\n", i+1))
			sb.WriteString(fmt.Sprintf("Record: %s\n", hit.Record.ID))
			sb.WriteString(fmt.Sprintf("Severity: %s\n", hit.Record.Severity))
			if hit.Record.CWEID != "" {
				sb.WriteString(fmt.Sprintf("CWE: %s\n", hit.Record.CWEID))
			}
			sb.WriteString(fmt.Sprintf("Description: %s\n", hit.Record.Description))
			for j, ex := range hit.Record.Excerpts {
				if j == maxExcerptsPerRecord {
					break
				}
				if ex.MethodName != "" {
					sb.WriteString(fmt.Sprintf("Method: %s\n", ex.MethodName))
				}
				sb.WriteString("Before:\n")
				sb.WriteString("    " + truncate(ex.Before, excerptLimit) + "\n")
				sb.WriteString("After:\n")
				sb.WriteString("    " + truncate(ex.After, excerptLimit) + "\n")
			}
			if hit.Record.FixNarrative != "" {
				sb.WriteString(fmt.Sprintf("Fix pattern: %s\n", hit.Record.FixNarrative))
			}
			sb.WriteString(strings.Repeat("-", 60) + "\n")
		}
	}

	sb.WriteString("\nRespond with JSON only:\n")
	sb.WriteString(`{
  "remediation": "improved, concrete remediation guidance",
  "fix_diff": "optional unified diff of the fix, or empty string"
}`)
	return sb.String()
}

// retrievalQuery builds the corpus query text for a finding.
func retrievalQuery(finding datatypes.VulnerabilityFinding) string {
	parts := make([]string, 0, 2)
	if finding.Description != "" {
		parts = append(parts, finding.Description)
	} else if finding.Title != "" {
		parts = append(parts, finding.Title)
	}
	if finding.CodeSnippet != "" {
		parts = append(parts, truncate(finding.CodeSnippet, excerptLimit))
	}
	return strings.Join(parts, "\n")
}

// featureSummary flattens the extractor's structural feature map into
// one "key=value" line. Keys are sorted so identical candidates render
// identical prompts.
func featureSummary(features map[string]any) string {
	if len(features) == 0 {
		return ""
	}
	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, features[k]))
	}
	return strings.Join(parts, ", ")
}

// truncate cuts s to at most n bytes, marking the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
