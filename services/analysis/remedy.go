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
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/observability"
	"github.com/Balmy-afterGlow/CodeVigil/services/knowledge"
)

// runRemedy enhances the remediation of every finding using retrieved
// historical fixes.
//
// # Description
//
// Each finding gets its own retrieval query and gateway call. On
// success the finding's remediation is replaced, reference record ids
// are attached and a well-formed unified diff from the response is
// kept. On any failure the finding keeps its original remediation,
// unchanged and uncounted as lost; enhancement is strictly additive.
//
// # Outputs
//
//   - int: findings that kept their original remediation (degraded).
//   - int: total corpus records referenced across enhanced findings.
func (p *Pipeline) runRemedy(ctx context.Context, findings []datatypes.VulnerabilityFinding) (int, int) {
	ctx, span := tracer.Start(ctx, "analysis.Remedy")
	defer span.End()

	degraded := 0
	referenced := 0
	for i := range findings {
		if ctx.Err() != nil {
			p.logger.Warn("remediation canceled, remaining findings keep their original guidance",
				"enhanced", i, "remaining", len(findings)-i)
			degraded += len(findings) - i
			break
		}
		refs, ok := p.remedyFinding(ctx, &findings[i])
		if !ok {
			degraded++
			continue
		}
		referenced += refs
	}
	observability.AddDegradedFindings(degraded)
	return degraded, referenced
}

// remedyFinding enhances one finding in place. The bool result is
// false when the finding kept its original remediation.
func (p *Pipeline) remedyFinding(ctx context.Context, finding *datatypes.VulnerabilityFinding) (int, bool) {
	var hits []knowledge.SearchHit
	if p.retriever != nil {
		var err error
		hits, err = p.retriever.Search(ctx, retrievalQuery(*finding), p.cfg.RetrievalK, knowledge.Filters{
			Language: languageOf(finding.FilePath),
		})
		if err != nil {
			// Retrieval faults only cost us the reference block.
			p.logger.Warn("remediation retrieval failed, enhancing without references",
				"finding", finding.Title, "error", err)
			hits = nil
		}
	}

	// The loop above stops scheduling on cancel; the call in flight is
	// allowed to finish.
	raw, err := p.gateway.Infer(context.WithoutCancel(ctx), buildRemedyPrompt(*finding, hits))
	if err != nil {
		observability.ObserveGatewayCall(datatypes.StageRemedy, "error")
		p.logger.Warn("remediation kept original: gateway call failed",
			"finding", finding.Title, "error", err)
		return 0, false
	}
	observability.ObserveGatewayCall(datatypes.StageRemedy, "ok")

	resp, err := decodeRemedyResponse(raw)
	if err != nil {
		p.logger.Warn("remediation kept original: unparseable response",
			"finding", finding.Title, "error", err)
		return 0, false
	}

	finding.Remediation = resp.Remediation
	finding.Enhanced = true
	for _, hit := range hits {
		finding.ReferencedRecords = append(finding.ReferencedRecords, hit.Record.ID)
	}
	if fixDiff := validFixDiff(resp.FixDiff); fixDiff != "" {
		finding.FixDiff = fixDiff
	}
	return len(hits), true
}

// validFixDiff returns the diff text when it parses as a unified diff,
// empty otherwise. A diff the model mangled is worse than no diff.
func validFixDiff(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(text)).ReadAllFiles()
	if err != nil || len(fileDiffs) == 0 {
		return ""
	}
	return text
}

// languageOf guesses the retrieval language filter from a file
// extension. An unknown extension returns "" which matches everything.
func languageOf(path string) string {
	switch {
	case strings.HasSuffix(path, ".py"):
		return "python"
	case strings.HasSuffix(path, ".js"), strings.HasSuffix(path, ".jsx"):
		return "javascript"
	case strings.HasSuffix(path, ".ts"), strings.HasSuffix(path, ".tsx"):
		return "typescript"
	case strings.HasSuffix(path, ".go"):
		return "go"
	case strings.HasSuffix(path, ".java"):
		return "java"
	case strings.HasSuffix(path, ".rb"):
		return "ruby"
	case strings.HasSuffix(path, ".php"):
		return "php"
	case strings.HasSuffix(path, ".c"), strings.HasSuffix(path, ".h"):
		return "c"
	case strings.HasSuffix(path, ".cpp"), strings.HasSuffix(path, ".cc"), strings.HasSuffix(path, ".hpp"):
		return "cpp"
	case strings.HasSuffix(path, ".rs"):
		return "rust"
	default:
		return ""
	}
}
