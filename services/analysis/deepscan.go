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
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/observability"
)

// runDeepScan analyzes the high-risk slice of the triage output.
//
// # Description
//
// Files scoring at or above the threshold are analyzed one gateway
// call per file, highest score first, on a bounded worker pool. A
// file whose call or parse fails is dropped from the output and
// counted; it never fails the stage. Cancellation stops new launches;
// in-flight calls finish.
//
// # Outputs
//
//   - []FileReport: one per surviving file, descending triage score.
//   - int: dropped file count.
func (p *Pipeline) runDeepScan(ctx context.Context, candidates []datatypes.FileCandidate, scores []datatypes.RiskScore) ([]datatypes.FileReport, int) {
	ctx, span := tracer.Start(ctx, "analysis.DeepScan")
	defer span.End()

	selected := selectHighRisk(candidates, scores, p.cfg.RiskThreshold)
	if len(selected) == 0 {
		return nil, 0
	}

	reports := make([]*datatypes.FileReport, len(selected))
	limiter := rate.NewLimiter(rate.Every(p.cfg.DeepScanDelay), 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.DeepScanWorkers)
	for i, cand := range selected {
		if err := limiter.Wait(ctx); err != nil {
			p.logger.Warn("deep scan canceled, skipping remaining files",
				"launched", i, "remaining", len(selected)-i)
			break
		}
		g.Go(func() error {
			reports[i] = p.deepScanFile(gctx, cand)
			return nil
		})
	}
	// Workers never return errors; Wait only fences completion.
	_ = g.Wait()

	out := make([]datatypes.FileReport, 0, len(selected))
	for _, rep := range reports {
		if rep != nil {
			out = append(out, *rep)
		}
	}
	dropped := len(selected) - len(out)
	observability.AddDroppedFiles(dropped)
	return out, dropped
}

// deepScanFile runs one per-file analysis. nil means the file was
// dropped.
func (p *Pipeline) deepScanFile(ctx context.Context, cand datatypes.FileCandidate) *datatypes.FileReport {
	started := time.Now()

	// Cancellation stops launches at the limiter; a worker already
	// calling out runs to completion or its own timeout.
	raw, err := p.gateway.Infer(context.WithoutCancel(ctx), buildDeepScanPrompt(cand))
	if err != nil {
		observability.ObserveGatewayCall(datatypes.StageDeepScan, "error")
		p.logger.Warn("deep scan dropped file: gateway call failed",
			"path", cand.Path, "error", err)
		return nil
	}
	observability.ObserveGatewayCall(datatypes.StageDeepScan, "ok")

	report, err := decodeReportResponse(raw, cand.Path)
	if err != nil {
		p.logger.Warn("deep scan dropped file: unparseable response",
			"path", cand.Path, "error", err)
		return nil
	}
	report.Elapsed = time.Since(started)
	return report
}

// selectHighRisk returns the candidates whose triage score meets the
// threshold, sorted by score descending. Ties keep triage order, which
// is input order.
func selectHighRisk(candidates []datatypes.FileCandidate, scores []datatypes.RiskScore, threshold float64) []datatypes.FileCandidate {
	byPath := make(map[string]datatypes.FileCandidate, len(candidates))
	for _, cand := range candidates {
		byPath[cand.Path] = cand
	}

	picked := make([]datatypes.RiskScore, 0, len(scores))
	for _, sc := range scores {
		if sc.Score >= threshold {
			picked = append(picked, sc)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Score > picked[j].Score })

	selected := make([]datatypes.FileCandidate, 0, len(picked))
	for _, sc := range picked {
		if cand, ok := byPath[sc.Path]; ok {
			selected = append(selected, cand)
		}
	}
	return selected
}
