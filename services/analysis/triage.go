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

	"golang.org/x/time/rate"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/observability"
)

// runTriage scores every candidate with one gateway call per batch.
//
// # Description
//
// Candidates are partitioned into fixed-size batches in input order.
// Each batch is one Infer; a failed call or undecodable response
// degrades the whole batch to the default score, and a decoded batch
// that omits a file degrades just that file. The returned slice always
// has one score per candidate, in candidate order. Cancellation takes
// effect between batches: the in-flight call finishes, remaining
// batches degrade.
//
// # Outputs
//
//   - []RiskScore: len == len(candidates), input order.
//   - int: number of batches that degraded wholesale.
func (p *Pipeline) runTriage(ctx context.Context, candidates []datatypes.FileCandidate) ([]datatypes.RiskScore, int) {
	ctx, span := tracer.Start(ctx, "analysis.Triage")
	defer span.End()

	scores := make([]datatypes.RiskScore, 0, len(candidates))
	degradedBatches := 0
	limiter := rate.NewLimiter(rate.Every(p.cfg.BatchDelay), 1)

	for start := 0; start < len(candidates); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(candidates))
		batch := candidates[start:end]

		if err := limiter.Wait(ctx); err != nil {
			p.logger.Warn("triage canceled, degrading remaining batches",
				"scored", len(scores), "remaining", len(candidates)-len(scores))
			for _, cand := range candidates[start:] {
				scores = append(scores, datatypes.NewDegradedRiskScore(cand.Path, "run canceled"))
			}
			degradedBatches += (len(candidates) - start + p.cfg.BatchSize - 1) / p.cfg.BatchSize
			break
		}

		batchScores, degraded := p.triageBatch(ctx, batch)
		if degraded {
			degradedBatches++
		}
		scores = append(scores, batchScores...)
	}

	observability.AddDegradedBatches(degradedBatches)
	return scores, degradedBatches
}

// triageBatch scores one batch. The bool result reports wholesale
// degradation (call or parse failure); per-file missing entries degrade
// individually without flagging the batch.
func (p *Pipeline) triageBatch(ctx context.Context, batch []datatypes.FileCandidate) ([]datatypes.RiskScore, bool) {
	// Cancellation is handled at the limiter between batches; a call
	// already in flight runs to completion or its own timeout.
	raw, err := p.gateway.Infer(context.WithoutCancel(ctx), buildTriagePrompt(batch))
	if err != nil {
		observability.ObserveGatewayCall(datatypes.StageTriage, "error")
		p.logger.Warn("triage batch degraded: gateway call failed",
			"batch_size", len(batch), "error", err)
		return degradeBatch(batch, "gateway call failed"), true
	}
	observability.ObserveGatewayCall(datatypes.StageTriage, "ok")

	entries, err := decodeTriageResponse(raw)
	if err != nil {
		p.logger.Warn("triage batch degraded: unparseable response",
			"batch_size", len(batch), "error", err)
		return degradeBatch(batch, "unparseable response"), true
	}

	scores := make([]datatypes.RiskScore, 0, len(batch))
	for _, cand := range batch {
		entry, ok := entries[cand.Path]
		if !ok {
			p.logger.Warn("triage response missing file, degrading it", "path", cand.Path)
			scores = append(scores, datatypes.NewDegradedRiskScore(cand.Path, "missing score entry"))
			continue
		}
		scores = append(scores, datatypes.RiskScore{
			Path:       cand.Path,
			Score:      entry.Score,
			Confidence: entry.Confidence,
			Rationale:  entry.Rationale,
			Level:      datatypes.LevelForScore(entry.Score),
		})
	}
	return scores, false
}

func degradeBatch(batch []datatypes.FileCandidate, cause string) []datatypes.RiskScore {
	scores := make([]datatypes.RiskScore, 0, len(batch))
	for _, cand := range batch {
		scores = append(scores, datatypes.NewDegradedRiskScore(cand.Path, cause))
	}
	return scores
}
