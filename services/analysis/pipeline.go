// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis implements the staged risk-triage pipeline: batched
// triage scoring, per-file deep analysis and retrieval-augmented
// remediation synthesis.
//
// The pipeline degrades instead of failing: after parameter validation
// every run produces a result, and every external fault is absorbed at
// the narrowest possible scope (a batch, a file, a finding) with a
// counter recording the loss.
package analysis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/gateway"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/observability"
	"github.com/Balmy-afterGlow/CodeVigil/services/knowledge"
)

var tracer = otel.Tracer("codevigil.analysis")

// State is the pipeline's observable run state. Transitions only move
// forward: Idle, the three stages in order, Done. Empty stages still
// advance through their state.
type State string

const (
	StateIdle          State = "idle"
	StateStage1Running State = "stage1_running"
	StateStage2Running State = "stage2_running"
	StateStage3Running State = "stage3_running"
	StateDone          State = "done"
)

// Retriever is the corpus lookup the remediation stage depends on.
// *knowledge.RetrievalEngine satisfies it.
type Retriever interface {
	Search(ctx context.Context, query string, k int, filters knowledge.Filters) ([]knowledge.SearchHit, error)
}

// Pipeline wires the three analysis stages over one gateway and one
// retriever.
//
// # Description
//
// A Pipeline is safe for sequential reuse; State() may be polled from
// other goroutines while a run is in flight. Construction is plain
// dependency injection: the caller owns the gateway, retriever and
// tuning lifetimes.
type Pipeline struct {
	gateway   gateway.ReasoningGateway
	retriever Retriever
	cfg       TuningConfig
	logger    *slog.Logger

	mu    sync.RWMutex
	state State
}

// NewPipeline builds a pipeline. retriever may be nil, which disables
// corpus references in stage 3 but not the stage itself.
func NewPipeline(gw gateway.ReasoningGateway, retriever Retriever, cfg TuningConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		gateway:   gw,
		retriever: retriever,
		cfg:       cfg,
		logger:    logger,
		state:     StateIdle,
	}
}

// State returns the current run state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run executes the full pipeline over the given candidates.
//
// # Description
//
// Validates params first; an invalid parameter set is the only error
// this method returns, and it aborts before any stage runs. Past
// validation, Run always produces a PipelineResult: gateway, parse and
// retrieval faults degrade batches, drop files or keep original
// remediations, each recorded in the summary counters. An empty
// candidate list walks all three stages and returns an empty result.
//
// # Inputs
//
//   - ctx: cancellation stops new gateway calls at the next batch or
//     launch boundary; in-flight calls finish.
//   - candidates: files to triage, in caller order.
//   - params: validated batch size and promotion threshold; they
//     override the corresponding tuning values for this run.
//
// # Errors
//
//   - *datatypes.ValidationError: invalid params, no stage ran.
func (p *Pipeline) Run(ctx context.Context, candidates []datatypes.FileCandidate, params datatypes.AnalyzeParams) (*datatypes.PipelineResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "analysis.Run")
	defer span.End()

	runCfg := p.cfg
	runCfg.BatchSize = params.BatchSize
	runCfg.RiskThreshold = params.RiskThreshold

	result := &datatypes.PipelineResult{
		RunID:        uuid.NewString(),
		StageTimings: make(map[datatypes.Stage]time.Duration, 3),
		StartedAt:    time.Now(),
	}
	span.SetAttributes(
		attribute.String("run.id", result.RunID),
		attribute.Int("run.candidates", len(candidates)),
	)
	p.logger.Info("pipeline run starting",
		"run_id", result.RunID,
		"candidates", len(candidates),
		"batch_size", runCfg.BatchSize,
		"risk_threshold", runCfg.RiskThreshold)

	run := &Pipeline{
		gateway:   p.gateway,
		retriever: p.retriever,
		cfg:       runCfg,
		logger:    p.logger.With("run_id", result.RunID),
	}

	p.setState(StateStage1Running)
	stageStart := time.Now()
	scores, degradedBatches := run.runTriage(ctx, candidates)
	result.RiskScores = scores
	result.Summary.DegradedBatches = degradedBatches
	result.StageTimings[datatypes.StageTriage] = time.Since(stageStart)
	observability.ObserveStageDuration(datatypes.StageTriage, time.Since(stageStart))

	p.setState(StateStage2Running)
	stageStart = time.Now()
	reports, dropped := run.runDeepScan(ctx, candidates, scores)
	result.Reports = reports
	result.Summary.DroppedFiles = dropped
	result.StageTimings[datatypes.StageDeepScan] = time.Since(stageStart)
	observability.ObserveStageDuration(datatypes.StageDeepScan, time.Since(stageStart))

	p.setState(StateStage3Running)
	stageStart = time.Now()
	findings := flattenFindings(result.Reports)
	degradedFindings, referenced := run.runRemedy(ctx, findings)
	restoreFindings(result.Reports, findings)
	result.Findings = findings
	result.Summary.DegradedFindings = degradedFindings
	result.Summary.RecordsReferenced = referenced
	result.StageTimings[datatypes.StageRemedy] = time.Since(stageStart)
	observability.ObserveStageDuration(datatypes.StageRemedy, time.Since(stageStart))

	result.Summary.FilesScanned = len(candidates)
	result.Summary.HighRiskFiles = countHighRisk(scores, runCfg.RiskThreshold)
	result.Summary.FindingsDiscovered = len(findings)
	result.Summary.Aggregate(findings)
	result.FinishedAt = time.Now()

	p.setState(StateDone)
	p.logger.Info("pipeline run finished",
		"run_id", result.RunID,
		"findings", len(findings),
		"degraded_batches", degradedBatches,
		"dropped_files", dropped,
		"degraded_findings", degradedFindings,
		"elapsed", result.FinishedAt.Sub(result.StartedAt))
	return result, nil
}

// flattenFindings collects every report's findings into one slice, in
// report order, so the remediation stage can enhance them in place.
func flattenFindings(reports []datatypes.FileReport) []datatypes.VulnerabilityFinding {
	var all []datatypes.VulnerabilityFinding
	for _, rep := range reports {
		all = append(all, rep.Findings...)
	}
	return all
}

// restoreFindings writes the enhanced findings back into their reports,
// relying on flattenFindings' ordering.
func restoreFindings(reports []datatypes.FileReport, findings []datatypes.VulnerabilityFinding) {
	idx := 0
	for ri := range reports {
		n := copy(reports[ri].Findings, findings[idx:])
		idx += n
	}
}

func countHighRisk(scores []datatypes.RiskScore, threshold float64) int {
	n := 0
	for _, sc := range scores {
		if sc.Score >= threshold {
			n++
		}
	}
	return n
}
