// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability holds the pipeline's Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
)

var (
	// gatewayCallTotal counts reasoning gateway calls by stage and outcome
	gatewayCallTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codevigil_gateway_calls_total",
		Help: "Total reasoning gateway calls by stage and status",
	}, []string{"stage", "status"})

	// stageDuration tracks wall-clock time per pipeline stage
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codevigil_stage_duration_seconds",
		Help:    "Pipeline stage duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~200s
	}, []string{"stage"})

	// degradedBatchTotal counts triage batches that fell back to default scores
	degradedBatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codevigil_degraded_batches_total",
		Help: "Total triage batches degraded to default scores",
	})

	// droppedFileTotal counts files dropped from deep analysis
	droppedFileTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codevigil_dropped_files_total",
		Help: "Total files dropped from deep analysis on gateway or parse failure",
	})

	// degradedFindingTotal counts findings that kept their original remediation
	degradedFindingTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codevigil_degraded_findings_total",
		Help: "Total findings that kept their original remediation",
	})
)

// ObserveGatewayCall records one gateway call outcome. status is "ok"
// or "error".
func ObserveGatewayCall(stage datatypes.Stage, status string) {
	gatewayCallTotal.WithLabelValues(string(stage), status).Inc()
}

// ObserveStageDuration records one stage's wall-clock time.
func ObserveStageDuration(stage datatypes.Stage, d time.Duration) {
	stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// AddDegradedBatches bumps the degraded-batch counter.
func AddDegradedBatches(n int) {
	if n > 0 {
		degradedBatchTotal.Add(float64(n))
	}
}

// AddDroppedFiles bumps the dropped-file counter.
func AddDroppedFiles(n int) {
	if n > 0 {
		droppedFileTotal.Add(float64(n))
	}
}

// AddDegradedFindings bumps the degraded-finding counter.
func AddDegradedFindings(n int) {
	if n > 0 {
		degradedFindingTotal.Add(float64(n))
	}
}
