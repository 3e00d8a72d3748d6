// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the pipeline and knowledge maintenance over a
// thin HTTP surface. Handlers validate, delegate and serialize; all
// behavior lives in the analysis and knowledge services.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
	"github.com/Balmy-afterGlow/CodeVigil/services/knowledge"
)

var apiTracer = otel.Tracer("codevigil.api")

// AnalyzeRequest is the POST /api/v1/analyze body. RiskThreshold is a
// pointer because zero is a meaningful threshold (deep-scan every
// file); only an absent field falls back to the tuning default.
type AnalyzeRequest struct {
	Candidates    []datatypes.FileCandidate `json:"candidates"`
	BatchSize     int                       `json:"batch_size"`
	RiskThreshold *float64                  `json:"risk_threshold"`
}

// RebuildRequest is the POST /api/v1/knowledge/index/rebuild body. All
// fields are optional.
type RebuildRequest struct {
	Limit    int    `json:"limit"`
	Severity string `json:"severity"`
	Language string `json:"language"`
}

// HandleAnalyze runs the pipeline synchronously and returns the full
// result. Invalid parameters are the only 4xx past body binding; a
// degraded run is still a 200 with its counters set.
func HandleAnalyze(pipeline *analysis.Pipeline, defaults analysis.TuningConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := apiTracer.Start(c.Request.Context(), "HandleAnalyze")
		defer span.End()

		var request AnalyzeRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind analyze request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		params := datatypes.AnalyzeParams{
			BatchSize:     request.BatchSize,
			RiskThreshold: defaults.RiskThreshold,
		}
		if params.BatchSize == 0 {
			params.BatchSize = defaults.BatchSize
		}
		if request.RiskThreshold != nil {
			params.RiskThreshold = *request.RiskThreshold
		}
		span.SetAttributes(
			attribute.Int("analyze.candidates", len(request.Candidates)),
			attribute.Int("analyze.batch_size", params.BatchSize),
		)

		result, err := pipeline.Run(ctx, request.Candidates, params)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Analyze request rejected", "error", err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleIndexStatus reports embedding index freshness.
func HandleIndexStatus(engine *knowledge.RetrievalEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := apiTracer.Start(c.Request.Context(), "HandleIndexStatus")
		defer span.End()

		status, err := engine.Status(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Index status check failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// HandleIndexRebuild re-encodes the corpus into a fresh index.
func HandleIndexRebuild(engine *knowledge.RetrievalEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := apiTracer.Start(c.Request.Context(), "HandleIndexRebuild")
		defer span.End()

		var request RebuildRequest
		if c.Request.ContentLength > 0 {
			if err := c.BindJSON(&request); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
				return
			}
		}

		indexed, err := engine.Rebuild(ctx, knowledge.Filters{
			Language: request.Language,
			Severity: request.Severity,
		}, request.Limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Index rebuild failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"indexed_records": indexed})
	}
}

// HandleHealthz is the liveness probe.
func HandleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
