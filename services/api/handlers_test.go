// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
	"github.com/Balmy-afterGlow/CodeVigil/services/knowledge"
)

// echoGateway answers every triage prompt with a fixed low score for a
// single file and fails nothing.
type echoGateway struct{}

func (echoGateway) Infer(_ context.Context, _ string) (string, error) {
	return `{"scores": [{"path": "app.py", "score": 10, "confidence": 0.9, "rationale": "test"}]}`, nil
}

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := knowledge.OpenStore(filepath.Join(t.TempDir(), "knowledge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	engine := knowledge.NewRetrievalEngine(store, nil, t.TempDir(), nil)

	tuning := analysis.DefaultTuning()
	tuning.BatchDelay = 0
	tuning.DeepScanDelay = 0
	pipeline := analysis.NewPipeline(echoGateway{}, engine, tuning, nil)

	router := gin.New()
	SetupRoutes(router, pipeline, engine, tuning)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleAnalyze(t *testing.T) {
	router := testRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{
		Candidates: []datatypes.FileCandidate{{Path: "app.py", Language: "python"}},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result datatypes.PipelineResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.RiskScores, 1)
	assert.Equal(t, "app.py", result.RiskScores[0].Path)
	assert.Equal(t, 1, result.Summary.FilesScanned)
}

func TestHandleAnalyze_DefaultsFillZeroParams(t *testing.T) {
	router := testRouter(t)

	// No batch size or threshold in the body: the tuning defaults apply
	// instead of failing validation.
	w := doJSON(t, router, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{
		Candidates: []datatypes.FileCandidate{{Path: "app.py"}},
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHandleAnalyze_ZeroThresholdIsHonored(t *testing.T) {
	router := testRouter(t)

	zero := 0.0
	w := doJSON(t, router, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{
		Candidates:    []datatypes.FileCandidate{{Path: "app.py", Language: "python"}},
		RiskThreshold: &zero,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result datatypes.PipelineResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	// An explicit zero threshold promotes the low-scoring file; it must
	// not be treated as "absent" and replaced by the default.
	assert.Equal(t, 1, result.Summary.HighRiskFiles)
}

func TestHandleAnalyze_InvalidBody(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAnalyze_InvalidParams(t *testing.T) {
	router := testRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{
		Candidates: []datatypes.FileCandidate{{Path: "app.py"}},
		BatchSize:  5000,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleIndexStatus(t *testing.T) {
	router := testRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/knowledge/index/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status knowledge.IndexStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Zero(t, status.IndexedRecords)
	assert.False(t, status.Stale, "empty index over empty corpus is fresh")
}

func TestHandleIndexRebuild_NoEmbedder(t *testing.T) {
	router := testRouter(t)

	// The test engine has no embedder; rebuild reports the failure
	// instead of pretending an index exists.
	w := doJSON(t, router, http.MethodPost, "/api/v1/knowledge/index/rebuild", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleHealthz(t *testing.T) {
	router := testRouter(t)

	w := doJSON(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}
