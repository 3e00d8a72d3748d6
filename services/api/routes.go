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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis"
	"github.com/Balmy-afterGlow/CodeVigil/services/knowledge"
)

// SetupRoutes mounts the full HTTP surface on router.
func SetupRoutes(router *gin.Engine, pipeline *analysis.Pipeline, engine *knowledge.RetrievalEngine,
	defaults analysis.TuningConfig) {

	router.GET("/healthz", HandleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/analyze", HandleAnalyze(pipeline, defaults))

		index := v1.Group("/knowledge/index")
		{
			index.GET("/status", HandleIndexStatus(engine))
			index.POST("/rebuild", HandleIndexRebuild(engine))
		}
	}
}
