// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	candidatesPath string
	tuningPath     string
	outputPath     string
	batchSize      int
	riskThreshold  float64

	indexLimit    int
	indexSeverity string
	indexLanguage string
	forceRebuild  bool
	seedCorpus    bool

	servePort string

	rootCmd = &cobra.Command{
		Use:   "codevigil",
		Short: "A cli for the CodeVigil security risk-triage pipeline",
		Long: `CodeVigil triages repository files for security risk, deep-analyzes
the high-risk ones and synthesizes remediation guidance grounded in a
corpus of historical vulnerability fixes.`,
	}

	// --- Analysis ---
	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Run the full triage/analysis/remediation pipeline over a candidate file set",
		RunE:  runAnalyze, // Defined in cmd_analyze.go
	}

	// --- Knowledge index maintenance ---
	indexCmd = &cobra.Command{
		Use:   "index",
		Short: "Maintain the vulnerability-fix embedding index",
	}
	indexBuildCmd = &cobra.Command{
		Use:   "build",
		Short: "Re-encode the knowledge corpus into a fresh embedding index",
		RunE:  runIndexBuild, // Defined in cmd_index.go
	}
	indexStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Report embedding index freshness against the corpus",
		RunE:  runIndexStatus, // Defined in cmd_index.go
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline and index maintenance over HTTP",
		RunE:  runServe, // Defined in cmd_serve.go
	}
)

func init() {
	analyzeCmd.Flags().StringVar(&candidatesPath, "candidates", "",
		"Path to the candidates JSON file (required)")
	analyzeCmd.Flags().StringVar(&tuningPath, "tuning", "",
		"Path to an optional YAML tuning file")
	analyzeCmd.Flags().StringVarP(&outputPath, "output", "o", "",
		"Write the result JSON here instead of stdout")
	analyzeCmd.Flags().IntVar(&batchSize, "batch-size", 0,
		"Triage batch size (overrides tuning)")
	analyzeCmd.Flags().Float64Var(&riskThreshold, "risk-threshold", 0,
		"Deep-analysis promotion threshold (overrides tuning)")
	_ = analyzeCmd.MarkFlagRequired("candidates")

	indexBuildCmd.Flags().IntVar(&indexLimit, "limit", 0,
		"Maximum records to index (0 = all)")
	indexBuildCmd.Flags().StringVar(&indexSeverity, "severity", "",
		"Only index records of this severity")
	indexBuildCmd.Flags().StringVar(&indexLanguage, "language", "",
		"Only index records of this language")
	indexBuildCmd.Flags().BoolVar(&forceRebuild, "force", false,
		"Rebuild even when the index is fresh")
	indexBuildCmd.Flags().BoolVar(&seedCorpus, "seed", false,
		"Seed the corpus with the built-in default records first")

	serveCmd.Flags().StringVar(&servePort, "port", "",
		"Listen port (defaults to PORT env or 8080)")
	serveCmd.Flags().StringVar(&tuningPath, "tuning", "",
		"Path to an optional YAML tuning file")

	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexStatusCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(serveCmd)
}
