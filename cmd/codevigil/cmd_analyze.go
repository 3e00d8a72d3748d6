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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Balmy-afterGlow/CodeVigil/pkg/logging"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/gateway"
)

// runAnalyze reads a candidate set from disk, runs the pipeline once
// and writes the result JSON to stdout or --output.
func runAnalyze(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{Service: "codevigil"})
	defer logger.Close()

	data, err := os.ReadFile(candidatesPath)
	if err != nil {
		return fmt.Errorf("failed to read candidates file: %w", err)
	}
	var candidates []datatypes.FileCandidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		return fmt.Errorf("failed to parse candidates file: %w", err)
	}

	tuning, err := analysis.LoadTuning(tuningPath)
	if err != nil {
		return err
	}
	params := datatypes.AnalyzeParams{
		BatchSize:     tuning.BatchSize,
		RiskThreshold: tuning.RiskThreshold,
	}
	if batchSize > 0 {
		params.BatchSize = batchSize
	}
	if cmd.Flags().Changed("risk-threshold") {
		params.RiskThreshold = riskThreshold
	}

	gw, err := gateway.NewOpenAIGateway()
	if err != nil {
		return fmt.Errorf("failed to configure reasoning gateway: %w", err)
	}

	store, engine, err := openKnowledge(logger.Slog())
	if err != nil {
		return err
	}
	defer store.Close()

	pipeline := analysis.NewPipeline(gw, engine, tuning, logger.Slog())
	result, err := pipeline.Run(cmd.Context(), candidates, params)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if outputPath != "" {
		if err := os.WriteFile(outputPath, out, 0o644); err != nil {
			return fmt.Errorf("failed to write result file: %w", err)
		}
		logger.Info("analysis result written", "path", outputPath,
			"findings", result.Summary.FindingsDiscovered)
		return nil
	}
	fmt.Println(string(out))
	return nil
}
