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
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TuningConfig holds the pipeline knobs that operators adjust per
// deployment: batch geometry, pacing, concurrency and retrieval depth.
// Everything has a working default; a missing file is not an error.
type TuningConfig struct {
	// BatchSize is the number of candidates scored per triage call.
	BatchSize int `yaml:"batch_size"`

	// BatchDelay is the pause between consecutive triage batches, a
	// crude rate limit against provider throttling.
	BatchDelay time.Duration `yaml:"batch_delay"`

	// RiskThreshold is the minimum triage score that promotes a file
	// to deep analysis.
	RiskThreshold float64 `yaml:"risk_threshold"`

	// DeepScanWorkers bounds concurrent deep-analysis calls.
	DeepScanWorkers int `yaml:"deep_scan_workers"`

	// DeepScanDelay spaces out deep-analysis submissions.
	DeepScanDelay time.Duration `yaml:"deep_scan_delay"`

	// RetrievalK is the number of corpus records fetched per finding
	// during remediation enhancement.
	RetrievalK int `yaml:"retrieval_k"`
}

// DefaultTuning returns the tuning used when no config file is given.
func DefaultTuning() TuningConfig {
	return TuningConfig{
		BatchSize:       10,
		BatchDelay:      1 * time.Second,
		RiskThreshold:   70,
		DeepScanWorkers: 4,
		DeepScanDelay:   500 * time.Millisecond,
		RetrievalK:      3,
	}
}

// LoadTuning reads a YAML tuning file and overlays it on the defaults.
//
// path == "" returns the defaults. Unset fields in the file keep their
// defaults; out-of-range values are clamped back with a warning rather
// than rejected, so a bad knob never blocks a run.
func LoadTuning(path string) (TuningConfig, error) {
	cfg := DefaultTuning()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read tuning config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse tuning config: %w", err)
	}

	def := DefaultTuning()
	if cfg.BatchSize < 1 || cfg.BatchSize > 100 {
		slog.Warn("batch_size out of range, using default",
			"configured", cfg.BatchSize, "default", def.BatchSize)
		cfg.BatchSize = def.BatchSize
	}
	if cfg.RiskThreshold < 0 || cfg.RiskThreshold > 100 {
		slog.Warn("risk_threshold out of range, using default",
			"configured", cfg.RiskThreshold, "default", def.RiskThreshold)
		cfg.RiskThreshold = def.RiskThreshold
	}
	if cfg.DeepScanWorkers < 1 {
		slog.Warn("deep_scan_workers out of range, using default",
			"configured", cfg.DeepScanWorkers, "default", def.DeepScanWorkers)
		cfg.DeepScanWorkers = def.DeepScanWorkers
	}
	if cfg.RetrievalK < 1 {
		slog.Warn("retrieval_k out of range, using default",
			"configured", cfg.RetrievalK, "default", def.RetrievalK)
		cfg.RetrievalK = def.RetrievalK
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = def.BatchDelay
	}
	if cfg.DeepScanDelay < 0 {
		cfg.DeepScanDelay = def.DeepScanDelay
	}
	return cfg, nil
}
