// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// Triage degradation constants.
const (
	// DegradedScore is the score assigned to a file when the triage
	// batch that contained it could not be scored (gateway failure,
	// undecodable response, or the file missing from an otherwise valid
	// response). The value sits deliberately in the middle of the scale:
	// a failed batch is no evidence of safety, but it must not force
	// every file into deep analysis either.
	DegradedScore = 50.0

	// DegradedConfidence is the confidence attached to a degraded score.
	DegradedConfidence = 0.1
)

// RiskLevel is the coarse label attached to a RiskScore.
type RiskLevel string

const (
	RiskLevelHigh   RiskLevel = "high"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelLow    RiskLevel = "low"
)

// LevelForScore maps a numeric score to its coarse label.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score >= 70:
		return RiskLevelHigh
	case score >= 40:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// RiskScore is the per-file output of the triage stage.
//
// # Description
//
// Exactly one RiskScore is produced for every input candidate, whether
// or not the gateway call for its batch succeeded. Score is always in
// [0,100] and Confidence in [0,1]; Degraded marks scores that carry the
// documented default rather than a model judgement.
//
// # Fields
//
//   - Path: reference to the scored FileCandidate.
//   - Score: numeric risk in [0,100].
//   - Confidence: model confidence in [0,1].
//   - Rationale: free-text justification, or the degradation cause.
//   - Level: coarse high/medium/low label derived from Score.
//   - Degraded: true when Score is the default degraded value.
type RiskScore struct {
	Path       string    `json:"path"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale"`
	Level      RiskLevel `json:"level"`
	Degraded   bool      `json:"degraded"`
}

// NewDegradedRiskScore builds the documented default score for a file
// whose batch could not be scored. The cause ends up in the rationale so
// result consumers can tell why the file was not really triaged.
func NewDegradedRiskScore(path, cause string) RiskScore {
	return RiskScore{
		Path:       path,
		Score:      DegradedScore,
		Confidence: DegradedConfidence,
		Rationale:  "triage degraded: " + cause,
		Level:      LevelForScore(DegradedScore),
		Degraded:   true,
	}
}
