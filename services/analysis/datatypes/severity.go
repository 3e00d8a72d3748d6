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

import "strings"

// Severity is the ordered severity scale used across findings and
// knowledge records: critical > high > medium > low.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityRanks maps each severity to its ordering weight. Unknown
// severities rank below low so they sort last.
var severityRanks = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
}

// Rank returns the ordering weight of the severity. Higher is more
// severe; unknown values return 0.
func (s Severity) Rank() int {
	return severityRanks[s]
}

// Valid reports whether the severity is one of the four known levels.
func (s Severity) Valid() bool {
	_, ok := severityRanks[s]
	return ok
}

// ParseSeverity normalises a free-text severity emitted by the reasoning
// service into one of the known levels. Unrecognised input maps to
// SeverityLow rather than failing: a finding with a garbled severity is
// still a finding.
func ParseSeverity(raw string) Severity {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if s.Valid() {
		return s
	}
	return SeverityLow
}
