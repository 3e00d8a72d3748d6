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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverity_Rank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Greater(t, SeverityLow.Rank(), Severity("bogus").Rank())
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		raw  string
		want Severity
	}{
		{"critical", SeverityCritical},
		{"Critical", SeverityCritical},
		{" HIGH ", SeverityHigh},
		{"medium", SeverityMedium},
		{"low", SeverityLow},
		{"severe", SeverityLow},
		{"", SeverityLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSeverity(tt.raw), "input %q", tt.raw)
	}
}

func TestSeverity_Valid(t *testing.T) {
	assert.True(t, SeverityMedium.Valid())
	assert.False(t, Severity("moderate").Valid())
	assert.False(t, Severity("").Valid())
}
