// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for
// operator-supplied values.
//
// This package validates the free-form inputs that reach the knowledge
// store and the index maintenance commands: corpus record ids, language
// names and severity levels. Rejecting malformed values at the edge
// keeps garbage out of the corpus and out of filter clauses.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// recordIDPattern matches corpus record ids.
// Allows: letters, digits, dots and hyphens (CVE-2021-23337,
// sql-injection-001). Max length: 64 characters.
var recordIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-]{0,63}$`)

// languagePattern matches language names as they appear in candidate
// metadata: lowercase letters, digits, plus signs and sharps (c++, c#).
var languagePattern = regexp.MustCompile(`^[a-z][a-z0-9+#]{0,31}$`)

// validSeverities is the closed set of severity filter values.
var validSeverities = map[string]struct{}{
	"critical": {},
	"high":     {},
	"medium":   {},
	"low":      {},
}

// ValidateRecordID validates a corpus record id.
//
// Valid ids:
//   - 1-64 characters
//   - letters and digits
//   - dots (.) and hyphens (-) as separators
//
// Returns an error if the id is invalid.
func ValidateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	if !recordIDPattern.MatchString(id) {
		return fmt.Errorf("invalid record id: %q (must be 1-64 alphanumeric chars, dots, or hyphens)", id)
	}
	return nil
}

// ValidateLanguage validates a language filter value. The empty string
// is valid and means "any language".
func ValidateLanguage(language string) error {
	if language == "" {
		return nil
	}
	if !languagePattern.MatchString(language) {
		return fmt.Errorf("invalid language: %q (must be lowercase, e.g. python, javascript, c++)", language)
	}
	return nil
}

// ValidateSeverity validates a severity filter value. The empty string
// is valid and means "any severity".
func ValidateSeverity(severity string) error {
	if severity == "" {
		return nil
	}
	if _, ok := validSeverities[severity]; !ok {
		return fmt.Errorf("invalid severity: %q (must be one of critical, high, medium, low)", severity)
	}
	return nil
}

// ValidateRecordIDs validates multiple record ids. Returns an error
// listing all invalid ids if any fail validation.
func ValidateRecordIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateRecordID(id); err != nil {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid record ids: %s", strings.Join(invalid, ", "))
	}
	return nil
}
