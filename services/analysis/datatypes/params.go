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
	"fmt"

	"github.com/go-playground/validator/v10"
)

// paramsValidate is the validator instance for pipeline parameters.
var paramsValidate *validator.Validate

func init() {
	paramsValidate = validator.New()
}

// AnalyzeParams are the caller-supplied parameters of a pipeline run.
//
// # Fields
//
//   - BatchSize: number of candidates per triage gateway call. Must be
//     between 1 and 100; 10 is the usual value.
//   - RiskThreshold: minimum triage score for a file to enter deep
//     analysis, in [0,100].
//
// # Validation
//
// Validate is the only pipeline check that can abort a run. Everything
// downstream degrades instead of failing.
type AnalyzeParams struct {
	BatchSize     int     `json:"batch_size" validate:"required,gte=1,lte=100"`
	RiskThreshold float64 `json:"risk_threshold" validate:"gte=0,lte=100"`
}

// Validate checks the parameters and wraps any violation in a
// *ValidationError.
func (p AnalyzeParams) Validate() error {
	if err := paramsValidate.Struct(p); err != nil {
		return &ValidationError{Cause: err}
	}
	return nil
}

// ValidationError reports invalid caller-supplied pipeline parameters.
// It is the only error the pipeline entrypoint ever returns.
type ValidationError struct {
	Cause error
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pipeline parameters: %v", e.Cause)
}

// Unwrap exposes the underlying validator error.
func (e *ValidationError) Unwrap() error { return e.Cause }

// IsValidationError checks if an error is a *ValidationError.
func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}
