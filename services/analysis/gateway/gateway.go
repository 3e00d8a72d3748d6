// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway is the sole boundary abstraction over the external
// language-reasoning capability.
//
// The gateway deliberately does NOT retry. The three stages want
// different degradation behaviour on failure (batch default score, drop
// the file, keep the original remediation), so retry and fallback
// policy lives with the callers.
package gateway

import (
	"context"
	"fmt"
)

// ReasoningGateway is the single abstraction over the external
// reasoning call: text prompt in, text response out.
//
// # Errors
//
// Implementations fail with a *GatewayError carrying one of the three
// failure kinds (timeout, transport, empty response). Callers translate
// those failures into whatever degradation their stage requires.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; stage worker pools
// share one gateway instance.
type ReasoningGateway interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// FailureKind classifies a gateway failure.
type FailureKind string

const (
	// KindTimeout: the per-call deadline elapsed before the service
	// produced a response.
	KindTimeout FailureKind = "timeout"
	// KindTransport: the HTTP exchange itself failed (connection
	// refused, non-2xx status, undecodable body).
	KindTransport FailureKind = "transport"
	// KindEmptyResponse: the service answered but returned no usable
	// text (no choices, or empty content).
	KindEmptyResponse FailureKind = "empty_response"
)

// GatewayError is the typed failure of a Infer call.
type GatewayError struct {
	Kind    FailureKind
	Message string
	Cause   error
}

// Error implements the error interface for GatewayError.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("reasoning gateway %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("reasoning gateway %s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *GatewayError) Unwrap() error { return e.Cause }

// IsGatewayError checks if an error is a *GatewayError.
func IsGatewayError(err error) bool {
	_, ok := err.(*GatewayError)
	return ok
}

// IsTimeout reports whether err is a gateway timeout.
func IsTimeout(err error) bool {
	ge, ok := err.(*GatewayError)
	return ok && ge.Kind == KindTimeout
}
