// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Sampling and budget defaults for security analysis. Low temperature
// keeps triage scores reproducible across identical runs.
const (
	defaultModel       = "deepseek-coder"
	defaultBaseURL     = "https://api.deepseek.com/v1"
	defaultMaxTokens   = 4000
	defaultTemperature = 0.1
	defaultCallTimeout = 2 * time.Minute

	systemPersona = "You are a senior application security analyst. You identify " +
		"and analyze software vulnerabilities and answer strictly in the JSON " +
		"format requested."
)

// OpenAIGateway implements ReasoningGateway against any OpenAI-compatible
// chat completion endpoint (DeepSeek, OpenAI, a local llama.cpp proxy).
type OpenAIGateway struct {
	client      *openai.Client
	model       string
	maxTokens   int
	callTimeout time.Duration
}

// NewOpenAIGateway builds a gateway from the environment.
//
// # Configuration
//
//   - AI_API_KEY: required. Also read from /run/secrets/ai_api_key when
//     the env var is absent (container secret convention).
//   - AI_BASE_URL: endpoint base, defaults to the DeepSeek API.
//   - AI_MODEL: model name, defaults to deepseek-coder.
//   - AI_CALL_TIMEOUT: per-call deadline, Go duration syntax.
//
// Returns an error only when no API key can be found; every other
// setting falls back to a logged default.
func NewOpenAIGateway() (*OpenAIGateway, error) {
	apiKey := os.Getenv("AI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/ai_api_key"
		keyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(keyBytes))
			slog.Info("Read the reasoning API key from container secrets")
		} else {
			slog.Error("AI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("AI_API_KEY environment variable not set")
		}
	}

	baseURL := os.Getenv("AI_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
		slog.Warn("AI_BASE_URL not set, using default", "url", baseURL)
	}
	model := os.Getenv("AI_MODEL")
	if model == "" {
		model = defaultModel
		slog.Warn("AI_MODEL not set, defaulting", "model", model)
	}
	callTimeout := defaultCallTimeout
	if raw := os.Getenv("AI_CALL_TIMEOUT"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			slog.Warn("AI_CALL_TIMEOUT is not a valid duration, using default",
				"value", raw, "default", defaultCallTimeout)
		} else {
			callTimeout = parsed
		}
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing reasoning gateway", "model", model, "base_url", cfg.BaseURL)

	return &OpenAIGateway{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   defaultMaxTokens,
		callTimeout: callTimeout,
	}, nil
}

// Infer implements the ReasoningGateway interface.
//
// One prompt, one chat completion, no retries. The per-call timeout is
// enforced here: the stage-level context may be much longer-lived than
// any single call should be.
func (g *OpenAIGateway) Infer(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: defaultTemperature,
		MaxTokens:   g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPersona},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &GatewayError{Kind: KindTimeout, Message: "chat completion timed out", Cause: err}
		}
		return "", &GatewayError{Kind: KindTransport, Message: "chat completion failed", Cause: err}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		slog.Warn("Reasoning service returned no usable content", "model", g.model)
		return "", &GatewayError{Kind: KindEmptyResponse, Message: "no choices in completion"}
	}
	return resp.Choices[0].Message.Content, nil
}
