// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder encodes text into dense vectors for the embedding index.
//
// Implementations must be safe for concurrent use; index rebuilds and
// query-time encoding share one instance.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model names the embedding model; it is recorded in the index
	// sidecar so operators can tell which model built an index.
	Model() string
}

// OpenAIEmbedder implements Embedder against an OpenAI-compatible
// embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder builds an embedder from the environment.
//
// # Configuration
//
//   - EMBEDDING_API_KEY: required; falls back to AI_API_KEY so a single
//     key deployment needs one variable.
//   - EMBEDDING_BASE_URL: endpoint base; falls back to the provider
//     default when unset.
//   - EMBEDDING_MODEL: model name, defaults to text-embedding-3-small.
func NewOpenAIEmbedder() (*OpenAIEmbedder, error) {
	apiKey := os.Getenv("EMBEDDING_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("AI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("EMBEDDING_API_KEY environment variable not set")
	}

	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = string(openai.SmallEmbedding3)
		slog.Warn("EMBEDDING_MODEL not set, defaulting", "model", model)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("EMBEDDING_BASE_URL"); baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(model),
	}, nil
}

// Model implements the Embedder interface.
func (e *OpenAIEmbedder) Model() string { return string(e.model) }

// Embed implements the Embedder interface. Vectors come back in input
// order, one per text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response size mismatch: want %d, got %d",
			len(texts), len(resp.Data))
	}
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding response index out of range: %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
