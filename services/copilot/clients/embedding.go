// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package clients

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// EmbeddingClient computes query embeddings for the two-stage similarity
// tools. It speaks the OpenAI embeddings contract; EMBEDDING_SERVICE_URL
// may point it at a self-hosted compatible endpoint instead.
type EmbeddingClient struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewEmbeddingClient builds an embedding client.
func NewEmbeddingClient(apiKey, baseURL, model string) (*EmbeddingClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key is missing")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
		slog.Info("Using custom embedding endpoint", "baseURL", baseURL)
	}

	return &EmbeddingClient{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(model),
	}, nil
}

// Embed returns the embedding vector for one query string.
func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding service returned no vectors")
	}
	return resp.Data[0].Embedding, nil
}
