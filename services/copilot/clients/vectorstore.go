// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// VectorStore wraps the Weaviate client for the similarity-search tools.
// Callers supply the query vector (computed by the EmbeddingClient) and
// get back loosely-typed candidates with certainty scores; tier
// classification happens in the tools package.
type VectorStore struct {
	client *weaviate.Client
}

// NewVectorStore parses the service URL and builds a store. The URL must
// carry an http or https scheme, same validation main applies before
// enabling the similarity tools.
func NewVectorStore(rawURL string) (*VectorStore, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid vector store URL %q: %w", rawURL, err)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	return &VectorStore{client: client}, nil
}

// Candidate is one vector-search hit.
type Candidate struct {
	Properties map[string]any
	Certainty  float64
}

// Search runs a nearVector query against one class and returns candidates
// in similarity order.
func (v *VectorStore) Search(ctx context.Context, className string, vector []float32, limit int, props []string) ([]Candidate, error) {
	fields := make([]graphql.Field, 0, len(props)+1)
	for _, p := range props {
		fields = append(fields, graphql.Field{Name: p})
	}
	// Request certainty (always [0,1]) instead of distance which varies by metric.
	fields = append(fields, graphql.Field{
		Name:   "_additional",
		Fields: []graphql.Field{{Name: "certainty"}},
	})

	nearVector := v.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	resp, err := v.client.GraphQL().Get().
		WithClassName(className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	return parseCandidates(resp, className)
}

func parseCandidates(resp *models.GraphQLResponse, className string) ([]Candidate, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate GraphQL error: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL data: %w", err)
	}

	var parsed struct {
		Get map[string][]map[string]any `json:"Get"`
	}
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse GraphQL data: %w", err)
	}

	rows := parsed.Get[className]
	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		c := Candidate{Properties: map[string]any{}}
		for k, val := range row {
			if k == "_additional" {
				if add, ok := val.(map[string]any); ok {
					if cert, ok := add["certainty"].(float64); ok {
						c.Certainty = cert
					}
				}
				continue
			}
			c.Properties[k] = val
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}
