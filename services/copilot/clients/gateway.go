// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GatewayClient talks to the retrieval gateway's standards-search
// endpoints. The gateway hosts one collection per standard; the slug in
// the path selects it.
type GatewayClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewGatewayClient builds a gateway client.
func NewGatewayClient(baseURL, apiKey string) *GatewayClient {
	return &GatewayClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// StandardsQuery is the gateway search request body.
type StandardsQuery struct {
	Query   string            `json:"query"`
	Filters map[string]string `json:"filters,omitempty"`
	Limit   int               `json:"limit"`
}

// RawStandardsResponse is the gateway's reply, tolerant of the field
// naming drift between gateway versions. Tools normalize this into the
// stable schema before the model ever sees it.
type RawStandardsResponse struct {
	Standard string            `json:"standard"`
	Edition  string            `json:"edition"`
	Results  []RawStandardsHit `json:"results"`
	// Older gateway builds called the list "matches".
	Matches []RawStandardsHit `json:"matches"`
}

// RawStandardsHit carries every field name any gateway version has used.
type RawStandardsHit struct {
	Section       string   `json:"section"`
	SectionNumber string   `json:"sectionNumber"`
	Chapter       string   `json:"chapter"`
	ChapterNumber string   `json:"chapterNumber"`
	Title         string   `json:"title"`
	Heading       string   `json:"heading"`
	Score         *float64 `json:"score"`
	Similarity    *float64 `json:"similarity"`
	Text          string   `json:"text"`
	Excerpt       string   `json:"excerpt"`
	Content       string   `json:"content"`
}

// SearchStandards queries one standard's collection by slug.
func (c *GatewayClient) SearchStandards(ctx context.Context, slug string, q StandardsQuery) (*RawStandardsResponse, error) {
	reqBody, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	endpoint := c.baseURL + "/search/" + slug
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Service: "standards search", Status: resp.StatusCode}
	}

	var raw RawStandardsResponse
	if err := json.Unmarshal(bodyBytes, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse gateway response: %w", err)
	}
	return &raw, nil
}
