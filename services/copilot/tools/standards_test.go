// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aas-portal/copilot/services/copilot/clients"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }

func TestNormalizeStandardsCoalescesFieldDrift(t *testing.T) {
	meta := standardsTools[ToolSearchFireDoorCode]
	raw := &clients.RawStandardsResponse{
		// Older gateway builds: "matches" with numbered field names.
		Matches: []clients.RawStandardsHit{
			{
				SectionNumber: "5.2.1",
				ChapterNumber: "5",
				Heading:       "Inspection frequency",
				Similarity:    floatPtr(0.91),
				Excerpt:       "Fire door assemblies shall be inspected annually.",
			},
		},
	}

	result := NormalizeStandards(meta, "inspection frequency", nil, raw)

	assert.Equal(t, "NFPA 80", result.Standard)
	assert.Equal(t, "2022", result.Edition)
	require.Len(t, result.Results, 1)
	hit := result.Results[0]
	assert.Equal(t, "5.2.1", hit.Section)
	assert.Equal(t, "5", hit.Chapter)
	assert.Equal(t, "Inspection frequency", hit.Title)
	assert.Equal(t, 0.91, hit.Score)
	assert.Contains(t, hit.Text, "inspected annually")
}

func TestNormalizeStandardsPrefersCurrentFieldNames(t *testing.T) {
	meta := standardsTools[ToolSearchLifeSafetyCode]
	raw := &clients.RawStandardsResponse{
		Standard: "NFPA 101",
		Edition:  "2024",
		Results: []clients.RawStandardsHit{
			{
				Section:       "7.2.1.4",
				SectionNumber: "ignored",
				Title:         "Door leaf operation",
				Heading:       "ignored",
				Score:         floatPtr(0.8),
				Similarity:    floatPtr(0.1),
				Text:          "current text",
				Excerpt:       "ignored",
			},
		},
	}

	result := NormalizeStandards(meta, "egress doors", nil, raw)

	// The gateway's self-reported edition wins over the static table.
	assert.Equal(t, "2024", result.Edition)
	hit := result.Results[0]
	assert.Equal(t, "7.2.1.4", hit.Section)
	assert.Equal(t, "Door leaf operation", hit.Title)
	assert.Equal(t, 0.8, hit.Score)
	assert.Equal(t, "current text", hit.Text)
}

func TestNormalizeStandardsIsIdempotent(t *testing.T) {
	meta := standardsTools[ToolSearchSmokeDoorCode]
	raw := &clients.RawStandardsResponse{
		Results: []clients.RawStandardsHit{
			{Section: "6.1", Text: strings.Repeat("smoke ", 200)},
		},
	}

	first := NormalizeStandards(meta, "leakage", map[string]string{"chapter": "6"}, raw)
	second := NormalizeStandards(meta, "leakage", map[string]string{"chapter": "6"}, raw)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))

	// Long text is clipped.
	assert.LessOrEqual(t, len(first.Results[0].Text), maxExcerptLen+3)
}

func TestNormalizeStandardsNilAndEmpty(t *testing.T) {
	meta := standardsTools[ToolSearchHardwareStds]

	result := NormalizeStandards(meta, "closing force", nil, nil)
	assert.Equal(t, "ANSI/BHMA A156", result.Standard)
	assert.NotNil(t, result.Results)
	assert.Empty(t, result.Results)
	assert.NotNil(t, result.Filters)
}

func TestExecuteStandardsSendsChapterFilter(t *testing.T) {
	var gotPath string
	var gotBody clients.StandardsQuery
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(clients.RawStandardsResponse{
			Results: []clients.RawStandardsHit{
				{Section: "6.4.2", Chapter: "6", Title: "Hold-open devices", Score: floatPtr(0.77), Text: "..."},
			},
		})
	}))
	defer srv.Close()

	catalog, err := NewCatalog()
	require.NoError(t, err)
	exec := NewExecutor(catalog, nil, clients.NewGatewayClient(srv.URL, "test-key"), nil, nil, nil)

	payload := exec.executeStandards(context.Background(), standardsTools[ToolSearchFireDoorCode], map[string]any{
		"query":   "hold open devices",
		"chapter": "6",
	})

	assert.Equal(t, "/search/nfpa-80", gotPath)
	assert.Equal(t, "hold open devices", gotBody.Query)
	assert.Equal(t, "6", gotBody.Filters["chapter"])

	out := decodePayload(t, payload)
	assert.Equal(t, "NFPA 80", out["standard"])
	results := out["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "6.4.2", results[0].(map[string]any)["section"])
}

func TestExecuteStandardsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	catalog, err := NewCatalog()
	require.NoError(t, err)
	exec := NewExecutor(catalog, nil, clients.NewGatewayClient(srv.URL, ""), nil, nil, nil)

	payload := exec.executeStandards(context.Background(), standardsTools[ToolSearchLifeSafetyCode], map[string]any{
		"query": "egress",
	})

	out := decodePayload(t, payload)
	assert.Equal(t, "standards search unavailable", out["error"])
	assert.EqualValues(t, http.StatusBadGateway, out["status"])
}
