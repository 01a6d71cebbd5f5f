// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"

	"github.com/aas-portal/copilot/services/copilot/clients"
)

// StandardMeta identifies one standards collection on the gateway.
type StandardMeta struct {
	Slug     string
	Standard string
	Edition  string
}

// standardsTools maps each compliance tool to its gateway collection.
// Editions track what the gateway has ingested, not the newest print.
var standardsTools = map[string]StandardMeta{
	ToolSearchFireDoorCode:   {Slug: "nfpa-80", Standard: "NFPA 80", Edition: "2022"},
	ToolSearchLifeSafetyCode: {Slug: "nfpa-101", Standard: "NFPA 101", Edition: "2021"},
	ToolSearchSmokeDoorCode:  {Slug: "nfpa-105", Standard: "NFPA 105", Edition: "2022"},
	ToolSearchHardwareStds:   {Slug: "ansi-bhma-a156", Standard: "ANSI/BHMA A156", Edition: "2019"},
}

// StandardsResult is the stable model-facing schema for every standards
// tool, independent of which gateway version produced the raw hits.
type StandardsResult struct {
	Standard string            `json:"standard"`
	Edition  string            `json:"edition"`
	Query    string            `json:"query"`
	Filters  map[string]string `json:"filters"`
	Results  []StandardsHit    `json:"results"`
}

// StandardsHit is one normalized excerpt.
type StandardsHit struct {
	Section string  `json:"section"`
	Chapter string  `json:"chapter"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

func (e *Executor) executeStandards(ctx context.Context, meta StandardMeta, input map[string]any) string {
	if e.gateway == nil {
		return errorPayload("standards search unavailable", nil)
	}

	query := strArg(input, "query")
	filters := map[string]string{}
	if chapter := strArg(input, "chapter"); chapter != "" {
		filters["chapter"] = chapter
	}

	raw, err := e.gateway.SearchStandards(ctx, meta.Slug, clients.StandardsQuery{
		Query:   query,
		Filters: filters,
		Limit:   limitArg(input),
	})
	if err != nil {
		return upstreamErrorPayload("standards search", err)
	}

	return marshalPayload(NormalizeStandards(meta, query, filters, raw))
}

// NormalizeStandards maps a raw gateway reply onto the stable schema.
// Pure function: same raw input always yields byte-identical output.
func NormalizeStandards(meta StandardMeta, query string, filters map[string]string,
	raw *clients.RawStandardsResponse) StandardsResult {

	result := StandardsResult{
		Standard: meta.Standard,
		Edition:  meta.Edition,
		Query:    query,
		Filters:  filters,
		Results:  []StandardsHit{},
	}
	if result.Filters == nil {
		result.Filters = map[string]string{}
	}
	if raw == nil {
		return result
	}

	if raw.Standard != "" {
		result.Standard = raw.Standard
	}
	if raw.Edition != "" {
		result.Edition = raw.Edition
	}

	hits := raw.Results
	if len(hits) == 0 {
		hits = raw.Matches
	}

	for _, h := range hits {
		hit := StandardsHit{
			Section: firstNonEmpty(h.Section, h.SectionNumber),
			Chapter: firstNonEmpty(h.Chapter, h.ChapterNumber),
			Title:   firstNonEmpty(h.Title, h.Heading),
			Text:    truncate(firstNonEmpty(h.Text, h.Excerpt, h.Content), maxExcerptLen),
		}
		switch {
		case h.Score != nil:
			hit.Score = *h.Score
		case h.Similarity != nil:
			hit.Score = *h.Similarity
		}
		result.Results = append(result.Results, hit)
	}

	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
