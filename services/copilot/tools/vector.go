// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// Match tiers. The model-facing contract exposes the tier, not the raw
// similarity rank: a result that contains every query token is a better
// answer than a semantically-near one that contains none.
const (
	TierExact   = "exact"
	TierClose   = "close"
	TierPartial = "partial"
)

// Tiering thresholds and scoring weights. Coverage is the fraction of
// distinct query tokens found in the candidate's searchable text; a
// partial match must additionally clear the similarity floor.
const (
	closeCoverage         = 0.5
	partialScoreThreshold = 0.65

	coverageWeight    = 0.25
	manufacturerBoost = 0.10
	partNumberBoost   = 0.15
)

// Tokenize lower-cases and splits on anything non-alphanumeric, dropping
// empty fields.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Coverage returns the fraction of distinct query tokens present in the
// candidate text. Zero query tokens cover nothing.
func Coverage(queryTokens []string, text string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	candidate := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		candidate[tok] = struct{}{}
	}

	distinct := make(map[string]struct{})
	found := 0
	for _, tok := range queryTokens {
		if _, seen := distinct[tok]; seen {
			continue
		}
		distinct[tok] = struct{}{}
		if _, ok := candidate[tok]; ok {
			found++
		}
	}
	return float64(found) / float64(len(distinct))
}

// ClassifyTier buckets a candidate by coverage. Full coverage is exact,
// half or better is close; below that the candidate is partial when its
// similarity score clears the floor, regardless of coverage. Returns
// false when the candidate should be excluded entirely.
func ClassifyTier(coverage, score float64) (string, bool) {
	switch {
	case coverage >= 1.0:
		return TierExact, true
	case coverage >= closeCoverage:
		return TierClose, true
	case score >= partialScoreThreshold:
		return TierPartial, true
	default:
		return "", false
	}
}

// AdjustScore combines raw similarity with keyword coverage and the
// categorical boosts. Used only for ordering inside a tier.
func AdjustScore(raw, coverage float64, manufacturerExact, partNumberExact bool) float64 {
	score := raw + coverageWeight*coverage
	if manufacturerExact {
		score += manufacturerBoost
	}
	if partNumberExact {
		score += partNumberBoost
	}
	return score
}

func tierRank(tier string) int {
	switch tier {
	case TierExact:
		return 0
	case TierClose:
		return 1
	default:
		return 2
	}
}

// scoredHit is the shared shape both similarity tools sort before
// shaping their payloads.
type scoredHit struct {
	tier     string
	adjusted float64
	fields   map[string]any
}

func sortHits(hits []scoredHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		ri, rj := tierRank(hits[i].tier), tierRank(hits[j].tier)
		if ri != rj {
			return ri < rj
		}
		return hits[i].adjusted > hits[j].adjusted
	})
}

// =============================================================================
// search_manuals
// =============================================================================

var manualChunkProps = []string{"title", "content", "manufacturer", "source", "page", "internalNotes"}

func (e *Executor) executeManualSearch(ctx context.Context, input map[string]any, redacted bool) string {
	if e.embed == nil || e.vectors == nil {
		return errorPayload("knowledge search unavailable", nil)
	}

	query := strArg(input, "query")
	manufacturer := strings.ToLower(strArg(input, "manufacturer"))
	limit := limitArg(input)

	vector, err := e.embed.Embed(ctx, query)
	if err != nil {
		return upstreamErrorPayload("embedding service", err)
	}

	// Over-fetch so tiering has something to demote or drop.
	candidates, err := e.vectors.Search(ctx, "ManualChunk", vector, limit*3, manualChunkProps)
	if err != nil {
		return upstreamErrorPayload("knowledge search", err)
	}

	queryTokens := Tokenize(query)
	hits := make([]scoredHit, 0, len(candidates))
	for _, c := range candidates {
		title := propString(c.Properties, "title")
		content := propString(c.Properties, "content")
		candMfg := strings.ToLower(propString(c.Properties, "manufacturer"))

		if manufacturer != "" && candMfg != manufacturer {
			continue
		}

		coverage := Coverage(queryTokens, title+" "+content)
		tier, keep := ClassifyTier(coverage, c.Certainty)
		if !keep {
			continue
		}

		mfgExact := manufacturer != "" && candMfg == manufacturer
		adjusted := AdjustScore(c.Certainty, coverage, mfgExact, false)

		fields := map[string]any{
			"title":        title,
			"manufacturer": propString(c.Properties, "manufacturer"),
			"source":       propString(c.Properties, "source"),
			"page":         c.Properties["page"],
			"match":        tier,
			"score":        round3(adjusted),
			"excerpt":      truncate(content, maxExcerptLen),
		}
		if !redacted {
			if notes := propString(c.Properties, "internalNotes"); notes != "" {
				fields["internal_notes"] = truncate(notes, maxNotesLen)
			}
		}
		hits = append(hits, scoredHit{tier: tier, adjusted: adjusted, fields: fields})
	}

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.fields)
	}
	return marshalPayload(map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

// =============================================================================
// search_parts
// =============================================================================

var partProps = []string{"partNumber", "description", "manufacturer", "compatibleModels"}

func (e *Executor) executePartSearch(ctx context.Context, input map[string]any) string {
	if e.embed == nil || e.vectors == nil {
		return errorPayload("parts search unavailable", nil)
	}

	query := strArg(input, "query")
	manufacturer := strings.ToLower(strArg(input, "manufacturer"))
	limit := limitArg(input)

	vector, err := e.embed.Embed(ctx, query)
	if err != nil {
		return upstreamErrorPayload("embedding service", err)
	}

	candidates, err := e.vectors.Search(ctx, "Part", vector, limit*3, partProps)
	if err != nil {
		return upstreamErrorPayload("parts search", err)
	}

	queryTokens := Tokenize(query)
	hits := make([]scoredHit, 0, len(candidates))
	for _, c := range candidates {
		partNumber := propString(c.Properties, "partNumber")
		description := propString(c.Properties, "description")
		candMfg := strings.ToLower(propString(c.Properties, "manufacturer"))

		searchable := partNumber + " " + description + " " + candMfg
		coverage := Coverage(queryTokens, searchable)
		tier, keep := ClassifyTier(coverage, c.Certainty)
		if !keep {
			continue
		}

		mfgExact := manufacturer != "" && candMfg == manufacturer
		partExact := containsToken(queryTokens, strings.ToLower(partNumber))
		adjusted := AdjustScore(c.Certainty, coverage, mfgExact, partExact)

		hits = append(hits, scoredHit{tier: tier, adjusted: adjusted, fields: map[string]any{
			"part_number":       partNumber,
			"description":       truncate(description, maxExcerptLen),
			"manufacturer":      propString(c.Properties, "manufacturer"),
			"compatible_models": propString(c.Properties, "compatibleModels"),
			"match":             tier,
			"score":             round3(adjusted),
		}})
	}

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.fields)
	}
	return marshalPayload(map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func propString(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func containsToken(tokens []string, want string) bool {
	if want == "" {
		return false
	}
	for _, tok := range tokens {
		if tok == want {
			return true
		}
	}
	return false
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}
