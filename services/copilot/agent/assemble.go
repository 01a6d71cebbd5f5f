// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"strings"
	"unicode"

	"github.com/aas-portal/copilot/services/copilot/datatypes"
)

// Manufacturers the portal renders a badge for. Matching is on whole
// words; "record" in particular would otherwise trip on ordinary
// sentences ("recorded", "records").
var knownManufacturers = []string{
	"stanley",
	"horton",
	"besam",
	"nabco",
	"record",
	"tormax",
	"dorma",
}

// BuildResponse shapes a finished loop run into the API response body.
func BuildResponse(req *datatypes.CopilotRequest, run *RunResult) datatypes.CopilotResponse {
	return datatypes.CopilotResponse{
		Response:     run.Text,
		Manufacturer: DetectManufacturer(req, run.Text),
		ToolsUsed:    len(run.ToolCalls) > 0,
		ToolCalls:    run.ToolCalls,
		Iterations:   run.Iterations,
		Usage:        run.Usage,
	}
}

// DetectManufacturer picks the manufacturer badge for the portal. The
// last user message wins over the answer text, and the page's door
// context is the fallback when neither mentions a known name.
func DetectManufacturer(req *datatypes.CopilotRequest, answer string) string {
	if m := scanManufacturer(lastUserMessage(req)); m != "" {
		return m
	}
	if m := scanManufacturer(answer); m != "" {
		return m
	}
	if req != nil && req.DoorContext != nil {
		return scanManufacturer(req.DoorContext.Manufacturer)
	}
	return ""
}

func lastUserMessage(req *datatypes.CopilotRequest) string {
	if req == nil {
		return ""
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

func scanManufacturer(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}
	for _, m := range knownManufacturers {
		if seen[m] {
			return m
		}
	}
	return ""
}
