// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"testing"

	"github.com/aas-portal/copilot/services/copilot/datatypes"
	"github.com/stretchr/testify/assert"
)

func TestDetectManufacturerPrecedence(t *testing.T) {
	req := &datatypes.CopilotRequest{
		Messages: []datatypes.Message{
			{Role: "user", Content: "My Horton slider is beeping"},
			{Role: "assistant", Content: "Which error code?"},
			{Role: "user", Content: "It shows error 41"},
		},
		DoorContext: &datatypes.DoorContext{Manufacturer: "besam"},
	}

	// Last user message has no manufacturer; answer text decides next.
	assert.Equal(t, "stanley", DetectManufacturer(req, "That's a Stanley Dura-Glide fault."))

	// A mention in the last user message wins over the answer.
	req.Messages = append(req.Messages, datatypes.Message{Role: "user", Content: "it's a NABCO actually"})
	assert.Equal(t, "nabco", DetectManufacturer(req, "That's a Stanley fault."))

	// Neither message nor answer: door context fallback.
	req.Messages = []datatypes.Message{{Role: "user", Content: "door won't open"}}
	assert.Equal(t, "besam", DetectManufacturer(req, "Check the activation sensor."))

	// Nothing anywhere.
	req.DoorContext = nil
	assert.Equal(t, "", DetectManufacturer(req, "Check the activation sensor."))
}

func TestDetectManufacturerCaseInsensitive(t *testing.T) {
	req := &datatypes.CopilotRequest{
		Messages: []datatypes.Message{{Role: "user", Content: "TORMAX door stuck"}},
	}
	assert.Equal(t, "tormax", DetectManufacturer(req, ""))
}

func TestBuildResponse(t *testing.T) {
	req := &datatypes.CopilotRequest{
		Messages: []datatypes.Message{{Role: "user", Content: "horton error 41"}},
	}
	run := &RunResult{
		Text:       "Beam obstruction fault.",
		Iterations: 2,
		ToolCalls: []datatypes.ToolCallTrace{
			{Name: "search_manuals", Input: map[string]any{"query": "error 41"}, Result: "{}"},
		},
		Usage: datatypes.Usage{InputTokens: 30, OutputTokens: 13},
	}

	resp := BuildResponse(req, run)
	assert.Equal(t, "Beam obstruction fault.", resp.Response)
	assert.Equal(t, "horton", resp.Manufacturer)
	assert.True(t, resp.ToolsUsed)
	assert.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, 2, resp.Iterations)
	assert.Equal(t, 30, resp.Usage.InputTokens)
	assert.Empty(t, resp.Error)
}

func TestBuildResponseNoTools(t *testing.T) {
	req := &datatypes.CopilotRequest{
		Messages: []datatypes.Message{{Role: "user", Content: "hi"}},
	}
	resp := BuildResponse(req, &RunResult{Text: "Hello!", Iterations: 1})
	assert.False(t, resp.ToolsUsed)
	assert.Empty(t, resp.ToolCalls)
}
