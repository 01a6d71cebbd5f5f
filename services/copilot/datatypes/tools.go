// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// ToolSpec is one model-facing tool: a name, a description the model
// reads, and a JSON-schema input contract the executor validates against.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolInvocation is a single tool call requested by the model.
type ToolInvocation struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult pairs a tool-call id with the executor's payload. Payload is
// always a well-formed JSON object string, including on failure, so the
// model can keep reasoning after an upstream error.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Payload    string `json:"payload"`
}
