// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the request, response, and identity types shared
// across the copilot service. Types here are plain data with json tags;
// behavior lives in the agent, tools, and tenancy packages.
package datatypes

// Request modes accepted by the copilot endpoint. Technician mode is the
// default and degrades gracefully on bad tokens; customer-portal mode
// enforces token expiry and tenant isolation.
const (
	ModeTechnician     = "technician"
	ModeCustomerPortal = "customer_portal"
)

// Message is one turn of caller-supplied conversation history.
type Message struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// DoorContext is the page context block the portal sends along with a
// question when the user is looking at a specific door.
type DoorContext struct {
	Page         string `json:"page,omitempty"`
	DoorID       string `json:"doorId,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	DoorType     string `json:"door_type,omitempty"`
	Controller   string `json:"controller,omitempty"`
	SiteName     string `json:"site_name,omitempty"`
}

// CustomerContext carries customer-portal page context.
type CustomerContext struct {
	Page     string `json:"page,omitempty"`
	SiteName string `json:"site_name,omitempty"`
}

// CopilotRequest is the body of POST /api/copilot.
type CopilotRequest struct {
	Messages        []Message        `json:"messages" binding:"required,min=1,dive"`
	DoorID          string           `json:"doorId,omitempty"`
	DoorContext     *DoorContext     `json:"doorContext,omitempty"`
	Mode            string           `json:"mode,omitempty" binding:"omitempty,copilotmode"`
	Customer        string           `json:"customer,omitempty"`
	CustomerContext *CustomerContext `json:"customerContext,omitempty"`
}

// ToolCallTrace is one executed tool call as reported back to the portal.
// Result strings are truncated before they land here; the full payload
// only ever travels through the model conversation.
type ToolCallTrace struct {
	Name   string         `json:"name"`
	Input  map[string]any `json:"input"`
	Result string         `json:"result"`
}

// Usage is the token accounting for one request, summed across every
// model round-trip including the forced summary call.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// CopilotResponse is the 200 body of POST /api/copilot.
type CopilotResponse struct {
	Response     string          `json:"response"`
	Manufacturer string          `json:"manufacturer,omitempty"`
	ToolsUsed    bool            `json:"toolsUsed"`
	ToolCalls    []ToolCallTrace `json:"toolCalls,omitempty"`
	Iterations   int             `json:"iterations"`
	Usage        Usage           `json:"usage"`
	Error        string          `json:"error,omitempty"`
}
