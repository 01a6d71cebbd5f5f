// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the model backend for the copilot orchestrator.
//
// The orchestrator speaks a content-block Messages contract: a request is
// a system prompt, a message history, and an optional tool catalog; a
// response is a list of content blocks plus a stop reason and token usage.
// The concrete backend (Anthropic-style REST API) lives behind the
// ModelClient interface so the conversation loop can be tested with a
// scripted fake.
package llm

import (
	"context"
	"encoding/json"
)

// Stop reasons the orchestrator branches on.
const (
	StopReasonEndTurn = "end_turn"
	StopReasonToolUse = "tool_use"
)

// Content block types.
const (
	BlockTypeText       = "text"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
)

// ContentBlock is one block of a message. Which fields are set depends on
// Type: text blocks carry Text, tool_use blocks carry ID/Name/Input, and
// tool_result blocks carry ToolUseID/Content.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use (model -> orchestrator)
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result (orchestrator -> model)
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// ChatMessage is one turn of model conversation.
type ChatMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage builds a single-text-block message.
func TextMessage(role, text string) ChatMessage {
	return ChatMessage{
		Role:    role,
		Content: []ContentBlock{{Type: BlockTypeText, Text: text}},
	}
}

// Tool is a tool definition offered to the model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// MessagesRequest is one model round-trip.
type MessagesRequest struct {
	System    string
	Messages  []ChatMessage
	Tools     []Tool
	MaxTokens int
}

// Usage is per-call token accounting as reported by the backend.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MessagesResponse is the model's reply to one round-trip.
type MessagesResponse struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// ToolUses returns the tool_use blocks in model order.
func (r *MessagesResponse) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, b := range r.Content {
		if b.Type == BlockTypeToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// JoinText concatenates all text blocks with newlines. Returns "" when the
// response carried no text block.
func (r *MessagesResponse) JoinText() string {
	out := ""
	for _, b := range r.Content {
		if b.Type != BlockTypeText || b.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += b.Text
	}
	return out
}

// ModelClient is the standard interface for any model backend.
type ModelClient interface {
	Messages(ctx context.Context, req MessagesRequest) (*MessagesResponse, error)
}
