// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aas-portal/copilot/services/copilot/datatypes"
	"github.com/aas-portal/copilot/services/copilot/observability"
	"github.com/aas-portal/copilot/services/copilot/tenancy"
	"github.com/aas-portal/copilot/services/copilot/tools"
	"github.com/aas-portal/copilot/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var loopTracer = otel.Tracer("copilot.agent")

// Conversation budgets. Every request gets at most maxIterations model
// round trips and may touch at most maxDistinctTools different tools;
// repeat calls to an already-used tool are free. When either budget
// would be exceeded the loop forces a summary instead of executing.
const (
	maxIterations    = 3
	maxDistinctTools = 2
)

// Result strings in traces are clipped; the full payload only travels
// through the model conversation.
const traceResultLen = 200

const (
	budgetExhaustedNote = "Tool budget exhausted. Answer now using the information already gathered."
	degradedReply       = "I ran into a problem finishing that answer. Here's what I found before the failure — please try again if you need more."
	emptyReply          = "I wasn't able to put together an answer to that. Could you rephrase the question or add more detail?"
)

// ToolRunner executes one validated tool invocation. Satisfied by
// tools.Executor.
type ToolRunner interface {
	Execute(ctx context.Context, inv datatypes.ToolInvocation, opts tools.Options) string
}

// Engine drives the model's tool-use loop.
type Engine struct {
	model   llm.ModelClient
	runner  ToolRunner
	guard   *tenancy.Guard
	metrics *observability.Metrics
	notify  chan<- TurnEvent
}

// NewEngine wires the loop. Guard and metrics may be nil.
func NewEngine(model llm.ModelClient, runner ToolRunner, guard *tenancy.Guard, metrics *observability.Metrics) *Engine {
	return &Engine{model: model, runner: runner, guard: guard, metrics: metrics}
}

// TurnEvent describes one completed conversation turn.
type TurnEvent struct {
	Profile    string
	Iterations int
	ToolCalls  int
	Degraded   bool
}

// SetNotifier attaches an optional sink for completed turns. Events are
// delivered best-effort: a nil or full channel drops them, the loop
// never waits on a consumer.
func (e *Engine) SetNotifier(ch chan<- TurnEvent) {
	e.notify = ch
}

func (e *Engine) publish(profile string, result *RunResult) {
	if e.notify == nil {
		return
	}
	event := TurnEvent{
		Profile:    profile,
		Iterations: result.Iterations,
		ToolCalls:  len(result.ToolCalls),
		Degraded:   result.Degraded,
	}
	select {
	case e.notify <- event:
	default:
	}
}

// RunInput is one conversation to drive.
type RunInput struct {
	Profile  Profile
	Identity datatypes.Identity
	Messages []datatypes.Message
}

// RunResult is the loop's outcome. Degraded marks a mid-conversation
// model failure that was absorbed into a best-effort reply.
type RunResult struct {
	Text       string
	ToolCalls  []datatypes.ToolCallTrace
	Iterations int
	Usage      datatypes.Usage
	Degraded   bool
}

// Run drives the conversation to completion. It returns an error only
// when the very first model call fails; any later failure degrades into
// a best-effort result instead, because by then tool output worth
// reporting may already exist.
func (e *Engine) Run(ctx context.Context, input RunInput) (*RunResult, error) {
	ctx, span := loopTracer.Start(ctx, "Engine.Run")
	defer span.End()
	span.SetAttributes(attribute.String("profile", input.Profile.Name))

	messages := make([]llm.ChatMessage, 0, len(input.Messages))
	for _, m := range input.Messages {
		messages = append(messages, llm.TextMessage(m.Role, m.Content))
	}

	modelTools := make([]llm.Tool, 0, len(input.Profile.Tools))
	for _, spec := range input.Profile.Tools {
		modelTools = append(modelTools, llm.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		})
	}

	result := &RunResult{}
	usedTools := make(map[string]struct{})

	for {
		resp, err := e.model.Messages(ctx, llm.MessagesRequest{
			System:   input.Profile.Prompt,
			Messages: messages,
			Tools:    modelTools,
		})
		if err != nil {
			if result.Iterations == 0 {
				return nil, err
			}
			slog.Error("Model call failed mid-conversation", "iteration", result.Iterations, "error", err)
			result.Text = degradedReply
			result.Degraded = true
			e.publish(input.Profile.Name, result)
			return result, nil
		}
		result.Iterations++
		e.recordUsage(result, resp.Usage)

		if resp.StopReason != llm.StopReasonToolUse {
			result.Text = finalText(resp)
			e.publish(input.Profile.Name, result)
			return result, nil
		}

		uses := resp.ToolUses()
		messages = append(messages, llm.ChatMessage{Role: "assistant", Content: resp.Content})

		if e.budgetExceeded(result, usedTools, uses) {
			text, summarized := e.forceSummary(ctx, input.Profile.Prompt, messages, uses, result)
			if !summarized {
				// Fall back to whatever text the last good
				// response carried.
				text = finalText(resp)
			}
			result.Text = text
			e.publish(input.Profile.Name, result)
			return result, nil
		}

		results := e.executeAll(ctx, input, uses, result)
		for _, u := range uses {
			usedTools[u.Name] = struct{}{}
		}
		messages = append(messages, llm.ChatMessage{Role: "user", Content: results})
	}
}

// budgetExceeded checks both budgets at the entry to a tooling turn,
// before anything executes: if this batch cannot run in full, none of
// it runs.
func (e *Engine) budgetExceeded(result *RunResult, usedTools map[string]struct{}, uses []llm.ContentBlock) bool {
	if result.Iterations >= maxIterations {
		return true
	}

	distinct := len(usedTools)
	newNames := make(map[string]struct{})
	for _, u := range uses {
		if _, seen := usedTools[u.Name]; seen {
			continue
		}
		if _, seen := newNames[u.Name]; seen {
			continue
		}
		newNames[u.Name] = struct{}{}
		distinct++
	}
	return distinct > maxDistinctTools
}

// executeAll runs one batch of tool invocations in parallel and returns
// the tool_result blocks in the model's request order.
func (e *Engine) executeAll(ctx context.Context, input RunInput, uses []llm.ContentBlock, result *RunResult) []llm.ContentBlock {
	payloads := make([]string, len(uses))
	var wg sync.WaitGroup
	for i, use := range uses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payloads[i] = e.executeOne(ctx, input, use)
		}()
	}
	wg.Wait()

	blocks := make([]llm.ContentBlock, len(uses))
	for i, use := range uses {
		trace := datatypes.ToolCallTrace{
			Name:   use.Name,
			Input:  decodeInput(use.Input),
			Result: clip(payloads[i], traceResultLen),
		}
		result.ToolCalls = append(result.ToolCalls, trace)

		blocks[i] = llm.ContentBlock{
			Type:      llm.BlockTypeToolResult,
			ToolUseID: use.ID,
			Content:   payloads[i],
		}
	}
	return blocks
}

func (e *Engine) executeOne(ctx context.Context, input RunInput, use llm.ContentBlock) string {
	args := decodeInput(use.Input)

	if input.Profile.Isolation && e.guard != nil {
		scoped, err := e.guard.Scope(use.Name, args, input.Identity.TenantID)
		if err != nil {
			slog.Warn("Tool call blocked by tenant guard",
				"tool", use.Name, "tenant", input.Identity.TenantID)
			return `{"error":"Access to the requested customer is not permitted"}`
		}
		args = scoped
	}

	return e.runner.Execute(ctx, datatypes.ToolInvocation{
		ID:    use.ID,
		Name:  use.Name,
		Input: args,
	}, tools.Options{Redacted: input.Profile.Redacted})
}

// forceSummary answers the model's pending tool requests with a budget
// note and asks for a final answer with no tools offered. Reports
// whether the summary call succeeded.
func (e *Engine) forceSummary(ctx context.Context, system string, messages []llm.ChatMessage, pending []llm.ContentBlock, result *RunResult) (string, bool) {
	blocks := make([]llm.ContentBlock, len(pending))
	for i, use := range pending {
		blocks[i] = llm.ContentBlock{
			Type:      llm.BlockTypeToolResult,
			ToolUseID: use.ID,
			Content:   budgetExhaustedNote,
		}
	}
	messages = append(messages, llm.ChatMessage{Role: "user", Content: blocks})

	resp, err := e.model.Messages(ctx, llm.MessagesRequest{
		System:   system,
		Messages: messages,
	})
	if err != nil {
		slog.Error("Forced summary call failed", "error", err)
		return "", false
	}
	result.Iterations++
	e.recordUsage(result, resp.Usage)
	return finalText(resp), true
}

func (e *Engine) recordUsage(result *RunResult, usage llm.Usage) {
	result.Usage.InputTokens += usage.InputTokens
	result.Usage.OutputTokens += usage.OutputTokens
	if e.metrics != nil {
		e.metrics.ObserveTokens(usage.InputTokens, usage.OutputTokens)
	}
}

func finalText(resp *llm.MessagesResponse) string {
	if text := resp.JoinText(); text != "" {
		return text
	}
	return emptyReply
}

func decodeInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{}
	}
	return args
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
