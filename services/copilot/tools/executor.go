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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aas-portal/copilot/services/copilot/clients"
	"github.com/aas-portal/copilot/services/copilot/datatypes"
	"github.com/aas-portal/copilot/services/copilot/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var execTracer = otel.Tracer("copilot.tools")

// Result-size and text-truncation bounds. Large upstream responses are
// clipped before they enter the conversation so context cost stays
// predictable.
const (
	defaultResultLimit = 5
	maxResultLimit     = 10
	defaultHistoryDays = 365
	maxHistoryDays     = 3650
	maxNotesLen        = 500
	maxExcerptLen      = 600
)

// Options adjusts execution per caller profile.
type Options struct {
	// Redacted strips internal service notes from knowledge-search
	// results. Set for customer-portal callers.
	Redacted bool
}

// Executor dispatches one validated tool invocation to one upstream
// integration and shapes the reply into the tool's stable output schema.
//
// Execute never returns an error: every failure mode — unknown tool,
// contract violation, upstream non-2xx, timeout, malformed upstream body —
// becomes a structured {"error": ...} payload so the conversation loop can
// hand it back to the model and keep going.
type Executor struct {
	catalog *Catalog
	cmms    *clients.CMMSClient
	gateway *clients.GatewayClient
	embed   *clients.EmbeddingClient
	vectors *clients.VectorStore
	metrics *observability.Metrics
	tenants TenantAuthorizer
}

// TenantAuthorizer reports whether a caller tenant may read data filed
// under a given CMMS account name. The tenancy guard implements it.
type TenantAuthorizer interface {
	Allowed(callerTenant, account string) bool
}

// NewExecutor wires the executor. Any client may be nil when that upstream
// is not configured; the affected tools then report themselves
// unavailable through the normal error payload.
func NewExecutor(catalog *Catalog, cmms *clients.CMMSClient, gateway *clients.GatewayClient,
	embed *clients.EmbeddingClient, vectors *clients.VectorStore,
	metrics *observability.Metrics) *Executor {
	return &Executor{
		catalog: catalog,
		cmms:    cmms,
		gateway: gateway,
		embed:   embed,
		vectors: vectors,
		metrics: metrics,
	}
}

// SetTenantAuthorizer installs alias-aware customer matching for the
// door-history ownership check. Without one, the CMMS account name must
// match the caller's tenant exactly.
func (e *Executor) SetTenantAuthorizer(a TenantAuthorizer) {
	e.tenants = a
}

// Execute runs one tool invocation and returns its JSON payload.
func (e *Executor) Execute(ctx context.Context, inv datatypes.ToolInvocation, opts Options) string {
	ctx, span := execTracer.Start(ctx, "Executor.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", inv.Name))

	start := time.Now()
	payload := e.dispatch(ctx, inv, opts)
	elapsed := time.Since(start)

	outcome := "ok"
	if strings.HasPrefix(payload, `{"error"`) {
		outcome = "error"
	}
	if e.metrics != nil {
		e.metrics.ObserveTool(inv.Name, outcome, elapsed)
	}

	slog.Debug("Tool executed",
		"tool", inv.Name,
		"outcome", outcome,
		"duration_ms", elapsed.Milliseconds())
	return payload
}

func (e *Executor) dispatch(ctx context.Context, inv datatypes.ToolInvocation, opts Options) string {
	if _, ok := e.catalog.Spec(inv.Name); !ok {
		return errorPayload("Unknown tool: "+inv.Name, nil)
	}

	if err := e.catalog.ValidateInput(inv.Name, inv.Input); err != nil {
		return errorPayload("Invalid input for "+inv.Name, map[string]any{
			"detail": err.Error(),
		})
	}

	switch inv.Name {
	case ToolSearchManuals:
		return e.executeManualSearch(ctx, inv.Input, opts.Redacted)
	case ToolSearchParts:
		return e.executePartSearch(ctx, inv.Input)
	case ToolGetWorkOrders:
		return e.executeWorkOrders(ctx, inv.Input)
	case ToolSearchDoors:
		return e.executeDoorSearch(ctx, inv.Input)
	case ToolGetDoorHistory:
		return e.executeDoorHistory(ctx, inv.Input)
	case ToolListTechnicians:
		return e.executeListTechnicians(ctx)
	}

	if meta, ok := standardsTools[inv.Name]; ok {
		return e.executeStandards(ctx, meta, inv.Input)
	}

	// Catalog and dispatch drifted apart; surface it like any other
	// tool failure rather than crashing the loop.
	return errorPayload("Unknown tool: "+inv.Name, nil)
}

// =============================================================================
// Payload helpers
// =============================================================================

func marshalPayload(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return errorPayload("failed to encode tool result", nil)
	}
	return string(raw)
}

// errorPayload builds the error-shaped payload. The "error" key is always
// first so outcome sniffing in Execute stays cheap.
func errorPayload(msg string, extra map[string]any) string {
	if len(extra) == 0 {
		return fmt.Sprintf(`{"error":%q}`, msg)
	}
	restRaw, err := json.Marshal(extra)
	if err != nil || len(restRaw) <= 2 {
		return fmt.Sprintf(`{"error":%q}`, msg)
	}
	return fmt.Sprintf(`{"error":%q,%s`, msg, restRaw[1:])
}

// upstreamErrorPayload maps an upstream failure to the stable
// {"error": "<service> unavailable", "status": n} contract. Timeouts and
// transport failures carry no status.
func upstreamErrorPayload(service string, err error) string {
	var ue *clients.UpstreamError
	if errors.As(err, &ue) {
		return errorPayload(service+" unavailable", map[string]any{"status": ue.Status})
	}
	return errorPayload(service+" unavailable", nil)
}

// =============================================================================
// Input coercion
// =============================================================================

// Schema validation has already run; these helpers only coerce the
// JSON-decoded float64/string values and apply defaults and caps.

func intArg(input map[string]any, key string, fallback int) int {
	v, ok := input[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return fallback
}

func strArg(input map[string]any, key string) string {
	if v, ok := input[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func limitArg(input map[string]any) int {
	limit := intArg(input, "limit", defaultResultLimit)
	if limit < 1 {
		limit = defaultResultLimit
	}
	if limit > maxResultLimit {
		limit = maxResultLimit
	}
	return limit
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
