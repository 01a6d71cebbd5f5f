// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the copilot HTTP endpoints.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aas-portal/copilot/services/copilot/agent"
	"github.com/aas-portal/copilot/services/copilot/datatypes"
	"github.com/aas-portal/copilot/services/copilot/middleware"
	"github.com/aas-portal/copilot/services/copilot/observability"
	"github.com/aas-portal/copilot/services/copilot/tenancy"
	"github.com/aas-portal/copilot/services/copilot/tools"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var handlerTracer = otel.Tracer("copilot.handlers")

// HandleCopilot answers POST /api/copilot.
//
// Technician-mode requests degrade gracefully on bad tokens: the caller
// just gets the restricted catalog. Customer-portal requests are strict:
// an expired token is a 401 and a cross-tenant customer request is a 403
// before any model call happens.
func HandleCopilot(engine *agent.Engine, catalog *tools.Catalog, resolver *middleware.Resolver,
	guard *tenancy.Guard, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleCopilot")
		defer span.End()

		requestID := uuid.NewString()
		c.Header("X-Request-ID", requestID)
		span.SetAttributes(attribute.String("request.id", requestID))

		var req datatypes.CopilotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		mode := req.Mode
		if mode == "" {
			mode = datatypes.ModeTechnician
		}

		identity := middleware.GetIdentity(c)
		if mode == datatypes.ModeCustomerPortal {
			strict, err := resolver.ResolveStrict(middleware.GetToken(c))
			if errors.Is(err, middleware.ErrTokenExpired) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
				return
			}
			identity = strict

			// Portal access is tenant-scoped; a request whose token is
			// missing, undecodable, or carries no customer claim has no
			// tenant to scope to. Staff roles have their own posture.
			if identity.TenantID == "" && !identity.HasRole(datatypes.RoleAdmin) &&
				!identity.HasRole(datatypes.RoleTech) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
				return
			}

			// Cross-tenant requests are rejected up front; Admin may
			// read any account.
			if req.Customer != "" && !identity.HasRole(datatypes.RoleAdmin) &&
				!guard.Allowed(identity.TenantID, req.Customer) {
				slog.Warn("Cross-tenant request rejected",
					"tenant", identity.TenantID, "requested", req.Customer)
				c.JSON(http.StatusForbidden, gin.H{"error": "Access to the requested customer is not permitted"})
				return
			}
		}

		profile := agent.ProfileFor(catalog, identity, mode, &req)

		if metrics != nil {
			metrics.ActiveRequests.Inc()
			defer metrics.ActiveRequests.Dec()
		}

		run, err := engine.Run(ctx, agent.RunInput{
			Profile:  profile,
			Identity: identity,
			Messages: req.Messages,
		})
		if err != nil {
			slog.Error("Copilot conversation failed",
				"request_id", requestID, "profile", profile.Name, "error", err)
			if metrics != nil {
				metrics.ObserveRequest(profile.Name, "error", 0)
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "Model backend unavailable"})
			return
		}

		status := "ok"
		resp := agent.BuildResponse(&req, run)
		if run.Degraded {
			status = "degraded"
			resp.Error = "incomplete"
		}
		if metrics != nil {
			metrics.ObserveRequest(profile.Name, status, run.Iterations)
		}

		slog.Info("Copilot request served",
			"request_id", requestID,
			"profile", profile.Name,
			"mode", mode,
			"user_sub", identity.Email,
			"has_context", req.DoorContext != nil || req.CustomerContext != nil,
			"iterations", run.Iterations,
			"tool_calls", len(run.ToolCalls),
			"degraded", run.Degraded)
		c.JSON(http.StatusOK, resp)
	}
}
