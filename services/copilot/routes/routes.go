// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"net/http"

	"github.com/aas-portal/copilot/services/copilot/agent"
	"github.com/aas-portal/copilot/services/copilot/handlers"
	"github.com/aas-portal/copilot/services/copilot/middleware"
	"github.com/aas-portal/copilot/services/copilot/observability"
	"github.com/aas-portal/copilot/services/copilot/tenancy"
	"github.com/aas-portal/copilot/services/copilot/tools"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(router *gin.Engine, engine *agent.Engine, catalog *tools.Catalog,
	resolver *middleware.Resolver, guard *tenancy.Guard, metrics *observability.Metrics,
	portalOrigin string) {

	router.HandleMethodNotAllowed = true
	router.Use(middleware.CORSMiddleware(portalOrigin))

	router.GET("/health", handlers.HandleHealth())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(middleware.IdentityMiddleware(resolver))
	{
		api.POST("/copilot", handlers.HandleCopilot(engine, catalog, resolver, guard, metrics))
	}

	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
}
