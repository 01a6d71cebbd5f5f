// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/aas-portal/copilot/services/copilot/agent"
	"github.com/aas-portal/copilot/services/copilot/clients"
	"github.com/aas-portal/copilot/services/copilot/config"
	"github.com/aas-portal/copilot/services/copilot/middleware"
	"github.com/aas-portal/copilot/services/copilot/observability"
	"github.com/aas-portal/copilot/services/copilot/routes"
	"github.com/aas-portal/copilot/services/copilot/tenancy"
	"github.com/aas-portal/copilot/services/copilot/tools"
	"github.com/aas-portal/copilot/services/llm"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aas-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("copilot-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	// Local development convenience; containers set real env vars.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: could not load configuration: %v", err)
	}

	metrics := observability.InitMetrics()

	catalog, err := tools.NewCatalog()
	if err != nil {
		log.Fatalf("FATAL: could not build tool catalog: %v", err)
	}

	model, err := llm.NewAnthropicClient()
	if err != nil {
		log.Fatalf("FATAL: could not configure model client: %v", err)
	}

	var cmms *clients.CMMSClient
	if cfg.CMMSBaseURL != "" {
		cmms = clients.NewCMMSClient(cfg.CMMSBaseURL, cfg.CMMSClientID, cfg.CMMSClientSecret)
	} else {
		slog.Warn("CMMS_BASE_URL not set. Work-order tools will report unavailable.")
	}

	var gateway *clients.GatewayClient
	if cfg.GatewayBaseURL != "" {
		gateway = clients.NewGatewayClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey)
	} else {
		slog.Warn("RETRIEVAL_GATEWAY_URL not set. Standards tools will report unavailable.")
	}

	// Similarity tools need both the vector store and an embedder;
	// either one missing puts them in lightweight mode.
	var vectors *clients.VectorStore
	var embed *clients.EmbeddingClient
	if cfg.WeaviateURL != "" && strings.Contains(cfg.WeaviateURL, "http") {
		vectors, err = clients.NewVectorStore(cfg.WeaviateURL)
		if err != nil {
			slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running similarity tools in lightweight mode.",
				"url", cfg.WeaviateURL, "error", err)
			vectors = nil
		}
	} else {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running similarity tools in lightweight mode.")
	}
	if vectors != nil {
		embed, err = clients.NewEmbeddingClient(cfg.OpenAIAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel)
		if err != nil {
			slog.Warn("Embedding client unavailable. Running similarity tools in lightweight mode.", "error", err)
			vectors, embed = nil, nil
		}
	}

	executor := tools.NewExecutor(catalog, cmms, gateway, embed, vectors, metrics)
	guard := tenancy.NewGuard(cfg.Tables.TenantAliases)
	executor.SetTenantAuthorizer(guard)
	resolver := middleware.NewResolver(nil, cfg.Tables.Technicians)
	engine := agent.NewEngine(model, executor, guard, metrics)

	// Turn-completed events feed the debug log only; the loop drops
	// them when nothing is draining.
	turnEvents := make(chan agent.TurnEvent, 64)
	engine.SetNotifier(turnEvents)
	go func() {
		for ev := range turnEvents {
			slog.Debug("Conversation turn completed",
				"profile", ev.Profile,
				"iterations", ev.Iterations,
				"tool_calls", ev.ToolCalls,
				"degraded", ev.Degraded)
		}
	}()

	router := gin.Default()
	router.Use(otelgin.Middleware("copilot-service"))

	routes.SetupRoutes(router, engine, catalog, resolver, guard, metrics, cfg.PortalOrigin)

	log.Println("Starting the copilot server on port ", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
