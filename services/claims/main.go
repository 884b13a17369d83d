// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
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
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harborline/claimguard/services/audit"
	"github.com/harborline/claimguard/services/claims/observability"
	"github.com/harborline/claimguard/services/claims/routes"
	"github.com/harborline/claimguard/services/decision"
	"github.com/harborline/claimguard/services/decision/ruleset"
	"github.com/harborline/claimguard/services/evidence"
	"github.com/harborline/claimguard/services/llm"
	"github.com/harborline/claimguard/services/retrieval"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "claimguard-otel-collector:4317"
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
		resource.WithAttributes(semconv.ServiceNameKey.String("claims-service")))
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

func newWeaviateClient() *weaviate.Client {
	weaviateURL := os.Getenv("WEAVIATE_SERVICE_URL")
	// Trim quotes and whitespace in case the container runtime passes them literally
	weaviateURL = strings.Trim(weaviateURL, "\"' ")
	if weaviateURL == "" {
		log.Fatal("WEAVIATE_SERVICE_URL must be set: the clause index and audit log live in Weaviate")
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		log.Fatalf("WEAVIATE_SERVICE_URL is invalid: %q", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		log.Fatalf("Failed to create Weaviate client: %v", err)
	}
	return client
}

func newLLMClient() llm.LLMClient {
	var client llm.LLMClient
	var err error

	switch backend := os.Getenv("LLM_BACKEND_TYPE"); backend {
	case "openai":
		client, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		client, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to ollama", "value", backend)
		client, err = llm.NewOllamaClient()
	}
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	qps, _ := strconv.ParseFloat(os.Getenv("LLM_RATE_LIMIT_QPS"), 64)
	burst, _ := strconv.Atoi(os.Getenv("LLM_RATE_LIMIT_BURST"))
	if burst <= 0 {
		burst = 1
	}
	return llm.NewRateLimitedClient(client, qps, burst)
}

func main() {
	port := os.Getenv("CLAIMS_PORT")
	if port == "" {
		port = "12310"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	weaviateClient := newWeaviateClient()

	ctx := context.Background()
	if err := retrieval.EnsureSchema(ctx, weaviateClient); err != nil {
		log.Fatalf("Failed to ensure the clause schema: %v", err)
	}
	auditSink := audit.NewWeaviateAuditSink(weaviateClient)
	if err := auditSink.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure the audit schema: %v", err)
	}

	embeddingURL := os.Getenv("EMBEDDING_SERVICE_URL")
	embedder, err := retrieval.NewHTTPEmbedder(embeddingURL)
	if err != nil {
		log.Fatalf("Failed to create the embedding client: %v", err)
	}
	retriever := retrieval.NewWeaviateClauseRetriever(weaviateClient, retrieval.DefaultSearchConfig())
	ingestor := retrieval.NewPolicyIngestor(weaviateClient, embedder)

	llmClient := newLLMClient()

	rules, err := ruleset.Default()
	if err != nil {
		log.Fatalf("Failed to load the built-in claim rules: %v", err)
	}
	generator, err := decision.NewDecisionGenerator(llmClient, rules)
	if err != nil {
		log.Fatalf("Failed to create the decision generator: %v", err)
	}
	engine, err := decision.NewBusinessRuleEngine(rules)
	if err != nil {
		log.Fatalf("Failed to build the business rule engine: %v", err)
	}

	var extractor decision.EvidenceExtractor
	if extractionURL := os.Getenv("EXTRACTION_SERVICE_URL"); extractionURL != "" {
		extractor = evidence.NewHTTPExtractor(extractionURL)
		slog.Info("Evidence extraction enabled", "url", extractionURL)
	} else {
		slog.Info("EXTRACTION_SERVICE_URL not set, evidence extraction disabled")
	}

	orch, err := decision.NewValidationOrchestrator(embedder, retriever, generator,
		engine, auditSink, extractor, decision.DefaultOrchestratorConfig())
	if err != nil {
		log.Fatalf("Failed to wire the validation orchestrator: %v", err)
	}

	// Optional on-disk rule override with hot reload. The built-in rules
	// stay active when the file is absent.
	if rulesPath := os.Getenv("CLAIM_RULES_PATH"); rulesPath != "" {
		_, err := ruleset.Watch(ctx, rulesPath, func(cfg *ruleset.Config) {
			newEngine, err := decision.NewBusinessRuleEngine(cfg)
			if err != nil {
				slog.Error("Rejected reloaded rule config", "error", err)
				return
			}
			orch.SetRuleEngine(newEngine)
			generator.SetRules(cfg)
		})
		if err != nil {
			log.Fatalf("Failed to watch the rule override file: %v", err)
		}
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("claims-service"))

	routes.SetupRoutes(router, orch, ingestor)

	log.Println("Starting the claims server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
