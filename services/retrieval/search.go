// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harborline/claimguard/services/decision"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("claimguard.retrieval")

// ClauseClassName is the Weaviate class holding ingested policy clauses.
const ClauseClassName = "PolicyClause"

// SearchConfig tunes clause retrieval.
type SearchConfig struct {
	// TopK is the maximum number of clauses to retrieve.
	TopK int

	// MinCertainty drops clauses below this retrieval certainty. Zero
	// disables the cutoff.
	MinCertainty float64
}

// DefaultSearchConfig returns production defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		TopK:         8,
		MinCertainty: 0.6,
	}
}

// validateSearchConfig validates and corrects search configuration values.
// Logs warnings for invalid values and applies sensible defaults.
func validateSearchConfig(config SearchConfig) SearchConfig {
	defaults := DefaultSearchConfig()
	if config.TopK < 1 {
		slog.Warn("Invalid TopK config, using default",
			"provided", config.TopK, "default", defaults.TopK)
		config.TopK = defaults.TopK
	}
	if config.MinCertainty < 0 || config.MinCertainty >= 1 {
		slog.Warn("Invalid MinCertainty config, using default",
			"provided", config.MinCertainty, "default", defaults.MinCertainty)
		config.MinCertainty = defaults.MinCertainty
	}
	return config
}

// WeaviateClauseRetriever retrieves policy clauses by nearVector search
// over the PolicyClause class, scoped to a policy type. It implements
// decision.ClauseRetriever.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying Weaviate client handles
// connection pooling.
type WeaviateClauseRetriever struct {
	client *weaviate.Client
	config SearchConfig
}

// NewWeaviateClauseRetriever creates a clause retriever.
func NewWeaviateClauseRetriever(client *weaviate.Client, config SearchConfig) *WeaviateClauseRetriever {
	return &WeaviateClauseRetriever{
		client: client,
		config: validateSearchConfig(config),
	}
}

// Retrieve returns the clauses most relevant to the embedded claim
// description, restricted to the claim's policy type and ordered by
// descending certainty. An empty result is valid: it means the index holds
// nothing usable for this claim type, and the caller's guardrail handles it.
func (r *WeaviateClauseRetriever) Retrieve(ctx context.Context, vector []float32,
	policyType decision.PolicyType) ([]decision.PolicyClause, error) {

	ctx, span := tracer.Start(ctx, "WeaviateClauseRetriever.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("policy_type", string(policyType)))

	policyTypeFilter := filters.Where().
		WithPath([]string{"policy_type"}).
		WithOperator(filters.Equal).
		WithValueString(string(policyType))

	nearVector := r.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)
	if r.config.MinCertainty > 0 {
		nearVector = nearVector.WithCertainty(float32(r.config.MinCertainty))
	}

	// Note: we request certainty (always [0,1]) instead of distance which
	// varies by metric.
	fields := []graphql.Field{
		{Name: "clause_id"},
		{Name: "coverage_type"},
		{Name: "content"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(ClauseClassName).
		WithFields(fields...).
		WithWhere(policyTypeFilter).
		WithNearVector(nearVector).
		WithLimit(r.config.TopK).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to search the PolicyClause class", "error", err)
		span.RecordError(err)
		return nil, fmt.Errorf("weaviate clause search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		err := fmt.Errorf("weaviate clause search returned errors: %s", result.Errors[0].Message)
		span.RecordError(err)
		return nil, err
	}

	clauses := parseClauseResults(result.Data)
	span.SetAttributes(attribute.Int("clauses.count", len(clauses)))
	slog.Debug("Retrieved policy clauses", "policy_type", policyType, "count", len(clauses))
	return clauses, nil
}

// parseClauseResults walks the GraphQL response shape
// Data["Get"][ClauseClassName] into typed clauses. Entries with missing or
// mistyped fields are skipped, not fatal.
func parseClauseResults(data map[string]models.JSONObject) []decision.PolicyClause {
	clauses := []decision.PolicyClause{}

	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return clauses
	}
	items, ok := get[ClauseClassName].([]interface{})
	if !ok {
		return clauses
	}

	for _, item := range items {
		props, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		clause := decision.PolicyClause{}
		if v, ok := props["clause_id"].(string); ok {
			clause.ClauseID = v
		}
		if v, ok := props["coverage_type"].(string); ok {
			clause.CoverageType = v
		}
		if v, ok := props["content"].(string); ok {
			clause.Text = v
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if v, ok := additional["certainty"].(float64); ok {
				clause.RelevanceScore = v
			}
		}
		if clause.ClauseID == "" || clause.Text == "" {
			slog.Warn("Skipping a malformed clause result", "clause_id", clause.ClauseID)
			continue
		}
		clauses = append(clauses, clause)
	}
	return clauses
}
