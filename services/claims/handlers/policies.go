// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/harborline/claimguard/services/claims/observability"
	"github.com/harborline/claimguard/services/retrieval"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// IngestPolicyDocument chunks a policy document into clauses, embeds
// them, and stores them in the clause index.
func IngestPolicyDocument(ingestor *retrieval.PolicyIngestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := claimsTracer.Start(c.Request.Context(), "IngestPolicyDocument")
		defer span.End()

		var request retrieval.IngestPolicyRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind policy ingestion JSON", "error", err)
			observability.DefaultMetrics.RecordError(observability.EndpointIngest, observability.ErrorCodeValidation)
			observability.DefaultMetrics.RecordRequest(observability.EndpointIngest, false)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		span.SetAttributes(
			attribute.String("policy.source", request.Source),
			attribute.String("policy.type", string(request.PolicyType)),
		)

		slog.Info("Received policy ingestion request",
			"source", request.Source, "policy_type", request.PolicyType,
			"content_bytes", len(request.Content))

		stored, err := ingestor.Ingest(ctx, request)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Policy ingestion failed", "source", request.Source, "error", err)
			observability.DefaultMetrics.RecordError(observability.EndpointIngest, observability.ErrorCodeInternal)
			observability.DefaultMetrics.RecordRequest(observability.EndpointIngest, false)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		observability.DefaultMetrics.RecordRequest(observability.EndpointIngest, true)
		c.JSON(http.StatusOK, gin.H{
			"status":         "SUCCESS",
			"source":         request.Source,
			"clauses_stored": stored,
		})
	}
}
