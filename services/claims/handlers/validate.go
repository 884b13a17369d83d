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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harborline/claimguard/services/claims/observability"
	"github.com/harborline/claimguard/services/decision"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var claimsTracer = otel.Tracer("claimguard.claims.handlers")

// ValidateRequest is the body of POST /v1/claims/validate.
type ValidateRequest struct {
	PolicyNumber        string   `json:"policy_number"`
	PolicyType          string   `json:"policy_type"`
	ClaimAmount         float64  `json:"claim_amount"`
	ClaimDescription    string   `json:"claim_description"`
	EvidenceDocumentIDs []string `json:"evidence_document_ids,omitempty"`
}

func (r ValidateRequest) toClaim() decision.ClaimRequest {
	return decision.ClaimRequest{
		PolicyNumber:     r.PolicyNumber,
		PolicyType:       decision.PolicyType(r.PolicyType),
		ClaimAmount:      r.ClaimAmount,
		ClaimDescription: r.ClaimDescription,
	}
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ValidateClaim runs the full grounded validation pipeline for one claim.
// Evidence document IDs, when present, are extracted and cross-checked
// before the decision is generated.
func ValidateClaim(orch *decision.ValidationOrchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := claimsTracer.Start(c.Request.Context(), "ValidateClaim")
		defer span.End()
		start := time.Now()

		endpoint := observability.EndpointValidate

		var request ValidateRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind claim validation JSON", "error", err)
			observability.DefaultMetrics.RecordError(endpoint, observability.ErrorCodeValidation)
			observability.DefaultMetrics.RecordRequest(endpoint, false)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if len(request.EvidenceDocumentIDs) > 0 {
			endpoint = observability.EndpointValidateEvidence
		}
		span.SetAttributes(
			attribute.String("claim.policy_type", request.PolicyType),
			attribute.Float64("claim.amount", request.ClaimAmount),
			attribute.Int("claim.evidence_documents", len(request.EvidenceDocumentIDs)),
		)

		slog.Info("Received claim validation request",
			"policy_number", request.PolicyNumber,
			"policy_type", request.PolicyType,
			"claim_amount", request.ClaimAmount,
			"evidence_documents", len(request.EvidenceDocumentIDs))

		outcome, err := orch.ValidateWithEvidence(ctx, request.toClaim(), request.EvidenceDocumentIDs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			observability.DefaultMetrics.RecordRequest(endpoint, false)
			switch {
			case decision.IsTransport(err):
				slog.Error("Claim validation failed on an upstream dependency", "error", err)
				observability.DefaultMetrics.RecordError(endpoint, observability.ErrorCodeTransport)
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			case decision.IsInvalidRequest(err):
				slog.Warn("Rejected an invalid claim", "error", err)
				observability.DefaultMetrics.RecordError(endpoint, observability.ErrorCodeValidation)
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				slog.Error("Claim validation failed", "error", err)
				observability.DefaultMetrics.RecordError(endpoint, observability.ErrorCodeInternal)
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		observability.DefaultMetrics.RecordRequest(endpoint, true)
		observability.DefaultMetrics.RecordDecision(string(outcome.Decision.Status))
		observability.DefaultMetrics.RecordDuration(endpoint, time.Since(start).Seconds())
		for _, contradiction := range outcome.Contradictions {
			observability.DefaultMetrics.RecordContradiction(string(contradiction.Severity))
		}
		span.SetAttributes(attribute.String("decision.status", string(outcome.Decision.Status)))

		c.JSON(http.StatusOK, outcome)
	}
}
