// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit persists finished validations as ClaimAudit records in
// Weaviate. Writes are best effort: the decision pipeline logs and
// swallows failures here, it never fails a validation over them.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harborline/claimguard/services/decision"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("claimguard.audit")

// AuditClassName is the Weaviate class holding claim audit records.
const AuditClassName = "ClaimAudit"

// WeaviateAuditSink implements decision.AuditSink on Weaviate.
//
// Thread Safety: safe for concurrent use.
type WeaviateAuditSink struct {
	client *weaviate.Client
}

// NewWeaviateAuditSink creates an audit sink.
func NewWeaviateAuditSink(client *weaviate.Client) *WeaviateAuditSink {
	return &WeaviateAuditSink{client: client}
}

// EnsureSchema creates the ClaimAudit class if it does not exist.
func (s *WeaviateAuditSink) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().
		WithClassName(AuditClassName).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for the %s class: %w", AuditClassName, err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:       AuditClassName,
		Description: "An audit record of one claim validation and its final decision",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "audit_id", DataType: []string{"text"}},
			{Name: "policy_number", DataType: []string{"text"}},
			{Name: "policy_type", DataType: []string{"text"}},
			{Name: "claim_amount", DataType: []string{"number"}},
			{Name: "claim_description", DataType: []string{"text"}},
			{Name: "status", DataType: []string{"text"}},
			{Name: "explanation", DataType: []string{"text"}},
			{Name: "clause_references", DataType: []string{"text"}},
			{Name: "required_documents", DataType: []string{"text"}},
			{Name: "confidence_score", DataType: []string{"number"}},
			{Name: "retrieved_clause_ids", DataType: []string{"text"}},
			{Name: "decided_at", DataType: []string{"int"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create the %s class: %w", AuditClassName, err)
	}
	slog.Info("Created Weaviate class", "class", AuditClassName)
	return nil
}

// Record writes one audit record. The caller treats failures as
// non-fatal; this method just reports them.
func (s *WeaviateAuditSink) Record(ctx context.Context, req decision.ClaimRequest,
	dec decision.ClaimDecision, clauses []decision.PolicyClause) error {

	ctx, span := tracer.Start(ctx, "WeaviateAuditSink.Record")
	defer span.End()

	retrievedIDs := make([]string, 0, len(clauses))
	for _, c := range clauses {
		retrievedIDs = append(retrievedIDs, c.ClauseID)
	}

	auditID := uuid.New().String()
	_, err := s.client.Data().Creator().
		WithClassName(AuditClassName).
		WithProperties(map[string]interface{}{
			"audit_id":             auditID,
			"policy_number":        req.PolicyNumber,
			"policy_type":          string(req.PolicyType),
			"claim_amount":         req.ClaimAmount,
			"claim_description":    req.ClaimDescription,
			"status":               string(dec.Status),
			"explanation":          dec.Explanation,
			"clause_references":    strings.Join(dec.ClauseReferences, ","),
			"required_documents":   strings.Join(dec.RequiredDocuments, ","),
			"confidence_score":     dec.ConfidenceScore,
			"retrieved_clause_ids": strings.Join(retrievedIDs, ","),
			"decided_at":           time.Now().UnixMilli(),
		}).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to write the audit record: %w", err)
	}

	slog.Debug("Wrote a claim audit record",
		"audit_id", auditID, "policy_number", req.PolicyNumber, "status", dec.Status)
	return nil
}
