// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file defines the collaborator contracts the decision engine consumes.
// Concrete implementations live in services/retrieval, services/evidence,
// and services/audit; the engine itself stays transport-agnostic.

package decision

import "context"

// EmbeddingProvider computes a fixed-dimension vector for a piece of text.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type EmbeddingProvider interface {
	// Embed converts text to an embedding vector.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation and timeouts. The call is a blocking
	//     remote operation and must be bounded by a deadline.
	//   - text: The text to embed. Must be non-empty.
	//
	// # Outputs
	//
	//   - []float32: The embedding vector.
	//   - error: Non-nil on transport or service failure. Treated as fatal
	//     by the orchestrator.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ClauseRetriever returns policy clauses relevant to an embedded claim
// description, scoped by policy type.
//
// An empty result is valid and triggers the orchestrator's no-evidence
// guardrail; it must not be reported as an error.
type ClauseRetriever interface {
	Retrieve(ctx context.Context, vector []float32, policyType PolicyType) ([]PolicyClause, error)
}

// EvidenceExtractor resolves an evidence document ID to its extracted text.
//
// Extraction may fail per document; the orchestrator degrades a failed
// document to a placeholder rather than aborting the validation.
type EvidenceExtractor interface {
	Extract(ctx context.Context, documentID string) (string, error)
}

// AuditSink durably records a finished validation, best effort.
//
// Record failures are logged and swallowed by the caller: a decision must
// always be returned once generated.
type AuditSink interface {
	Record(ctx context.Context, req ClaimRequest, dec ClaimDecision, clauses []PolicyClause) error
}
