// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/harborline/claimguard/services/decision"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

var (
	clauseChunkSize    = 800
	clauseChunkOverlap = int(float64(clauseChunkSize) * 0.10) // overlap is 10% of the chunk size

	// policySeparators split on the section structure policy documents
	// actually use before falling back to paragraphs.
	policySeparators = []string{
		"\nSection ", "\nSECTION ", "\nClause ", "\nArticle ",
		"\n\n", "\n", " ", "",
	}
)

// IngestPolicyRequest describes one policy document to split, embed, and
// index as PolicyClause objects.
type IngestPolicyRequest struct {
	Content    string              `json:"content"`
	Source     string              `json:"source"`
	PolicyType decision.PolicyType `json:"policy_type"`
}

// PolicyIngestor splits policy documents into clauses and indexes them in
// Weaviate with externally computed embeddings.
type PolicyIngestor struct {
	client   *weaviate.Client
	embedder *HTTPEmbedder
}

// NewPolicyIngestor creates an ingestor using the given Weaviate client
// and embedder.
func NewPolicyIngestor(client *weaviate.Client, embedder *HTTPEmbedder) *PolicyIngestor {
	return &PolicyIngestor{client: client, embedder: embedder}
}

// Ingest splits the document, batch-embeds the chunks, and batch-imports
// them as PolicyClause objects. Clause IDs are derived from the source
// name and chunk position; object UUIDs are content-addressed so
// re-ingesting the same document is idempotent.
//
// Returns the number of clauses successfully written.
func (p *PolicyIngestor) Ingest(ctx context.Context, req IngestPolicyRequest) (int, error) {
	ctx, span := tracer.Start(ctx, "PolicyIngestor.Ingest")
	defer span.End()

	if !req.PolicyType.Valid() {
		return 0, fmt.Errorf("invalid policy type %q", req.PolicyType)
	}
	slog.Info("Ingestion request received", "source", req.Source, "policy_type", req.PolicyType)

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(clauseChunkSize),
		textsplitter.WithChunkOverlap(clauseChunkOverlap),
		textsplitter.WithSeparators(policySeparators),
	)
	chunks, err := splitter.SplitText(req.Content)
	if err != nil {
		slog.Error("Failed to split the policy document", "source", req.Source, "error", err)
		return 0, fmt.Errorf("failed to split the policy document: %w", err)
	}
	if len(chunks) == 0 {
		slog.Warn("No chunks produced after splitting", "source", req.Source)
		return 0, nil
	}
	slog.Info("Split policy document into clauses", "source", req.Source, "chunk_count", len(chunks))

	vectors, err := p.embedder.BatchEmbed(ctx, chunks)
	if err != nil {
		slog.Error("Failed to get batch embeddings", "source", req.Source, "error", err)
		return 0, err
	}

	sourceCode := clauseSourceCode(req.Source)
	objects := make([]*models.Object, len(chunks))
	for i, chunk := range chunks {
		clauseID := fmt.Sprintf("%s-%03d", sourceCode, i+1)
		hash := sha256.Sum256([]byte(chunk))
		objUUID, _ := uuid.FromBytes(hash[:16])

		objects[i] = &models.Object{
			Class:  ClauseClassName,
			ID:     strfmt.UUID(objUUID.String()),
			Vector: vectors[i],
			Properties: map[string]interface{}{
				"clause_id":     clauseID,
				"coverage_type": "general",
				"content":       chunk,
				"policy_type":   string(req.PolicyType),
				"parent_source": req.Source,
				"ingested_at":   time.Now().UnixMilli(),
			},
		}
	}

	resp, err := p.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		slog.Error("Failed to perform batch import to Weaviate", "error", err)
		return 0, fmt.Errorf("failed to save clauses to Weaviate: %w", err)
	}

	created := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			created++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Error in Weaviate batch item", "source", req.Source, "error", errItem.Message)
			}
		}
	}
	if created < len(chunks) {
		slog.Warn("Errors encountered during Weaviate batch import",
			"source", req.Source, "successful_clauses", created, "total", len(chunks))
	}

	slog.Info("Successfully ingested policy document", "source", req.Source, "clauses_created", created)
	return created, nil
}

// clauseSourceCode derives a short uppercase code for clause IDs from a
// source name, e.g. "home_policy_2024.txt" -> "HOME-POLICY-2024".
func clauseSourceCode(source string) string {
	name := source
	if idx := strings.LastIndexByte(name, '.'); idx > 0 {
		name = name[:idx]
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, name)
	name = strings.Trim(name, "-")
	if name == "" {
		name = "POLICY"
	}
	return strings.ToUpper(name)
}
