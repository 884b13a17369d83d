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

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// EnsureSchema creates the PolicyClause class if it does not exist.
// Vectors are supplied by the embedding service, so the class uses no
// Weaviate-side vectorizer.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	exists, err := client.Schema().ClassExistenceChecker().
		WithClassName(ClauseClassName).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for the %s class: %w", ClauseClassName, err)
	}
	if exists {
		slog.Debug("Weaviate class already exists", "class", ClauseClassName)
		return nil
	}

	class := &models.Class{
		Class:       ClauseClassName,
		Description: "A policy clause excerpt used as grounding for claim decisions",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "clause_id", DataType: []string{"text"}, Description: "Unique clause identifier"},
			{Name: "coverage_type", DataType: []string{"text"}, Description: "What the clause covers"},
			{Name: "content", DataType: []string{"text"}, Description: "Clause body text"},
			{Name: "policy_type", DataType: []string{"text"}, Description: "Line of business (Motor/Home/Health/Life)"},
			{Name: "parent_source", DataType: []string{"text"}, Description: "Source policy document"},
			{Name: "ingested_at", DataType: []string{"int"}, Description: "Ingestion timestamp (unix ms)"},
		},
	}
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create the %s class: %w", ClauseClassName, err)
	}
	slog.Info("Created Weaviate class", "class", ClauseClassName)
	return nil
}
