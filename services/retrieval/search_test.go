// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"testing"

	"github.com/weaviate/weaviate/entities/models"
)

func clauseResult(id, coverage, content string, certainty float64) map[string]interface{} {
	return map[string]interface{}{
		"clause_id":     id,
		"coverage_type": coverage,
		"content":       content,
		"_additional": map[string]interface{}{
			"certainty": certainty,
		},
	}
}

func TestParseClauseResults(t *testing.T) {
	data := map[string]models.JSONObject{
		"Get": map[string]interface{}{
			ClauseClassName: []interface{}{
				clauseResult("HOM-001", "water", "Water damage is covered.", 0.91),
				clauseResult("HOM-002", "general", "Claims must be reported promptly.", 0.78),
			},
		},
	}

	clauses := parseClauseResults(data)

	if len(clauses) != 2 {
		t.Fatalf("got %d clauses, want 2", len(clauses))
	}
	first := clauses[0]
	if first.ClauseID != "HOM-001" || first.CoverageType != "water" ||
		first.Text != "Water damage is covered." || first.RelevanceScore != 0.91 {
		t.Errorf("unexpected first clause: %+v", first)
	}
}

func TestParseClauseResults_SkipsMalformedEntries(t *testing.T) {
	data := map[string]models.JSONObject{
		"Get": map[string]interface{}{
			ClauseClassName: []interface{}{
				// Missing clause_id.
				map[string]interface{}{"content": "orphan text"},
				// Missing content.
				map[string]interface{}{"clause_id": "HOM-003"},
				// Not an object at all.
				"garbage",
				// Mistyped certainty: entry survives with a zero score.
				map[string]interface{}{
					"clause_id": "HOM-004",
					"content":   "valid text",
					"_additional": map[string]interface{}{
						"certainty": "high",
					},
				},
			},
		},
	}

	clauses := parseClauseResults(data)

	if len(clauses) != 1 {
		t.Fatalf("got %d clauses, want 1: %+v", len(clauses), clauses)
	}
	if clauses[0].ClauseID != "HOM-004" || clauses[0].RelevanceScore != 0 {
		t.Errorf("unexpected clause: %+v", clauses[0])
	}
}

func TestParseClauseResults_EmptyShapes(t *testing.T) {
	for name, data := range map[string]map[string]models.JSONObject{
		"nil":         nil,
		"no Get":      {"Explore": map[string]interface{}{}},
		"wrong class": {"Get": map[string]interface{}{"Conversation": []interface{}{}}},
		"not a list":  {"Get": map[string]interface{}{ClauseClassName: "nope"}},
	} {
		t.Run(name, func(t *testing.T) {
			clauses := parseClauseResults(data)
			if clauses == nil {
				t.Error("expected an empty slice, not nil")
			}
			if len(clauses) != 0 {
				t.Errorf("expected no clauses, got %+v", clauses)
			}
		})
	}
}

func TestValidateSearchConfig(t *testing.T) {
	defaults := DefaultSearchConfig()

	got := validateSearchConfig(SearchConfig{})
	if got.TopK != defaults.TopK {
		t.Errorf("zero TopK = %d, want default %d", got.TopK, defaults.TopK)
	}
	if got.MinCertainty != 0 {
		t.Errorf("a zero MinCertainty disables the cutoff and must be kept, got %v", got.MinCertainty)
	}

	got = validateSearchConfig(SearchConfig{TopK: -1, MinCertainty: 1.5})
	if got.TopK != defaults.TopK || got.MinCertainty != defaults.MinCertainty {
		t.Errorf("invalid config = %+v, want defaults %+v", got, defaults)
	}

	custom := SearchConfig{TopK: 3, MinCertainty: 0.8}
	if got := validateSearchConfig(custom); got != custom {
		t.Errorf("valid config changed: %+v", got)
	}
}

func TestClauseSourceCode(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"home_policy_2024.txt", "HOME-POLICY-2024"},
		{"Motor Policy v3.pdf", "MOTOR-POLICY-V3"},
		{"health.md", "HEALTH"},
		{"...", "POLICY"},
		{"", "POLICY"},
	}
	for _, tc := range tests {
		if got := clauseSourceCode(tc.source); got != tc.want {
			t.Errorf("clauseSourceCode(%q) = %q, want %q", tc.source, got, tc.want)
		}
	}
}
