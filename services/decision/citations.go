// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decision

import (
	"fmt"
	"regexp"
	"strings"
)

// Package-level compiled regexes for citation and hallucination detection.
var (
	// citationMarkerPattern recognizes any explanation text that actually
	// points at policy material: a bracketed clause ID, the word "clause",
	// "section N", or a policy-ID-shaped token like HOM-2023-114.
	citationMarkerPattern = regexp.MustCompile(
		`(?i)(\[[A-Za-z0-9_.-]+\]|\bclause\b|\bsection\s+\d+|\b[A-Z]{2,5}-\d{2,}[A-Z0-9-]*\b)`,
	)

	// hedgingPattern matches hedging language that signals the model is
	// guessing rather than reading the clauses.
	hedgingPattern = regexp.MustCompile(
		`(?i)\b(probably|perhaps|maybe|possibly|i\s+think|i\s+believe|it\s+seems|likely|might\s+be|could\s+be)\b`,
	)

	// personalKnowledgePattern matches claims of knowledge outside the
	// supplied clauses.
	personalKnowledgePattern = regexp.MustCompile(
		`(?i)(i\s+know\s+that|in\s+my\s+experience|i\s+recall|from\s+what\s+i\s+know|generally\s+speaking|typically\s+insurers)`,
	)

	// vaguePolicyPattern matches references to "the policy" that are not
	// anchored to a specific clause.
	vaguePolicyPattern = regexp.MustCompile(
		`(?i)(the\s+policy\s+(states|says|covers|excludes)|according\s+to\s+the\s+policy|as\s+per\s+the\s+policy)`,
	)
)

const (
	// overCitationThreshold is the citation count above which a
	// low-confidence decision looks like citation stuffing.
	overCitationThreshold = 5

	// lowConfidenceForOverCitation pairs with overCitationThreshold.
	lowConfidenceForOverCitation = 0.5

	// citationPreviewLen bounds the clause text preview in the appendix.
	citationPreviewLen = 100
)

// CitationValidator independently checks that a draft decision's cited
// clause IDs resolve against what was actually retrieved, and scans the
// explanation for hallucination signals. Its output is advisory: it never
// blocks a decision from being returned on its own.
//
// Thread Safety: stateless, safe for concurrent use.
type CitationValidator struct{}

// NewCitationValidator creates a citation validator.
func NewCitationValidator() *CitationValidator {
	return &CitationValidator{}
}

// Validate cross-checks the decision's citations against the available
// clauses and reports hallucination signals.
//
// Errors mark conditions that make the decision unjustifiable as-is
// (hallucinated citations, uncited coverage). Warnings mark signals a
// reviewer should weigh (hedging language, over-citation, vague policy
// references).
func (v *CitationValidator) Validate(dec ClaimDecision, availableClauses []PolicyClause) ValidationResult {
	result := ValidationResult{IsValid: true}

	// Uncited decisions. The parse-failure fallback carries Manual Review
	// and is allowed to be citation-free; automated dispositions are not.
	if len(dec.ClauseReferences) == 0 {
		switch dec.Status {
		case StatusCovered:
			// Coverage must always be justified.
			result.AddError("decision status is Covered with zero clause citations")
		case StatusNotCovered:
			result.AddWarning("denied decision cites no exclusion or limitation clause; cite one for transparency")
		default:
			if dec.Status != StatusManualReview {
				result.AddError("decision has no clause references")
			}
		}
	}

	// Hallucinated citations: every cited ID must have been retrieved.
	for _, missing := range v.GetMissingCitations(dec, availableClauses) {
		result.AddError(fmt.Sprintf("cited clause %q was not in the retrieved clauses", missing))
	}

	// Citation stuffing: many citations on a low-confidence decision.
	if dec.ConfidenceScore < lowConfidenceForOverCitation &&
		len(dec.ClauseReferences) > overCitationThreshold {
		result.AddWarning(fmt.Sprintf(
			"low confidence (%.2f) with %d citations suggests over-fitting or hallucination",
			dec.ConfidenceScore, len(dec.ClauseReferences)))
	}

	// Citations listed but the explanation never actually points at policy
	// material.
	if len(dec.ClauseReferences) > 0 && !citationMarkerPattern.MatchString(dec.Explanation) {
		result.AddWarning("explanation contains no recognizable citation marker despite listed clause references")
	}

	v.scanHallucinationIndicators(dec.Explanation, &result)
	return result
}

// scanHallucinationIndicators appends one warning per detected indicator
// class in the explanation text.
func (v *CitationValidator) scanHallucinationIndicators(explanation string, result *ValidationResult) {
	if m := hedgingPattern.FindString(explanation); m != "" {
		result.AddWarning(fmt.Sprintf("explanation contains hedging language (%q)", strings.TrimSpace(m)))
	}
	if m := personalKnowledgePattern.FindString(explanation); m != "" {
		result.AddWarning(fmt.Sprintf("explanation claims personal knowledge (%q)", strings.TrimSpace(m)))
	}
	if m := vaguePolicyPattern.FindString(explanation); m != "" && !citationMarkerPattern.MatchString(explanation) {
		result.AddWarning(fmt.Sprintf("explanation references the policy vaguely (%q) without a specific citation", strings.TrimSpace(m)))
	}
}

// AreCitationsValid reports whether every citation in the decision resolves
// against the available clauses.
func (v *CitationValidator) AreCitationsValid(dec ClaimDecision, availableClauses []PolicyClause) bool {
	return len(v.GetMissingCitations(dec, availableClauses)) == 0
}

// GetMissingCitations returns the cited clause IDs that are absent from the
// available clauses, in citation order, without duplicates.
func (v *CitationValidator) GetMissingCitations(dec ClaimDecision, availableClauses []PolicyClause) []string {
	available := clausesByID(availableClauses)
	var missing []string
	seen := make(map[string]bool)
	for _, ref := range dec.ClauseReferences {
		if _, ok := available[ref]; !ok && !seen[ref] {
			missing = append(missing, ref)
			seen[ref] = true
		}
	}
	return missing
}

// EnhanceExplanationWithCitations appends a citation appendix (clause ID
// plus a bounded text preview) to an explanation for display. Pure
// formatting; performs no validation. Citations that don't resolve are
// listed without a preview.
func (v *CitationValidator) EnhanceExplanationWithCitations(dec ClaimDecision, availableClauses []PolicyClause) string {
	if len(dec.ClauseReferences) == 0 {
		return dec.Explanation
	}
	available := clausesByID(availableClauses)

	var b strings.Builder
	b.WriteString(dec.Explanation)
	b.WriteString("\n\nCited clauses:\n")
	for _, ref := range dec.ClauseReferences {
		clause, ok := available[ref]
		if !ok {
			fmt.Fprintf(&b, "- [%s] (unresolved)\n", ref)
			continue
		}
		preview := clause.Text
		if len(preview) > citationPreviewLen {
			preview = preview[:citationPreviewLen] + "..."
		}
		fmt.Fprintf(&b, "- [%s] %s\n", ref, preview)
	}
	return strings.TrimRight(b.String(), "\n")
}
