// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decision

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Package-level compiled regexes for contradiction detection.
var (
	// exclusionLanguagePattern matches clause text that denies coverage.
	exclusionLanguagePattern = regexp.MustCompile(
		`(?i)(exclusion|excluded|not\s+covered|does\s+not\s+cover|shall\s+not\s+be\s+liable|no\s+benefit\s+is\s+payable)`,
	)

	// coverageLanguagePattern matches clause text that affirms coverage.
	// Deliberately phrased to avoid matching negated forms like "not covered".
	coverageLanguagePattern = regexp.MustCompile(
		`(?i)(is\s+covered|will\s+be\s+covered|we\s+will\s+pay|coverage\s+includes|insured\s+against|benefits?\s+are\s+payable)`,
	)

	// currencyAmountPattern matches currency-formatted numbers in clause or
	// evidence text, e.g. $5,000 or $1250.50.
	currencyAmountPattern = regexp.MustCompile(
		`\$\s?(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d{2}))?`,
	)
)

// Confidence thresholds for the consistency checks. These diagnose the
// relationship between the model's self-reported certainty and its
// disposition; the authoritative confidence gate lives in the rule engine.
const (
	confidentOverrideThreshold = 0.85
	automatedDispositionFloor  = 0.70

	// evidenceAmountTolerance is the fraction of the claim amount by which
	// an evidence amount may differ before it is flagged.
	evidenceAmountTolerance = 0.10
)

// ContradictionDetector cross-checks a decision against the claim, the
// cited clauses, and optional evidence for logical inconsistency. All
// checks are independent and all run; output is advisory diagnostics.
//
// Thread Safety: stateless, safe for concurrent use.
type ContradictionDetector struct{}

// NewContradictionDetector creates a contradiction detector.
func NewContradictionDetector() *ContradictionDetector {
	return &ContradictionDetector{}
}

// Detect runs every contradiction check and returns all findings.
// evidenceTexts may be nil; the evidence-amount check only runs when
// evidence is supplied.
func (d *ContradictionDetector) Detect(req ClaimRequest, dec ClaimDecision,
	clauses []PolicyClause, evidenceTexts []string) []Contradiction {

	cited := citedClauses(dec, clauses)
	var found []Contradiction

	found = append(found, d.checkDenialGrounding(dec, cited)...)
	found = append(found, d.checkApprovalAgainstExclusions(dec, cited)...)
	found = append(found, d.checkMixedSignals(cited)...)
	found = append(found, d.checkConfidenceConsistency(dec)...)
	found = append(found, d.checkClauseLimits(req, cited)...)
	if len(evidenceTexts) > 0 {
		found = append(found, d.checkEvidenceAmounts(req, evidenceTexts)...)
	}
	return found
}

// HasCriticalContradictions reports whether any finding is severe enough
// that callers should force human review: Critical or High.
func (d *ContradictionDetector) HasCriticalContradictions(found []Contradiction) bool {
	for _, c := range found {
		if c.Severity == SeverityCritical || c.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// ContradictionSummary renders the findings as human-readable lines ordered
// by descending severity.
func (d *ContradictionDetector) ContradictionSummary(found []Contradiction) string {
	if len(found) == 0 {
		return "No contradictions detected."
	}
	sorted := make([]Contradiction, len(found))
	copy(sorted, found)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.rank() > sorted[j].Severity.rank()
	})

	var b strings.Builder
	for _, c := range sorted {
		fmt.Fprintf(&b, "[%s] %s vs %s: %s (%s)\n",
			c.Severity, c.SourceA, c.SourceB, c.Description, c.Impact)
	}
	return strings.TrimRight(b.String(), "\n")
}

// checkDenialGrounding flags a denial whose cited clauses contain no
// exclusion language: the denial is then not grounded in anything.
func (d *ContradictionDetector) checkDenialGrounding(dec ClaimDecision, cited []PolicyClause) []Contradiction {
	if dec.Status != StatusNotCovered || len(cited) == 0 {
		return nil
	}
	for _, c := range cited {
		if exclusionLanguagePattern.MatchString(c.Text) {
			return nil
		}
	}
	return []Contradiction{{
		SourceA:     "decision status (Not Covered)",
		SourceB:     "cited clause text",
		Description: "the decision denies coverage but none of the cited clauses contain exclusion or denial language",
		Impact:      "the denial is not grounded in the cited policy text",
		Severity:    SeverityHigh,
	}}
}

// checkApprovalAgainstExclusions flags a covered decision that cites a
// clause containing exclusion language. This is the strongest hallucination
// signal the detector produces.
func (d *ContradictionDetector) checkApprovalAgainstExclusions(dec ClaimDecision, cited []PolicyClause) []Contradiction {
	if dec.Status != StatusCovered {
		return nil
	}
	var found []Contradiction
	for _, c := range cited {
		if exclusionLanguagePattern.MatchString(c.Text) {
			found = append(found, Contradiction{
				SourceA:     "decision status (Covered)",
				SourceB:     fmt.Sprintf("clause %s", c.ClauseID),
				Description: "the decision approves coverage while citing a clause containing exclusion language",
				Impact:      "the approval may rest on a clause that actually denies it",
				Severity:    SeverityCritical,
			})
		}
	}
	return found
}

// checkMixedSignals flags citing both a coverage-affirming and an
// exclusion-bearing clause together.
func (d *ContradictionDetector) checkMixedSignals(cited []PolicyClause) []Contradiction {
	var coverage, exclusion *PolicyClause
	for i := range cited {
		if coverage == nil && coverageLanguagePattern.MatchString(cited[i].Text) {
			coverage = &cited[i]
		}
		if exclusion == nil && exclusionLanguagePattern.MatchString(cited[i].Text) {
			exclusion = &cited[i]
		}
	}
	if coverage == nil || exclusion == nil || coverage.ClauseID == exclusion.ClauseID {
		return nil
	}
	return []Contradiction{{
		SourceA:     fmt.Sprintf("clause %s (coverage)", coverage.ClauseID),
		SourceB:     fmt.Sprintf("clause %s (exclusion)", exclusion.ClauseID),
		Description: "the decision cites both a coverage-affirming and an exclusion-bearing clause",
		Impact:      "the cited clauses point in opposite directions and need reconciliation",
		Severity:    SeverityHigh,
	}}
}

// checkConfidenceConsistency flags mismatches between the model's
// self-reported confidence and its disposition.
func (d *ContradictionDetector) checkConfidenceConsistency(dec ClaimDecision) []Contradiction {
	var found []Contradiction
	if dec.ConfidenceScore > confidentOverrideThreshold && dec.Status == StatusManualReview {
		// Informational: a confident model routed to review is often the
		// guardrails working, not a defect.
		found = append(found, Contradiction{
			SourceA:     fmt.Sprintf("confidence score (%.2f)", dec.ConfidenceScore),
			SourceB:     "decision status (Manual Review)",
			Description: "a confident decision was routed to manual review",
			Impact:      "review routing may be an override of a usable automated decision",
			Severity:    SeverityMedium,
		})
	}
	if dec.ConfidenceScore < automatedDispositionFloor &&
		(dec.Status == StatusCovered || dec.Status == StatusNotCovered) {
		found = append(found, Contradiction{
			SourceA:     fmt.Sprintf("confidence score (%.2f)", dec.ConfidenceScore),
			SourceB:     fmt.Sprintf("decision status (%s)", dec.Status),
			Description: "an automated disposition was made despite low confidence",
			Impact:      "the disposition is weakly supported and should not stand automatically",
			Severity:    SeverityHigh,
		})
	}
	return found
}

// checkClauseLimits parses dollar amounts out of cited clauses whose text
// mentions a limit and compares them to the claim amount.
func (d *ContradictionDetector) checkClauseLimits(req ClaimRequest, cited []PolicyClause) []Contradiction {
	var found []Contradiction
	for _, c := range cited {
		if !strings.Contains(strings.ToLower(c.Text), "limit") {
			continue
		}
		for _, limit := range parseCurrencyAmounts(c.Text) {
			if req.ClaimAmount > limit {
				found = append(found, Contradiction{
					SourceA:     fmt.Sprintf("claim amount (%.2f)", req.ClaimAmount),
					SourceB:     fmt.Sprintf("clause %s limit (%.2f)", c.ClauseID, limit),
					Description: "the claim amount exceeds a limit stated in a cited clause",
					Impact:      "the claim cannot be paid in full under the cited limit",
					Severity:    SeverityHigh,
				})
			}
		}
	}
	return found
}

// checkEvidenceAmounts compares dollar amounts found in evidence documents
// to the claim amount; a mismatch beyond the tolerance is flagged.
func (d *ContradictionDetector) checkEvidenceAmounts(req ClaimRequest, evidenceTexts []string) []Contradiction {
	if req.ClaimAmount == 0 {
		return nil
	}
	tolerance := evidenceAmountTolerance * req.ClaimAmount
	var found []Contradiction
	for i, text := range evidenceTexts {
		for _, amount := range parseCurrencyAmounts(text) {
			if math.Abs(amount-req.ClaimAmount) > tolerance {
				found = append(found, Contradiction{
					SourceA:     fmt.Sprintf("claim amount (%.2f)", req.ClaimAmount),
					SourceB:     fmt.Sprintf("evidence document %d amount (%.2f)", i+1, amount),
					Description: "an amount in the supporting evidence differs from the claim amount by more than 10%",
					Impact:      "the claimed amount is not corroborated by the supplied evidence",
					Severity:    SeverityHigh,
				})
			}
		}
	}
	return found
}

// citedClauses resolves the decision's references against the retrieved
// clauses; unresolved references are skipped here (the citation validator
// reports them).
func citedClauses(dec ClaimDecision, clauses []PolicyClause) []PolicyClause {
	byID := clausesByID(clauses)
	var cited []PolicyClause
	for _, ref := range dec.ClauseReferences {
		if c, ok := byID[ref]; ok {
			cited = append(cited, c)
		}
	}
	return cited
}

// parseCurrencyAmounts extracts all currency-formatted numbers from text.
func parseCurrencyAmounts(text string) []float64 {
	matches := currencyAmountPattern.FindAllStringSubmatch(text, -1)
	var amounts []float64
	for _, m := range matches {
		whole := strings.ReplaceAll(m[1], ",", "")
		s := whole
		if m[2] != "" {
			s = whole + "." + m[2]
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			amounts = append(amounts, v)
		}
	}
	return amounts
}
