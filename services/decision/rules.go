// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decision

import (
	"fmt"
	"strings"

	"github.com/harborline/claimguard/services/decision/ruleset"
)

// RuleInput is everything a rule predicate may inspect. Rules never see
// anything outside this value, which keeps the overlay side-effect-free.
type RuleInput struct {
	Decision              ClaimDecision
	Request               ClaimRequest
	Clauses               []PolicyClause
	HasSupportingEvidence bool
}

// Rule is one ordered (predicate, transform) pair. Transforms return a new
// decision value; they never mutate the input.
type Rule struct {
	ID          string
	Description string
	Predicate   func(in RuleInput) bool
	Transform   func(dec ClaimDecision) ClaimDecision
}

// BusinessRuleEngine is the deterministic overlay applied on top of the
// model's probabilistic draft. Rules are evaluated in fixed priority order;
// the first matching rule wins and its transform is applied exclusively.
// If no rule matches, the input decision is returned unchanged.
//
// The engine is pure and total: Apply never fails and never touches shared
// state, so instances are safe for concurrent use and hot-swappable.
type BusinessRuleEngine struct {
	rules []Rule
}

// Annotation markers appended by rule transforms. Predicates check for
// their absence, which makes Apply idempotent on its own output.
const (
	autoApprovedMarker  = "[Auto-approved: small claim with supporting evidence]"
	reducedReviewMarker = "[Reduced review: moderate claim with high confidence]"
)

// NewBusinessRuleEngine builds the ordered rule list from configuration.
// The configuration is already priority-sorted by ruleset.Parse; rule ids
// bind to the built-in predicate/transform pairs below.
func NewBusinessRuleEngine(cfg *ruleset.Config) (*BusinessRuleEngine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rule configuration must not be nil")
	}
	rules := make([]Rule, 0, len(cfg.Rules))
	for _, rc := range cfg.Rules {
		rule, err := buildRule(rc)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return &BusinessRuleEngine{rules: rules}, nil
}

// Apply evaluates the rules in order against the draft decision and returns
// the adjusted decision. First match wins; the match's transform output is
// returned immediately. A decision that matches no rule passes through
// unchanged.
func (e *BusinessRuleEngine) Apply(dec ClaimDecision, req ClaimRequest,
	clauses []PolicyClause, hasSupportingEvidence bool) ClaimDecision {

	in := RuleInput{
		Decision:              dec,
		Request:               req,
		Clauses:               clauses,
		HasSupportingEvidence: hasSupportingEvidence,
	}
	for _, rule := range e.rules {
		if rule.Predicate(in) {
			return rule.Transform(dec).Normalize()
		}
	}
	return dec.Normalize()
}

// Rules exposes the ordered rule list for inspection (CLI lint, tests).
func (e *BusinessRuleEngine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

func buildRule(rc ruleset.RuleConfig) (Rule, error) {
	switch rc.ID {
	case ruleset.RuleLowConfidenceReview:
		return lowConfidenceReviewRule(rc), nil
	case ruleset.RuleSmallClaimAutoApprove:
		return smallClaimAutoApproveRule(rc), nil
	case ruleset.RuleModerateClaimReducedReview:
		return moderateClaimReducedReviewRule(rc), nil
	case ruleset.RuleLargeClaimManualReview:
		return largeClaimManualReviewRule(rc), nil
	case ruleset.RuleExclusionLanguageReview:
		return exclusionLanguageReviewRule(rc), nil
	default:
		return Rule{}, fmt.Errorf("no built-in rule bound to id %q", rc.ID)
	}
}

// lowConfidenceReviewRule forces Manual Review below the confidence
// threshold. This is a dominant safety rail: its priority must keep it
// ahead of the approval-affirming rules.
func lowConfidenceReviewRule(rc ruleset.RuleConfig) Rule {
	threshold := rc.Params.MinConfidence
	return Rule{
		ID:          rc.ID,
		Description: rc.Description,
		Predicate: func(in RuleInput) bool {
			return in.Decision.ConfidenceScore < threshold &&
				in.Decision.Status != StatusManualReview
		},
		Transform: func(dec ClaimDecision) ClaimDecision {
			dec.Status = StatusManualReview
			dec.Explanation = fmt.Sprintf(
				"Confidence %.2f is below the %.2f review threshold; routing to manual review. %s",
				dec.ConfidenceScore, threshold, dec.Explanation)
			return dec
		},
	}
}

func smallClaimAutoApproveRule(rc ruleset.RuleConfig) Rule {
	maxAmount := rc.Params.MaxAmount
	minConfidence := rc.Params.MinConfidence
	return Rule{
		ID:          rc.ID,
		Description: rc.Description,
		Predicate: func(in RuleInput) bool {
			return in.Request.ClaimAmount < maxAmount &&
				in.Decision.ConfidenceScore >= minConfidence &&
				in.Decision.Status == StatusCovered &&
				in.HasSupportingEvidence &&
				!strings.Contains(in.Decision.Explanation, autoApprovedMarker)
		},
		Transform: func(dec ClaimDecision) ClaimDecision {
			dec.Explanation = dec.Explanation + " " + autoApprovedMarker
			return dec
		},
	}
}

func moderateClaimReducedReviewRule(rc ruleset.RuleConfig) Rule {
	maxAmount := rc.Params.MaxAmount
	minConfidence := rc.Params.MinConfidence
	return Rule{
		ID:          rc.ID,
		Description: rc.Description,
		Predicate: func(in RuleInput) bool {
			return in.Request.ClaimAmount < maxAmount &&
				in.Decision.ConfidenceScore >= minConfidence &&
				in.Decision.Status == StatusCovered &&
				!strings.Contains(in.Decision.Explanation, reducedReviewMarker)
		},
		Transform: func(dec ClaimDecision) ClaimDecision {
			dec.Explanation = dec.Explanation + " " + reducedReviewMarker
			return dec
		},
	}
}

// largeClaimManualReviewRule caps automation: approvals above the limit go
// to a human regardless of confidence. The other dominant safety rail.
func largeClaimManualReviewRule(rc ruleset.RuleConfig) Rule {
	limit := rc.Params.MaxAmount
	return Rule{
		ID:          rc.ID,
		Description: rc.Description,
		Predicate: func(in RuleInput) bool {
			return in.Request.ClaimAmount > limit &&
				in.Decision.Status == StatusCovered
		},
		Transform: func(dec ClaimDecision) ClaimDecision {
			dec.Status = StatusManualReview
			dec.Explanation = fmt.Sprintf(
				"Claim amount exceeds the %.0f auto-approval limit; routing to manual review. %s",
				limit, dec.Explanation)
			return dec
		},
	}
}

func exclusionLanguageReviewRule(rc ruleset.RuleConfig) Rule {
	return Rule{
		ID:          rc.ID,
		Description: rc.Description,
		Predicate: func(in RuleInput) bool {
			if in.Decision.Status != StatusCovered {
				return false
			}
			cited := clausesByID(in.Clauses)
			for _, ref := range in.Decision.ClauseReferences {
				clause, ok := cited[ref]
				if ok && strings.Contains(strings.ToLower(clause.Text), "exclusion") {
					return true
				}
			}
			return false
		},
		Transform: func(dec ClaimDecision) ClaimDecision {
			dec.Status = StatusManualReview
			dec.Explanation = "A cited clause contains potential exclusion language; routing to manual review. " +
				dec.Explanation
			return dec
		},
	}
}

// clausesByID indexes clauses for citation resolution.
func clausesByID(clauses []PolicyClause) map[string]PolicyClause {
	m := make(map[string]PolicyClause, len(clauses))
	for _, c := range clauses {
		m[c.ClauseID] = c
	}
	return m
}
