// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package decision implements the claim decision engine: grounded decision
// generation, citation validation, contradiction detection, and the
// deterministic business-rule overlay that together turn a free-text claim
// plus retrieved policy clauses into a bounded decision.
package decision

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Enums
// =============================================================================

// PolicyType identifies the line of business a claim is filed under.
type PolicyType string

const (
	PolicyMotor  PolicyType = "Motor"
	PolicyHome   PolicyType = "Home"
	PolicyHealth PolicyType = "Health"
	PolicyLife   PolicyType = "Life"
)

// Valid reports whether the policy type is one of the four supported lines.
func (p PolicyType) Valid() bool {
	switch p {
	case PolicyMotor, PolicyHome, PolicyHealth, PolicyLife:
		return true
	default:
		return false
	}
}

// DecisionStatus is the bounded disposition of a claim validation.
//
// Every decision returned by the engine carries exactly one of these three
// values. StatusManualReview is the designed-safe fallback whenever
// automation cannot certify a decision.
type DecisionStatus string

const (
	StatusCovered      DecisionStatus = "Covered"
	StatusNotCovered   DecisionStatus = "Not Covered"
	StatusManualReview DecisionStatus = "Manual Review"
)

// Valid reports whether the status is in the fixed three-value set.
func (s DecisionStatus) Valid() bool {
	switch s {
	case StatusCovered, StatusNotCovered, StatusManualReview:
		return true
	default:
		return false
	}
}

// Severity grades a detected contradiction.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// rank orders severities for sorting; higher is more severe.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// =============================================================================
// Shared Validator Instance
// =============================================================================

const (
	// MaxClaimDescriptionBytes bounds the free-text claim description.
	// Checked on byte length, not rune count, to bound memory and prompt size.
	MaxClaimDescriptionBytes = 16 * 1024 // 16KB
)

// claimValidate is the validator instance for decision datatypes.
// Initialized in init() with custom validators.
var claimValidate *validator.Validate

func init() {
	claimValidate = validator.New()
	_ = claimValidate.RegisterValidation("policytype", validatePolicyType)
	_ = claimValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validatePolicyType enforces the four-value PolicyType enum on string fields.
func validatePolicyType(fl validator.FieldLevel) bool {
	return PolicyType(fl.Field().String()).Valid()
}

// validateMaxBytes validates that a string field does not exceed
// MaxClaimDescriptionBytes.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxClaimDescriptionBytes
}

// =============================================================================
// Core Datatypes
// =============================================================================

// ClaimRequest is the immutable description of a single claim validation
// request. It is created once per request and never modified by the engine.
type ClaimRequest struct {
	// PolicyNumber identifies the policy the claim is filed against.
	PolicyNumber string `json:"policy_number" validate:"required"`

	// PolicyType is the line of business (Motor, Home, Health, Life).
	PolicyType PolicyType `json:"policy_type" validate:"required,policytype"`

	// ClaimAmount is the claimed amount in the policy currency. Non-negative.
	ClaimAmount float64 `json:"claim_amount" validate:"gte=0"`

	// ClaimDescription is the claimant's free-text account of the loss.
	ClaimDescription string `json:"claim_description" validate:"required,maxbytes"`
}

// Validate checks the request against its field constraints.
//
// Returns a wrapped validator error naming the first failing field, or nil.
func (r *ClaimRequest) Validate() error {
	if err := claimValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid claim request: %w", err)
	}
	return nil
}

// PolicyClause is a retrieved excerpt of policy text used as grounding for a
// decision. Clauses are produced by the retrieval collaborator and are
// read-only inside the engine.
type PolicyClause struct {
	// ClauseID uniquely identifies the clause within a retrieval result.
	ClauseID string `json:"clause_id"`

	// CoverageType labels what the clause covers (e.g. "collision").
	CoverageType string `json:"coverage_type"`

	// Text is the clause body.
	Text string `json:"text"`

	// RelevanceScore is the retrieval certainty for this clause.
	RelevanceScore float64 `json:"relevance_score"`
}

// ClaimDecision is the engine's disposition for a claim.
//
// The generator produces the initial value; the business-rule engine then
// replaces it (value semantics, never in-place mutation) with a new value
// reflecting rule outcomes. The final value is what gets audited and
// returned to the caller.
type ClaimDecision struct {
	// Status is the bounded disposition.
	Status DecisionStatus `json:"status"`

	// Explanation is the human-readable justification.
	Explanation string `json:"explanation"`

	// ClauseReferences lists the clause IDs cited as justification, in the
	// order the model emitted them. May be empty.
	ClauseReferences []string `json:"clause_references"`

	// RequiredDocuments lists documents the claimant must still supply.
	RequiredDocuments []string `json:"required_documents"`

	// ConfidenceScore is the model's self-reported certainty in [0,1].
	// It is not independently calibrated by this engine.
	ConfidenceScore float64 `json:"confidence_score"`
}

// Normalize clamps the confidence score into [0,1] and forces an invalid
// status to Manual Review. Every decision leaving the engine passes through
// this so the returned-decision invariant holds even for degraded inputs.
func (d ClaimDecision) Normalize() ClaimDecision {
	if !d.Status.Valid() {
		d.Status = StatusManualReview
	}
	if d.ConfidenceScore < 0 {
		d.ConfidenceScore = 0
	}
	if d.ConfidenceScore > 1 {
		d.ConfidenceScore = 1
	}
	return d
}

// Contradiction records a detected inconsistency between two facts drawn
// from the claim, decision, clauses, or evidence. Contradictions are
// transient diagnostic output and are never persisted by the engine.
type Contradiction struct {
	// SourceA and SourceB are human-readable labels of the conflicting facts.
	SourceA string `json:"source_a"`
	SourceB string `json:"source_b"`

	// Description says what conflicts.
	Description string `json:"description"`

	// Impact says what the conflict means for the decision.
	Impact string `json:"impact"`

	// Severity grades the conflict.
	Severity Severity `json:"severity"`
}

// ValidationResult is the transient diagnostic output of the citation
// validator. It never blocks a decision from being returned on its own.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// AddError appends an error and marks the result invalid.
func (v *ValidationResult) AddError(msg string) {
	v.Errors = append(v.Errors, msg)
	v.IsValid = false
}

// AddWarning appends a warning without affecting validity.
func (v *ValidationResult) AddWarning(msg string) {
	v.Warnings = append(v.Warnings, msg)
}
