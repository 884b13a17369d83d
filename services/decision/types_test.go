// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decision

import (
	"strings"
	"testing"
)

func TestPolicyType_Valid(t *testing.T) {
	for _, p := range []PolicyType{PolicyMotor, PolicyHome, PolicyHealth, PolicyLife} {
		if !p.Valid() {
			t.Errorf("%s must be valid", p)
		}
	}
	for _, p := range []PolicyType{"", "Boat", "motor", "HOME"} {
		if p.Valid() {
			t.Errorf("%q must be invalid", p)
		}
	}
}

func TestDecisionStatus_Valid(t *testing.T) {
	for _, s := range []DecisionStatus{StatusCovered, StatusNotCovered, StatusManualReview} {
		if !s.Valid() {
			t.Errorf("%s must be valid", s)
		}
	}
	for _, s := range []DecisionStatus{"", "Approved", "covered", "NotCovered"} {
		if s.Valid() {
			t.Errorf("%q must be invalid", s)
		}
	}
}

func TestClaimRequest_Validate(t *testing.T) {
	valid := ClaimRequest{
		PolicyNumber:     "POL-1001",
		PolicyType:       PolicyHome,
		ClaimAmount:      1200,
		ClaimDescription: "Burst pipe flooded the kitchen",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := map[string]func(r *ClaimRequest){
		"missing policy number": func(r *ClaimRequest) { r.PolicyNumber = "" },
		"missing policy type":   func(r *ClaimRequest) { r.PolicyType = "" },
		"unknown policy type":   func(r *ClaimRequest) { r.PolicyType = "Boat" },
		"negative amount":       func(r *ClaimRequest) { r.ClaimAmount = -1 },
		"missing description":   func(r *ClaimRequest) { r.ClaimDescription = "" },
		"oversized description": func(r *ClaimRequest) {
			r.ClaimDescription = strings.Repeat("a", MaxClaimDescriptionBytes+1)
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			req := valid
			mutate(&req)
			if err := req.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestClaimRequest_Validate_DescriptionAtLimit(t *testing.T) {
	req := ClaimRequest{
		PolicyNumber:     "POL-1001",
		PolicyType:       PolicyHome,
		ClaimAmount:      0, // zero is a legal amount
		ClaimDescription: strings.Repeat("a", MaxClaimDescriptionBytes),
	}
	if err := req.Validate(); err != nil {
		t.Errorf("a description at exactly the byte limit must pass: %v", err)
	}
}

func TestClaimDecision_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   ClaimDecision
		want ClaimDecision
	}{
		{
			name: "valid decision unchanged",
			in:   ClaimDecision{Status: StatusCovered, ConfidenceScore: 0.9},
			want: ClaimDecision{Status: StatusCovered, ConfidenceScore: 0.9},
		},
		{
			name: "invalid status forced to review",
			in:   ClaimDecision{Status: "Approved", ConfidenceScore: 0.9},
			want: ClaimDecision{Status: StatusManualReview, ConfidenceScore: 0.9},
		},
		{
			name: "confidence clamped high",
			in:   ClaimDecision{Status: StatusCovered, ConfidenceScore: 1.7},
			want: ClaimDecision{Status: StatusCovered, ConfidenceScore: 1},
		},
		{
			name: "confidence clamped low",
			in:   ClaimDecision{Status: StatusNotCovered, ConfidenceScore: -0.3},
			want: ClaimDecision{Status: StatusNotCovered, ConfidenceScore: 0},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Normalize(); got.Status != tc.want.Status || got.ConfidenceScore != tc.want.ConfidenceScore {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestValidationResult_AddErrorAndWarning(t *testing.T) {
	result := ValidationResult{IsValid: true}

	result.AddWarning("just a warning")
	if !result.IsValid {
		t.Error("a warning must not invalidate the result")
	}

	result.AddError("a real problem")
	if result.IsValid {
		t.Error("an error must invalidate the result")
	}
	if len(result.Errors) != 1 || len(result.Warnings) != 1 {
		t.Errorf("errors = %v, warnings = %v", result.Errors, result.Warnings)
	}
}
