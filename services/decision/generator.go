// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"text/template"

	"github.com/harborline/claimguard/services/decision/ruleset"
	"github.com/harborline/claimguard/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var decisionTracer = otel.Tracer("claimguard.decision")

// systemDirective pins the model to the supplied clauses and a
// machine-parseable output contract. The model is told to prefer Manual
// Review over guessing; the rule overlay enforces that independently.
const systemDirective = `You are an insurance claim adjudication assistant.
Base your decision ONLY on the policy clauses supplied in the prompt. Cite
clause IDs for every conclusion. If the clauses do not clearly determine the
outcome, use the status "Manual Review".

Respond with ONLY a valid JSON object (no markdown, no preamble):
{"status":"Covered"|"Not Covered"|"Manual Review","explanation":"...","clauseReferences":["CL-..."],"requiredDocuments":["..."],"confidenceScore":0.0-1.0}`

// decisionPromptTemplate builds the grounded generation prompt. Clauses are
// enumerated with their IDs so citations can be checked against exactly
// what was retrieved.
const decisionPromptTemplate = `Assess the following insurance claim against the retrieved policy clauses.

CLAIM
Policy number: {{.Request.PolicyNumber}}
Policy type: {{.Request.PolicyType}}
Claim amount: {{printf "%.2f" .Request.ClaimAmount}}
Description: {{.Request.ClaimDescription}}

POLICY CLAUSES
{{range .Clauses}}[{{.ClauseID}}] ({{.CoverageType}}, relevance {{printf "%.2f" .RelevanceScore}})
{{.Text}}

{{end}}DOCUMENTATION GUIDANCE
{{.Guidance}}
{{if .EvidenceTexts}}
SUPPORTING EVIDENCE
{{range $i, $t := .EvidenceTexts}}--- Evidence document {{inc $i}} ---
{{$t}}

{{end}}Cross-check the claim details (amounts, dates, described damage) against the
supporting evidence above and call out any mismatch in your explanation.
{{end}}
List the documents the claimant must still provide in requiredDocuments.`

// fallbackExplanation is the fixed explanation for an unparseable response.
const fallbackExplanation = "Failed to parse model response"

// generationParams returns the low-randomness, bounded-output parameters
// used for decision generation.
func generationParams() llm.GenerationParams {
	temp := float32(0.0)
	maxTokens := 1024
	return llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		System:      systemDirective,
	}
}

// decisionWire is the model's response contract. Field names are part of
// the wire format and must not change.
type decisionWire struct {
	Status            string   `json:"status"`
	Explanation       string   `json:"explanation"`
	ClauseReferences  []string `json:"clauseReferences"`
	RequiredDocuments []string `json:"requiredDocuments"`
	ConfidenceScore   float64  `json:"confidenceScore"`
}

// DecisionGenerator builds a grounded prompt from the claim and retrieved
// clauses, invokes the generative-inference collaborator, and parses the
// draft decision.
//
// Parse failures degrade to a fixed Manual Review fallback and never
// surface as errors; transport failures from the inference collaborator
// propagate to the caller.
//
// Thread Safety: safe for concurrent use after construction.
type DecisionGenerator struct {
	client llm.LLMClient
	rules  atomic.Pointer[ruleset.Config]
	tmpl   *template.Template
}

// NewDecisionGenerator creates a generator using the provided inference
// client and rule configuration (for the documentation-guidance tiers).
func NewDecisionGenerator(client llm.LLMClient, rules *ruleset.Config) (*DecisionGenerator, error) {
	if client == nil {
		return nil, errors.New("client must not be nil")
	}
	if rules == nil {
		return nil, errors.New("rules must not be nil")
	}
	tmpl, err := template.New("decision_prompt").
		Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
		Parse(decisionPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse the decision prompt template: %w", err)
	}
	g := &DecisionGenerator{client: client, tmpl: tmpl}
	g.rules.Store(rules)
	return g, nil
}

// SetRules atomically swaps the rule configuration used for the
// documentation-guidance tiers. Used by the ruleset hot-reload watcher.
func (g *DecisionGenerator) SetRules(rules *ruleset.Config) {
	if rules != nil {
		g.rules.Store(rules)
	}
}

// Generate produces a draft decision for the claim grounded in the
// retrieved clauses. evidenceTexts may be nil; when supplied, each text is
// appended as a labeled block and the model is instructed to cross-check
// claim details against it.
//
// A malformed model response returns the fallback Manual Review decision
// with a nil error. A transport error from the inference collaborator is
// returned as-is and aborts the pipeline.
func (g *DecisionGenerator) Generate(ctx context.Context, req ClaimRequest,
	clauses []PolicyClause, evidenceTexts []string) (ClaimDecision, error) {

	ctx, span := decisionTracer.Start(ctx, "DecisionGenerator.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("claim.policy_type", string(req.PolicyType)),
		attribute.Float64("claim.amount", req.ClaimAmount),
		attribute.Int("clauses.count", len(clauses)),
		attribute.Int("evidence.count", len(evidenceTexts)),
	)

	prompt, err := g.buildPrompt(req, clauses, evidenceTexts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ClaimDecision{}, fmt.Errorf("failed to build the decision prompt: %w", err)
	}

	raw, err := g.client.Generate(ctx, prompt, generationParams())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ClaimDecision{}, &TransportError{Op: "generate", Err: err}
	}

	dec, ok := parseDecision(raw)
	if !ok {
		// Designed degradation for an unreliable collaborator, not an error.
		slog.Warn("Failed to parse model response, using fallback decision",
			"policy_number", req.PolicyNumber, "response_length", len(raw))
		span.SetAttributes(attribute.Bool("decision.fallback", true))
		return FallbackDecision(), nil
	}

	span.SetAttributes(
		attribute.String("decision.status", string(dec.Status)),
		attribute.Float64("decision.confidence", dec.ConfidenceScore),
	)
	return dec, nil
}

// buildPrompt renders the grounded prompt with the amount-selected
// documentation-guidance tier.
func (g *DecisionGenerator) buildPrompt(req ClaimRequest, clauses []PolicyClause,
	evidenceTexts []string) (string, error) {

	data := struct {
		Request       ClaimRequest
		Clauses       []PolicyClause
		Guidance      string
		EvidenceTexts []string
	}{
		Request:       req,
		Clauses:       clauses,
		Guidance:      g.rules.Load().GuidanceFor(req.ClaimAmount),
		EvidenceTexts: evidenceTexts,
	}
	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FallbackDecision is the fixed decision used when the model response
// cannot be parsed: Manual Review with zero confidence and empty
// citation/document lists.
func FallbackDecision() ClaimDecision {
	return ClaimDecision{
		Status:            StatusManualReview,
		Explanation:       fallbackExplanation,
		ClauseReferences:  []string{},
		RequiredDocuments: []string{},
		ConfidenceScore:   0.0,
	}
}

// parseDecision decodes a raw model response into a decision. It strips
// markdown code-fence wrapping first, then requires a JSON object with a
// status from the fixed three-value set. ok is false for anything else.
func parseDecision(raw string) (ClaimDecision, bool) {
	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return ClaimDecision{}, false
	}

	var wire decisionWire
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return ClaimDecision{}, false
	}

	status := DecisionStatus(wire.Status)
	if !status.Valid() {
		return ClaimDecision{}, false
	}

	dec := ClaimDecision{
		Status:            status,
		Explanation:       wire.Explanation,
		ClauseReferences:  wire.ClauseReferences,
		RequiredDocuments: wire.RequiredDocuments,
		ConfidenceScore:   wire.ConfidenceScore,
	}
	if dec.ClauseReferences == nil {
		dec.ClauseReferences = []string{}
	}
	if dec.RequiredDocuments == nil {
		dec.RequiredDocuments = []string{}
	}
	return dec.Normalize(), true
}

// stripCodeFences removes a surrounding markdown code fence (``` or
// ```json) from a model response. Content without a fence is returned
// trimmed and otherwise untouched.
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line, including any language tag.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		return ""
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
