// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decision

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harborline/claimguard/services/decision/ruleset"
)

// Collaborator stubs. Each records calls and returns canned results so the
// pipeline sequencing can be asserted without any remote services.

type stubEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	s.calls++
	return s.vector, s.err
}

type stubRetriever struct {
	clauses []PolicyClause
	err     error
	calls   int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ []float32, _ PolicyType) ([]PolicyClause, error) {
	s.calls++
	return s.clauses, s.err
}

type stubExtractor struct {
	texts map[string]string
	err   error
}

func (s *stubExtractor) Extract(_ context.Context, documentID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	text, ok := s.texts[documentID]
	if !ok {
		return "", errors.New("unknown document")
	}
	return text, nil
}

// recordingAuditSink captures audit writes; the orchestrator fires them in
// the background, so access is synchronized and tests poll for delivery.
type recordingAuditSink struct {
	mu      sync.Mutex
	records []ClaimDecision
	err     error
}

func (s *recordingAuditSink) Record(_ context.Context, _ ClaimRequest, dec ClaimDecision, _ []PolicyClause) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, dec)
	return nil
}

func (s *recordingAuditSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *recordingAuditSink) waitForRecord(t *testing.T) ClaimDecision {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.records) > 0 {
			dec := s.records[0]
			s.mu.Unlock()
			return dec
		}
		s.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no audit record arrived")
	return ClaimDecision{}
}

// orchestratorFixture bundles the stubs behind a wired orchestrator.
type orchestratorFixture struct {
	embedder  *stubEmbedder
	retriever *stubRetriever
	llm       *stubLLMClient
	audit     *recordingAuditSink
	orch      *ValidationOrchestrator
}

func newOrchestratorFixture(t *testing.T, extractor EvidenceExtractor) *orchestratorFixture {
	t.Helper()
	rules, err := ruleset.Default()
	if err != nil {
		t.Fatalf("loading default ruleset: %v", err)
	}
	engine, err := NewBusinessRuleEngine(rules)
	if err != nil {
		t.Fatalf("creating rule engine: %v", err)
	}

	f := &orchestratorFixture{
		embedder: &stubEmbedder{vector: []float32{0.1, 0.2}},
		retriever: &stubRetriever{clauses: []PolicyClause{
			{ClauseID: "HOM-001", CoverageType: "Home", Text: "Water damage from burst pipes is covered.", RelevanceScore: 0.9},
		}},
		llm:   &stubLLMClient{response: validResponse},
		audit: &recordingAuditSink{},
	}
	gen, err := NewDecisionGenerator(f.llm, rules)
	if err != nil {
		t.Fatalf("creating generator: %v", err)
	}
	f.orch, err = NewValidationOrchestrator(
		f.embedder, f.retriever, gen, engine, f.audit, extractor, DefaultOrchestratorConfig())
	if err != nil {
		t.Fatalf("creating orchestrator: %v", err)
	}
	return f
}

func validRequest() ClaimRequest {
	return ClaimRequest{
		PolicyNumber:     "POL-1001",
		PolicyType:       PolicyHome,
		ClaimAmount:      1200,
		ClaimDescription: "Burst pipe flooded the kitchen",
	}
}

func TestValidate_FullPipeline(t *testing.T) {
	f := newOrchestratorFixture(t, nil)

	outcome, err := f.orch.Validate(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Decision.Status != StatusCovered {
		t.Errorf("status = %s, want Covered", outcome.Decision.Status)
	}
	if !outcome.Validation.IsValid {
		t.Errorf("expected clean diagnostics, got %v", outcome.Validation.Errors)
	}
	if len(outcome.RetrievedClauses) != 1 {
		t.Errorf("retrieved clauses = %v", outcome.RetrievedClauses)
	}
	if f.embedder.calls != 1 || f.retriever.calls != 1 || f.llm.calls != 1 {
		t.Errorf("unexpected call counts: embed=%d retrieve=%d generate=%d",
			f.embedder.calls, f.retriever.calls, f.llm.calls)
	}
	if got := f.audit.waitForRecord(t); got.Status != outcome.Decision.Status {
		t.Errorf("audited status = %s, want %s", got.Status, outcome.Decision.Status)
	}
}

func TestValidate_InvalidRequest(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	req := validRequest()
	req.PolicyType = "Boat"

	_, err := f.orch.Validate(context.Background(), req)

	if !IsInvalidRequest(err) {
		t.Fatalf("expected an invalid-request error, got %v", err)
	}
	if f.embedder.calls != 0 {
		t.Error("an invalid request must not reach the embedder")
	}
}

func TestValidate_ZeroClausesGuardrail(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.retriever.clauses = nil

	outcome, err := f.orch.Validate(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Decision.Status != StatusManualReview {
		t.Errorf("status = %s, want Manual Review", outcome.Decision.Status)
	}
	if outcome.Decision.Explanation != guardrailExplanation {
		t.Errorf("explanation = %q", outcome.Decision.Explanation)
	}
	if len(outcome.Decision.RequiredDocuments) != 2 {
		t.Errorf("required documents = %v", outcome.Decision.RequiredDocuments)
	}
	if f.llm.calls != 0 {
		t.Error("the model must never be called on ungrounded input")
	}
	f.audit.waitForRecord(t)
}

func TestValidate_EmbedFailure(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.embedder.err = errors.New("embedding service down")

	_, err := f.orch.Validate(context.Background(), validRequest())

	var te *TransportError
	if !errors.As(err, &te) || te.Op != "embed" {
		t.Fatalf("expected an embed transport error, got %v", err)
	}
	if f.retriever.calls != 0 {
		t.Error("retrieval must not run after a failed embed")
	}
}

func TestValidate_RetrieveFailure(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.retriever.err = errors.New("vector store down")

	_, err := f.orch.Validate(context.Background(), validRequest())

	var te *TransportError
	if !errors.As(err, &te) || te.Op != "retrieve" {
		t.Fatalf("expected a retrieve transport error, got %v", err)
	}
	if f.llm.calls != 0 {
		t.Error("generation must not run after a failed retrieval")
	}
}

func TestValidate_GenerateFailure(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.llm.err = errors.New("inference backend down")

	_, err := f.orch.Validate(context.Background(), validRequest())

	if !IsTransport(err) {
		t.Fatalf("expected a transport error, got %v", err)
	}
	if f.audit.count() != 0 {
		t.Error("a failed validation must not be audited")
	}
}

func TestValidate_RuleOverlayApplied(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	// A confident large-claim approval must be routed to review by the
	// overlay regardless of what the model said.
	f.llm.response = `{"status":"Covered","explanation":"Covered under [HOM-001].","clauseReferences":["HOM-001"],"confidenceScore":0.95}`
	req := validRequest()
	req.ClaimAmount = 9000

	outcome, err := f.orch.Validate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Decision.Status != StatusManualReview {
		t.Errorf("status = %s, want Manual Review from the overlay", outcome.Decision.Status)
	}
	if !strings.Contains(outcome.Decision.Explanation, "auto-approval limit") {
		t.Errorf("expected the overlay explanation prefix, got %q", outcome.Decision.Explanation)
	}
}

func TestValidate_DiagnosticsDoNotBlock(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	// Hallucinated citation: the validator reports it, the decision still
	// comes back.
	f.llm.response = `{"status":"Covered","explanation":"Covered under [HOM-404].","clauseReferences":["HOM-404"],"confidenceScore":0.95}`

	outcome, err := f.orch.Validate(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("diagnostics must never abort the pipeline: %v", err)
	}

	if outcome.Validation.IsValid {
		t.Error("expected citation errors in the outcome")
	}
	if outcome.Decision.Status == "" {
		t.Error("expected a decision despite the diagnostics")
	}
}

func TestValidateWithEvidence_NoExtractorConfigured(t *testing.T) {
	f := newOrchestratorFixture(t, nil)

	_, err := f.orch.ValidateWithEvidence(context.Background(), validRequest(), []string{"DOC-1"})

	if err == nil || !strings.Contains(err.Error(), "evidence extraction is not configured") {
		t.Fatalf("expected the unconfigured-extractor error, got %v", err)
	}
}

func TestValidateWithEvidence_EmptyIDsWithoutExtractor(t *testing.T) {
	f := newOrchestratorFixture(t, nil)

	outcome, err := f.orch.ValidateWithEvidence(context.Background(), validRequest(), nil)
	if err != nil {
		t.Fatalf("no evidence IDs must not require an extractor: %v", err)
	}
	if outcome.Decision.Status != StatusCovered {
		t.Errorf("status = %s, want Covered", outcome.Decision.Status)
	}
}

func TestValidateWithEvidence_TextsReachThePrompt(t *testing.T) {
	extractor := &stubExtractor{texts: map[string]string{
		"DOC-1": "Invoice total $1,180 for plumbing repair.",
	}}
	f := newOrchestratorFixture(t, extractor)

	_, err := f.orch.ValidateWithEvidence(context.Background(), validRequest(), []string{"DOC-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(f.llm.lastPrompt, "Invoice total $1,180") {
		t.Error("expected the extracted evidence in the prompt")
	}
}

func TestValidateWithEvidence_FailedExtractionDegrades(t *testing.T) {
	extractor := &stubExtractor{texts: map[string]string{
		"DOC-1": "Invoice total $1,180 for plumbing repair.",
	}}
	f := newOrchestratorFixture(t, extractor)

	_, err := f.orch.ValidateWithEvidence(context.Background(), validRequest(), []string{"DOC-1", "DOC-MISSING"})
	if err != nil {
		t.Fatalf("a failed extraction must not abort the validation: %v", err)
	}

	if !strings.Contains(f.llm.lastPrompt, "Invoice total $1,180") {
		t.Error("the healthy document must survive a sibling failure")
	}
	if !strings.Contains(f.llm.lastPrompt, extractionFailedPlaceholder) {
		t.Error("expected the placeholder for the failed document")
	}
}

func TestNewValidationOrchestrator_RequiredCollaborators(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	rules, err := ruleset.Default()
	if err != nil {
		t.Fatalf("loading default ruleset: %v", err)
	}
	gen, err := NewDecisionGenerator(f.llm, rules)
	if err != nil {
		t.Fatalf("creating generator: %v", err)
	}
	engine, err := NewBusinessRuleEngine(rules)
	if err != nil {
		t.Fatalf("creating rule engine: %v", err)
	}

	if _, err := NewValidationOrchestrator(nil, f.retriever, gen, engine, f.audit, nil, DefaultOrchestratorConfig()); err == nil {
		t.Error("expected an error for a nil embedder")
	}
	if _, err := NewValidationOrchestrator(f.embedder, f.retriever, gen, engine, nil, nil, DefaultOrchestratorConfig()); err == nil {
		t.Error("expected an error for a nil audit sink")
	}
	// The extractor is an optional capability.
	if _, err := NewValidationOrchestrator(f.embedder, f.retriever, gen, engine, f.audit, nil, DefaultOrchestratorConfig()); err != nil {
		t.Errorf("a nil extractor must be accepted: %v", err)
	}
}

func TestValidateOrchestratorConfig_Defaults(t *testing.T) {
	got := validateOrchestratorConfig(OrchestratorConfig{})
	want := DefaultOrchestratorConfig()
	if got != want {
		t.Errorf("zero config = %+v, want defaults %+v", got, want)
	}

	custom := OrchestratorConfig{
		EmbedTimeout:    time.Second,
		RetrieveTimeout: time.Second,
		GenerateTimeout: time.Second,
		ExtractTimeout:  time.Second,
		AuditTimeout:    time.Second,
	}
	if got := validateOrchestratorConfig(custom); got != custom {
		t.Errorf("valid config changed: %+v", got)
	}
}

func TestValidate_AuditFailureDoesNotSurface(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.audit.err = errors.New("audit store down")

	outcome, err := f.orch.Validate(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("an audit failure must never surface: %v", err)
	}
	if outcome.Decision.Status != StatusCovered {
		t.Errorf("status = %s, want Covered", outcome.Decision.Status)
	}
}

func TestSetRuleEngine_HotSwap(t *testing.T) {
	f := newOrchestratorFixture(t, nil)

	// A stricter override: every decision below 0.99 confidence gets a human.
	strict, err := ruleset.Parse([]byte(`
rules:
  - id: low_confidence_review
    priority: 100
    params:
      min_confidence: 0.99
documentation_tiers:
  - upper_bound: 0
    guidance: "Request documentation appropriate to the claim."
`))
	if err != nil {
		t.Fatalf("parsing strict ruleset: %v", err)
	}
	engine, err := NewBusinessRuleEngine(strict)
	if err != nil {
		t.Fatalf("creating strict engine: %v", err)
	}
	f.orch.SetRuleEngine(engine)

	outcome, err := f.orch.Validate(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Decision.Status != StatusManualReview {
		t.Errorf("status = %s, want Manual Review under the strict rules", outcome.Decision.Status)
	}

	f.orch.SetRuleEngine(nil) // must be a no-op
	if _, err := f.orch.Validate(context.Background(), validRequest()); err != nil {
		t.Fatalf("validation after a nil swap failed: %v", err)
	}
}
