// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decision

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// guardrailExplanation is the fixed explanation for the no-evidence
// guardrail: the generative model is never called on ungrounded input.
const guardrailExplanation = "No relevant policy clauses found for this claim type"

// extractionFailedPlaceholder replaces the text of an evidence document
// whose extraction failed; siblings and the overall request are unaffected.
const extractionFailedPlaceholder = "extraction failed — document unavailable"

// OrchestratorConfig bounds the orchestrator's remote collaborator calls.
type OrchestratorConfig struct {
	// EmbedTimeout bounds the embedding call.
	EmbedTimeout time.Duration

	// RetrieveTimeout bounds the clause retrieval call.
	RetrieveTimeout time.Duration

	// GenerateTimeout bounds the inference call.
	GenerateTimeout time.Duration

	// ExtractTimeout bounds each evidence extraction independently.
	ExtractTimeout time.Duration

	// AuditTimeout bounds the background audit write.
	AuditTimeout time.Duration
}

// DefaultOrchestratorConfig returns production defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		EmbedTimeout:    15 * time.Second,
		RetrieveTimeout: 15 * time.Second,
		GenerateTimeout: 2 * time.Minute,
		ExtractTimeout:  30 * time.Second,
		AuditTimeout:    10 * time.Second,
	}
}

// validateOrchestratorConfig validates and corrects config values.
// Logs warnings for invalid values and applies defaults.
func validateOrchestratorConfig(cfg OrchestratorConfig) OrchestratorConfig {
	defaults := DefaultOrchestratorConfig()
	if cfg.EmbedTimeout <= 0 {
		slog.Warn("Invalid EmbedTimeout config, using default", "default", defaults.EmbedTimeout)
		cfg.EmbedTimeout = defaults.EmbedTimeout
	}
	if cfg.RetrieveTimeout <= 0 {
		slog.Warn("Invalid RetrieveTimeout config, using default", "default", defaults.RetrieveTimeout)
		cfg.RetrieveTimeout = defaults.RetrieveTimeout
	}
	if cfg.GenerateTimeout <= 0 {
		slog.Warn("Invalid GenerateTimeout config, using default", "default", defaults.GenerateTimeout)
		cfg.GenerateTimeout = defaults.GenerateTimeout
	}
	if cfg.ExtractTimeout <= 0 {
		slog.Warn("Invalid ExtractTimeout config, using default", "default", defaults.ExtractTimeout)
		cfg.ExtractTimeout = defaults.ExtractTimeout
	}
	if cfg.AuditTimeout <= 0 {
		slog.Warn("Invalid AuditTimeout config, using default", "default", defaults.AuditTimeout)
		cfg.AuditTimeout = defaults.AuditTimeout
	}
	return cfg
}

// ValidationOutcome is the result of a completed validation: the final
// decision plus the advisory diagnostics computed alongside it. Callers
// use the diagnostics (validator errors, critical contradictions) to force
// human review; the diagnostics never block the decision itself.
type ValidationOutcome struct {
	Decision       ClaimDecision    `json:"decision"`
	Validation     ValidationResult `json:"validation"`
	Contradictions []Contradiction  `json:"contradictions,omitempty"`

	// RetrievedClauses is what the decision was grounded in, for display.
	RetrievedClauses []PolicyClause `json:"retrieved_clauses,omitempty"`
}

// ValidationOrchestrator sequences the decision pipeline: embed the claim
// description, retrieve clauses, apply the no-evidence guardrail, generate
// a draft decision, compute diagnostics, apply the business-rule overlay,
// and write the audit record.
//
// Each invocation is stateless and self-contained: no shared mutable state
// across concurrent validations, no in-engine caching. The rule engine
// pointer is swappable at runtime for configuration hot reload.
type ValidationOrchestrator struct {
	embedder     EmbeddingProvider
	retriever    ClauseRetriever
	generator    *DecisionGenerator
	engine       atomic.Pointer[BusinessRuleEngine]
	validator    *CitationValidator
	contradictor *ContradictionDetector
	auditSink    AuditSink
	extractor    EvidenceExtractor // optional capability, may be nil
	cfg          OrchestratorConfig
}

// NewValidationOrchestrator wires the pipeline. embedder, retriever,
// generator, engine, and auditSink are required. extractor is an optional
// capability: when nil, the evidence path rejects requests instead of
// silently dropping evidence.
func NewValidationOrchestrator(
	embedder EmbeddingProvider,
	retriever ClauseRetriever,
	generator *DecisionGenerator,
	engine *BusinessRuleEngine,
	auditSink AuditSink,
	extractor EvidenceExtractor,
	cfg OrchestratorConfig,
) (*ValidationOrchestrator, error) {
	if embedder == nil || retriever == nil || generator == nil || engine == nil || auditSink == nil {
		return nil, fmt.Errorf("embedder, retriever, generator, engine, and auditSink must not be nil")
	}
	o := &ValidationOrchestrator{
		embedder:     embedder,
		retriever:    retriever,
		generator:    generator,
		validator:    NewCitationValidator(),
		contradictor: NewContradictionDetector(),
		auditSink:    auditSink,
		extractor:    extractor,
		cfg:          validateOrchestratorConfig(cfg),
	}
	o.engine.Store(engine)
	return o, nil
}

// SetRuleEngine atomically swaps the business-rule engine. Used by the
// ruleset hot-reload watcher; in-flight validations keep the engine they
// started with.
func (o *ValidationOrchestrator) SetRuleEngine(engine *BusinessRuleEngine) {
	if engine != nil {
		o.engine.Store(engine)
	}
}

// Validate runs the pipeline for a claim without supporting evidence.
//
// Returns exactly one of: a complete outcome, or a fatal error from the
// mandatory embed/retrieve/generate path.
func (o *ValidationOrchestrator) Validate(ctx context.Context, req ClaimRequest) (*ValidationOutcome, error) {
	return o.validate(ctx, req, nil)
}

// ValidateWithEvidence runs the pipeline with supporting evidence
// documents. Each document ID is resolved to text independently; a failed
// extraction degrades to a placeholder and never aborts the validation.
func (o *ValidationOrchestrator) ValidateWithEvidence(ctx context.Context, req ClaimRequest,
	evidenceDocumentIDs []string) (*ValidationOutcome, error) {

	if o.extractor == nil && len(evidenceDocumentIDs) > 0 {
		return nil, fmt.Errorf("evidence extraction is not configured")
	}
	evidenceTexts := o.extractEvidence(ctx, evidenceDocumentIDs)
	return o.validate(ctx, req, evidenceTexts)
}

func (o *ValidationOrchestrator) validate(ctx context.Context, req ClaimRequest,
	evidenceTexts []string) (*ValidationOutcome, error) {

	ctx, span := decisionTracer.Start(ctx, "ValidationOrchestrator.Validate")
	defer span.End()
	span.SetAttributes(
		attribute.String("claim.policy_type", string(req.PolicyType)),
		attribute.Float64("claim.amount", req.ClaimAmount),
		attribute.Bool("claim.has_evidence", len(evidenceTexts) > 0),
	)

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, &InvalidRequestError{Err: err}
	}

	// Embed the claim description.
	embedCtx, cancelEmbed := context.WithTimeout(ctx, o.cfg.EmbedTimeout)
	vector, err := o.embedder.Embed(embedCtx, req.ClaimDescription)
	cancelEmbed()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return nil, &TransportError{Op: "embed", Err: err}
	}

	// Retrieve clauses scoped by policy type.
	retrieveCtx, cancelRetrieve := context.WithTimeout(ctx, o.cfg.RetrieveTimeout)
	clauses, err := o.retriever.Retrieve(retrieveCtx, vector, req.PolicyType)
	cancelRetrieve()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieve failed")
		return nil, &TransportError{Op: "retrieve", Err: err}
	}
	span.SetAttributes(attribute.Int("clauses.count", len(clauses)))

	// Guardrail: never call the model on ungrounded input.
	if len(clauses) == 0 {
		slog.Info("No clauses retrieved, applying the no-evidence guardrail",
			"policy_number", req.PolicyNumber, "policy_type", req.PolicyType)
		span.SetAttributes(attribute.Bool("decision.guardrail", true))
		dec := guardrailDecision()
		o.recordAudit(ctx, req, dec, clauses)
		return &ValidationOutcome{
			Decision:   dec,
			Validation: ValidationResult{IsValid: true},
		}, nil
	}

	// Generate the draft decision.
	generateCtx, cancelGenerate := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
	draft, err := o.generator.Generate(generateCtx, req, clauses, evidenceTexts)
	cancelGenerate()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return nil, err
	}

	// Advisory diagnostics: computed on the draft, never block the result.
	validation := o.validator.Validate(draft, clauses)
	contradictions := o.contradictor.Detect(req, draft, clauses, evidenceTexts)
	if !validation.IsValid {
		slog.Warn("Citation validation reported errors",
			"policy_number", req.PolicyNumber, "errors", validation.Errors)
	}
	if o.contradictor.HasCriticalContradictions(contradictions) {
		slog.Warn("Critical contradictions detected",
			"policy_number", req.PolicyNumber,
			"summary", o.contradictor.ContradictionSummary(contradictions))
	}
	span.SetAttributes(
		attribute.Int("diagnostics.errors", len(validation.Errors)),
		attribute.Int("diagnostics.contradictions", len(contradictions)),
	)

	// Authoritative adjustment.
	final := o.engine.Load().Apply(draft, req, clauses, len(evidenceTexts) > 0)
	span.SetAttributes(
		attribute.String("decision.status", string(final.Status)),
		attribute.Float64("decision.confidence", final.ConfidenceScore),
	)

	o.recordAudit(ctx, req, final, clauses)
	return &ValidationOutcome{
		Decision:         final,
		Validation:       validation,
		Contradictions:   contradictions,
		RetrievedClauses: clauses,
	}, nil
}

// extractEvidence resolves each document ID to text concurrently with
// independent timeouts. A failed or slow extraction degrades only that
// document's content and never cancels siblings.
func (o *ValidationOrchestrator) extractEvidence(ctx context.Context, documentIDs []string) []string {
	if len(documentIDs) == 0 {
		return nil
	}
	texts := make([]string, len(documentIDs))
	var g errgroup.Group
	for i, id := range documentIDs {
		g.Go(func() error {
			extractCtx, cancel := context.WithTimeout(ctx, o.cfg.ExtractTimeout)
			defer cancel()
			text, err := o.extractor.Extract(extractCtx, id)
			if err != nil {
				slog.Warn("Evidence extraction failed, using placeholder",
					"document_id", id, "error", err)
				texts[i] = extractionFailedPlaceholder
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; failures degrade per document
	return texts
}

// recordAudit writes the audit record in the background, fire and forget.
// Failures are logged and swallowed: a decision must always be returned
// once generated.
func (o *ValidationOrchestrator) recordAudit(ctx context.Context, req ClaimRequest,
	dec ClaimDecision, clauses []PolicyClause) {

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.AuditTimeout)
	go func() {
		defer cancel()
		if err := o.auditSink.Record(auditCtx, req, dec, clauses); err != nil {
			slog.Error("Failed to write the audit record",
				"policy_number", req.PolicyNumber, "error", err)
		}
	}()
}

// guardrailDecision is the fixed decision for the zero-clause guardrail.
func guardrailDecision() ClaimDecision {
	return ClaimDecision{
		Status:            StatusManualReview,
		Explanation:       guardrailExplanation,
		ClauseReferences:  []string{},
		RequiredDocuments: []string{"Policy Document", "Claim Evidence"},
		ConfidenceScore:   0.0,
	}
}
