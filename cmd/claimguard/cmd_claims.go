// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/harborline/claimguard/services/decision"
	"github.com/spf13/cobra"
)

type validatePayload struct {
	PolicyNumber        string   `json:"policy_number"`
	PolicyType          string   `json:"policy_type"`
	ClaimAmount         float64  `json:"claim_amount"`
	ClaimDescription    string   `json:"claim_description"`
	EvidenceDocumentIDs []string `json:"evidence_document_ids,omitempty"`
}

type ingestPayload struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	PolicyType string `json:"policy_type"`
}

type ingestResponse struct {
	Status        string `json:"status"`
	Source        string `json:"source"`
	ClausesStored int    `json:"clauses_stored"`
}

func runValidate(cmd *cobra.Command, args []string) {
	payload := validatePayload{
		PolicyNumber:        claimPolicyNumber,
		PolicyType:          claimPolicyType,
		ClaimAmount:         claimAmount,
		ClaimDescription:    args[0],
		EvidenceDocumentIDs: claimEvidenceIDs,
	}
	jsonBody, _ := json.Marshal(payload)

	url := fmt.Sprintf("%s/v1/claims/validate", getServiceBaseURL())
	logger.Debug("sending validation request", "url", url,
		"evidence_documents", len(claimEvidenceIDs))
	fmt.Printf("Validating a %s claim for %.2f...\n", claimPolicyType, claimAmount)

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Post(url, "application/json", bytes.NewBuffer(jsonBody))
	if err != nil {
		log.Fatalf("Failed to call the claims service: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("The claims service returned an error (Status %d): %s", resp.StatusCode, string(body))
	}

	if validateJSON {
		fmt.Println(string(body))
		return
	}

	var outcome decision.ValidationOutcome
	if err := json.Unmarshal(body, &outcome); err != nil {
		log.Fatalf("Failed to parse the outcome: %v", err)
	}
	printOutcome(&outcome)
}

func printOutcome(outcome *decision.ValidationOutcome) {
	fmt.Println("--- Claim Decision ---")
	fmt.Printf("Status:     %s\n", outcome.Decision.Status)
	fmt.Printf("Confidence: %.2f\n", outcome.Decision.ConfidenceScore)
	fmt.Printf("Explanation: %s\n", outcome.Decision.Explanation)
	if len(outcome.Decision.ClauseReferences) > 0 {
		fmt.Println("Cited clauses:")
		for _, id := range outcome.Decision.ClauseReferences {
			fmt.Printf("  - %s\n", id)
		}
	}
	if len(outcome.Decision.RequiredDocuments) > 0 {
		fmt.Println("Required documents:")
		for _, doc := range outcome.Decision.RequiredDocuments {
			fmt.Printf("  - %s\n", doc)
		}
	}

	if !outcome.Validation.IsValid {
		fmt.Println("\nCitation problems:")
		for _, e := range outcome.Validation.Errors {
			fmt.Printf("  [ERROR] %s\n", e)
		}
	}
	for _, w := range outcome.Validation.Warnings {
		fmt.Printf("  [WARN] %s\n", w)
	}

	if len(outcome.Contradictions) > 0 {
		fmt.Println("\nContradictions:")
		fmt.Println(decision.NewContradictionDetector().ContradictionSummary(outcome.Contradictions))
	}
	fmt.Println("----------------------")
}

func runPolicyIngest(cmd *cobra.Command, args []string) {
	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read the policy document: %v", err)
	}

	source := ingestSource
	if source == "" {
		source = filepath.Base(path)
	}

	payload := ingestPayload{
		Content:    string(content),
		Source:     source,
		PolicyType: ingestPolicyType,
	}
	jsonBody, _ := json.Marshal(payload)

	url := fmt.Sprintf("%s/v1/policies", getServiceBaseURL())
	logger.Debug("sending ingestion request", "url", url, "source", source)
	fmt.Printf("Ingesting %s (%d bytes)...\n", source, len(content))

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Post(url, "application/json", bytes.NewBuffer(jsonBody))
	if err != nil {
		log.Fatalf("Failed to call the claims service: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Ingestion failed (Status %d): %s", resp.StatusCode, string(body))
	}

	var ingResp ingestResponse
	if err := json.Unmarshal(body, &ingResp); err != nil {
		log.Fatalf("Failed to parse the ingestion response: %v", err)
	}
	fmt.Printf("Stored %d clauses from %s\n", ingResp.ClausesStored, ingResp.Source)
}
