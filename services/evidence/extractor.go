// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package evidence fetches the extracted text of supporting documents
// from the document-extraction service.
package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("claimguard.evidence")

// ExtractionError reports a failed document extraction. The orchestrator
// degrades these to a placeholder rather than failing the validation.
type ExtractionError struct {
	DocumentID string
	StatusCode int
	Err        error
}

func (e *ExtractionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("extraction of document %q failed with status %d", e.DocumentID, e.StatusCode)
	}
	return fmt.Sprintf("extraction of document %q failed: %v", e.DocumentID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsExtraction reports whether err is an ExtractionError.
func IsExtraction(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

type extractRequest struct {
	DocumentID string `json:"document_id"`
}

type extractResponse struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

// HTTPExtractor implements decision.EvidenceExtractor against the
// extraction service's REST API.
type HTTPExtractor struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPExtractor creates an extractor client for the given base URL.
func NewHTTPExtractor(baseURL string) *HTTPExtractor {
	return &HTTPExtractor{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
	}
}

// Extract fetches the extracted text of one document.
func (x *HTTPExtractor) Extract(ctx context.Context, documentID string) (string, error) {
	ctx, span := tracer.Start(ctx, "HTTPExtractor.Extract")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", documentID))

	if documentID == "" {
		return "", &ExtractionError{DocumentID: documentID, Err: errors.New("document id is empty")}
	}

	payload, err := json.Marshal(extractRequest{DocumentID: documentID})
	if err != nil {
		return "", &ExtractionError{DocumentID: documentID, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		x.baseURL+"/extract", bytes.NewBuffer(payload))
	if err != nil {
		return "", &ExtractionError{DocumentID: documentID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "extraction request failed")
		return "", &ExtractionError{DocumentID: documentID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, "extraction service returned an error")
		return "", &ExtractionError{DocumentID: documentID, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ExtractionError{DocumentID: documentID, Err: err}
	}

	var out extractResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &ExtractionError{DocumentID: documentID, Err: err}
	}
	if out.Text == "" {
		return "", &ExtractionError{DocumentID: documentID, Err: errors.New("extraction returned no text")}
	}
	return out.Text, nil
}
