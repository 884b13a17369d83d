// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPEmbedder_Embed(t *testing.T) {
	var gotPath string
	var gotBody embeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(embeddingResponse{
			Id:     "emb-1",
			Text:   gotBody.Text,
			Vector: []float32{0.1, 0.2, 0.3},
			Dim:    3,
		})
	}))
	defer server.Close()

	embedder, err := NewHTTPEmbedder(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vector, err := embedder.Embed(context.Background(), "burst pipe damage")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/embed" {
		t.Errorf("path = %s, want /embed", gotPath)
	}
	if gotBody.Text != "burst pipe damage" {
		t.Errorf("request text = %q", gotBody.Text)
	}
	if len(vector) != 3 {
		t.Errorf("vector = %v", vector)
	}
}

func TestHTTPEmbedder_Embed_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	embedder, err := NewHTTPEmbedder(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = embedder.Embed(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "status 503") {
		t.Errorf("expected a status error, got %v", err)
	}
}

func TestHTTPEmbedder_Embed_EmptyVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{Id: "emb-1"})
	}))
	defer server.Close()

	embedder, err := NewHTTPEmbedder(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := embedder.Embed(context.Background(), "x"); err == nil {
		t.Error("expected an error for an empty vector")
	}
}

func TestHTTPEmbedder_BatchEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batch_embed" {
			t.Errorf("path = %s, want /batch_embed", r.URL.Path)
		}
		var req batchEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		vectors := make([][]float32, len(req.Texts))
		for i := range vectors {
			vectors[i] = []float32{float32(i)}
		}
		json.NewEncoder(w).Encode(batchEmbeddingResponse{Vectors: vectors, Dim: 1})
	}))
	defer server.Close()

	embedder, err := NewHTTPEmbedder(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vectors, err := embedder.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 {
		t.Errorf("got %d vectors, want 3", len(vectors))
	}
}

func TestHTTPEmbedder_BatchEmbed_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(batchEmbeddingResponse{Vectors: [][]float32{{0.1}}})
	}))
	defer server.Close()

	embedder, err := NewHTTPEmbedder(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = embedder.BatchEmbed(context.Background(), []string{"a", "b"})
	if err == nil || !strings.Contains(err.Error(), "1 vectors for 2 texts") {
		t.Errorf("expected a count-mismatch error, got %v", err)
	}
}

func TestNewHTTPEmbedder_EmptyURL(t *testing.T) {
	if _, err := NewHTTPEmbedder(""); err == nil {
		t.Error("expected an error for an empty URL")
	}
}

func TestNewHTTPEmbedder_TrimsTrailingSlash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("path = %s, want /embed", r.URL.Path)
		}
		json.NewEncoder(w).Encode(embeddingResponse{Vector: []float32{0.5}})
	}))
	defer server.Close()

	embedder, err := NewHTTPEmbedder(server.URL + "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := embedder.Embed(context.Background(), "x"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
