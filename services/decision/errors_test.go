// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decision

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransportError(t *testing.T) {
	underlying := errors.New("connection refused")
	err := &TransportError{Op: "embed", Err: underlying}

	if got := err.Error(); got != "embed failed: connection refused" {
		t.Errorf("message = %q", got)
	}
	if !errors.Is(err, underlying) {
		t.Error("expected Unwrap to expose the underlying error")
	}
	if !IsTransport(err) {
		t.Error("expected IsTransport to match")
	}
	if !IsTransport(fmt.Errorf("wrapped: %w", err)) {
		t.Error("expected IsTransport to unwrap")
	}
	if IsTransport(underlying) {
		t.Error("a plain error is not a transport error")
	}
	if IsTransport(nil) {
		t.Error("nil is not a transport error")
	}
}

func TestInvalidRequestError(t *testing.T) {
	underlying := errors.New("PolicyNumber is required")
	err := &InvalidRequestError{Err: underlying}

	if got := err.Error(); got != "invalid claim request: PolicyNumber is required" {
		t.Errorf("message = %q", got)
	}
	if !errors.Is(err, underlying) {
		t.Error("expected Unwrap to expose the underlying error")
	}
	if !IsInvalidRequest(fmt.Errorf("wrapped: %w", err)) {
		t.Error("expected IsInvalidRequest to unwrap")
	}
	if IsInvalidRequest(underlying) || IsInvalidRequest(nil) {
		t.Error("only InvalidRequestError values match")
	}
	if IsTransport(err) || IsInvalidRequest(&TransportError{Op: "embed", Err: underlying}) {
		t.Error("the two error kinds must not cross-match")
	}
}
