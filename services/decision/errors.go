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
)

// TransportError marks a failure in the mandatory embed/retrieve/generate
// path: the collaborator was unreachable or rejected the call. It aborts
// the current request and is never downgraded into a Manual Review outcome.
//
// Advisory failures (decision parse, citation diagnostics, contradiction
// diagnostics, audit writes) are handled locally and never use this type.
type TransportError struct {
	// Op names the pipeline stage that failed: "embed", "retrieve",
	// or "generate".
	Op string

	// Err is the underlying collaborator error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport checks if an error is a TransportError.
// Handlers use this to map pipeline failures to 502/503 responses instead
// of treating them as validation outcomes.
//
// Example:
//
//	dec, err := orch.Validate(ctx, req)
//	if err != nil {
//	    if decision.IsTransport(err) {
//	        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
//	        return
//	    }
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
//	}
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// InvalidRequestError marks a claim that failed structural validation
// before the pipeline ran. Handlers map it to a 400 response.
type InvalidRequestError struct {
	Err error
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid claim request: %v", e.Err)
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Err
}

// IsInvalidRequest checks if an error is an InvalidRequestError.
func IsInvalidRequest(err error) bool {
	var ie *InvalidRequestError
	return errors.As(err, &ie)
}
