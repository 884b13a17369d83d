// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

// RateLimitedClient decorates an LLMClient with a token-bucket QPS cap.
// Shared inference backends fall over under burst load from concurrent
// validations; the limiter queues callers instead, honoring their contexts.
type RateLimitedClient struct {
	inner   LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner with a limiter allowing qps requests per
// second with the given burst. qps <= 0 disables limiting and returns inner
// unchanged.
func NewRateLimitedClient(inner LLMClient, qps float64, burst int) LLMClient {
	if qps <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	slog.Info("Rate limiting inference calls", "qps", qps, "burst", burst)
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
	}
}

// Generate implements the LLMClient interface. It blocks until the limiter
// grants a slot or the context is done.
func (r *RateLimitedClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait canceled: %w", err)
	}
	return r.inner.Generate(ctx, prompt, params)
}
