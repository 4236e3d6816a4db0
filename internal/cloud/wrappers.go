// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud provides the configuration and external-backend clients for
// the pipeline. This file decorates the generative model client with a rate
// limiter and a bounded retry, so concurrent pipeline runs cannot blow
// through the model quota and transient failures do not surface as stage
// errors.
package cloud

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// TextGenerator is the narrow model boundary the pipeline commands depend
// on. QuotaAwareGenerativeAIModel is the production implementation; tests
// substitute an in-memory fake the same way they do for the render, search,
// and speech clients.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error)
}

// QuotaAwareGenerativeAIModel wraps a configured generative model with a
// token-bucket rate limiter. All language-model traffic in the pipeline goes
// through this wrapper.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter
}

// NewQuotaAwareModel wraps the model configuration with a limiter allowing a
// burst of requestsPerSecond and a steady refill of one token per second.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, handle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             handle,
		RateLimit:               rate.NewLimiter(rate.Every(time.Second/1), requestsPerSecond),
	}
}

// GenerateContent blocks until the limiter grants a token, then executes the
// request. A failed call is retried up to three times with a doubling delay.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (resp *genai.GenerateContentResponse, err error) {
	backoff := time.Second
	for attempt := 0; attempt <= 3; attempt++ {
		if err = q.RateLimit.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err = q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
		if err == nil {
			return resp, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("failed generation on max retries: %w", err)
}

// GenerateText is a convenience wrapper for single text prompts.
func (q *QuotaAwareGenerativeAIModel) GenerateText(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error) {
	return q.GenerateContent(ctx, genai.Text(prompt))
}
