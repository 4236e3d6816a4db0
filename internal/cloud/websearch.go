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
// the pipeline. This file implements the client for the web-search backend.
// One request returns a ranked list of organic results; each row keeps its
// unprocessed upstream JSON next to the parsed fields so the pipeline can
// pass it through for diagnostics.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SearchStatusError reports a non-2xx response from the search backend. The
// candidate-search retry loop treats 5xx as transient and 4xx as permanent.
type SearchStatusError struct {
	StatusCode int
	Body       string
}

func (e *SearchStatusError) Error() string {
	return fmt.Sprintf("search backend returned %d: %s", e.StatusCode, e.Body)
}

// RawSearchResult is one organic result row as delivered by the backend,
// before pipeline normalization. Duration and Thumbnail are opportunistic
// rich extensions that only some engines populate.
type RawSearchResult struct {
	Title              string          `json:"title"`
	Link               string          `json:"link"`
	Snippet            string          `json:"snippet"`
	Description        string          `json:"description"`
	ChannelDescription string          `json:"channel_description"`
	Position           int             `json:"position"`
	Duration           string          `json:"duration"`
	Thumbnail          string          `json:"thumbnail"`
	Raw                json.RawMessage `json:"-"`
}

// SearchClient is the boundary to the web-search backend. Tests substitute a
// fake; production uses HTTPSearchClient.
type SearchClient interface {
	// Search submits the query verbatim and returns the organic rows plus
	// the raw response payload for the debug trace. Any site restriction is
	// part of the query string itself.
	Search(ctx context.Context, query string, maxResults int) ([]RawSearchResult, json.RawMessage, error)

	// Configured reports whether an API credential is present. Searching
	// without one is a fatal configuration error, never retried.
	Configured() bool
}

// HTTPSearchClient talks to a search backend over its JSON contract.
type HTTPSearchClient struct {
	cfg        *SearchBackend
	httpClient *http.Client
}

// NewHTTPSearchClient creates a search client from configuration.
func NewHTTPSearchClient(cfg *SearchBackend) *HTTPSearchClient {
	return &HTTPSearchClient{cfg: cfg, httpClient: &http.Client{}}
}

func (s *HTTPSearchClient) Configured() bool {
	return len(s.cfg.APIKey) > 0
}

type searchRequest struct {
	Query  string `json:"q"`
	Engine string `json:"engine,omitempty"`
	Num    int    `json:"num,omitempty"`
}

type searchResponse struct {
	Organic []json.RawMessage `json:"organic"`
}

// Search implements SearchClient. The request timeout comes from
// configuration (the caller's context may carry a larger budget spanning
// retries).
func (s *HTTPSearchClient) Search(ctx context.Context, query string, maxResults int) ([]RawSearchResult, json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	payload, err := json.Marshal(&searchRequest{Query: query, Engine: s.cfg.Engine, Num: maxResults})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, nil, &SearchStatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]RawSearchResult, 0, len(parsed.Organic))
	for i, raw := range parsed.Organic {
		var row RawSearchResult
		if err := json.Unmarshal(raw, &row); err != nil {
			// A malformed row is dropped, not fatal for the response.
			continue
		}
		if row.Position == 0 {
			row.Position = i + 1
		}
		row.Raw = raw
		results = append(results, row)
	}
	return results, body, nil
}
