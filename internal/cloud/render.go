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
// the pipeline. This file implements the client for the page-render backend:
// a headless-browser service that loads a JS-heavy page and returns the
// final DOM serialization, and that can probe a video URL for its duration
// by loading media metadata only. Each call owns exactly one browser
// session-equivalent on the backend; the session is scoped to the request
// and released by the backend when the request ends.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNavigationTimeout reports that a page navigation exceeded its budget.
// The source extractor maps it to a fatal extraction error.
var ErrNavigationTimeout = errors.New("render: navigation timeout")

// RenderClient is the boundary to the page-render backend. Tests substitute
// a fake; production uses HTTPRenderClient.
type RenderClient interface {
	// RenderPage navigates to url, waits for network-mostly-idle plus the
	// configured settle delay, and returns the rendered HTML.
	RenderPage(ctx context.Context, url string) (string, error)

	// ProbeDuration loads only the media metadata for videoURL and returns
	// the duration in seconds, or nil when the metadata never arrived within
	// the probe timeout or could not be decoded.
	ProbeDuration(ctx context.Context, videoURL string) (*float64, error)
}

// HTTPRenderClient talks to a render backend over its JSON contract.
type HTTPRenderClient struct {
	cfg        *RenderBackend
	httpClient *http.Client
}

// NewHTTPRenderClient creates a render client from configuration. The HTTP
// client carries no global timeout; per-call budgets come from the request
// contexts so navigation and probe can differ.
func NewHTTPRenderClient(cfg *RenderBackend) *HTTPRenderClient {
	return &HTTPRenderClient{cfg: cfg, httpClient: &http.Client{}}
}

type renderPageRequest struct {
	URL            string `json:"url"`
	UserAgent      string `json:"user_agent,omitempty"`
	ViewportWidth  int    `json:"viewport_width,omitempty"`
	ViewportHeight int    `json:"viewport_height,omitempty"`
	SettleDelayMs  int    `json:"settle_delay_ms"`
	TimeoutMs      int    `json:"timeout_ms"`
}

type renderPageResponse struct {
	HTML string `json:"html"`
}

type probeRequest struct {
	URL       string `json:"url"`
	TimeoutMs int    `json:"timeout_ms"`
}

type probeResponse struct {
	// Duration is null when the metadata-loaded event lost the race against
	// the probe deadline or the browser could not decode the container.
	Duration *float64 `json:"duration"`
}

// RenderPage implements RenderClient against the backend's /content
// endpoint.
func (r *HTTPRenderClient) RenderPage(ctx context.Context, url string) (string, error) {
	timeout := time.Duration(r.cfg.NavigationTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := &renderPageRequest{
		URL:            url,
		UserAgent:      r.cfg.UserAgent,
		ViewportWidth:  r.cfg.ViewportWidth,
		ViewportHeight: r.cfg.ViewportHeight,
		SettleDelayMs:  r.cfg.SettleDelaySeconds * 1000,
		TimeoutMs:      int(timeout / time.Millisecond),
	}

	var out renderPageResponse
	if err := r.post(ctx, "/content", body, &out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrNavigationTimeout
		}
		return "", err
	}
	return out.HTML, nil
}

// ProbeDuration implements RenderClient against the backend's /probe
// endpoint. The backend races the media metadata-loaded event against the
// probe timeout and reports null on a lost race.
func (r *HTTPRenderClient) ProbeDuration(ctx context.Context, videoURL string) (*float64, error) {
	timeout := time.Duration(r.cfg.ProbeTimeoutSeconds) * time.Second
	// Local budget slightly above the backend's own so the null answer can
	// make it back over the wire.
	ctx, cancel := context.WithTimeout(ctx, timeout+2*time.Second)
	defer cancel()

	body := &probeRequest{URL: videoURL, TimeoutMs: int(timeout / time.Millisecond)}
	var out probeResponse
	if err := r.post(ctx, "/probe", body, &out); err != nil {
		return nil, err
	}
	return out.Duration, nil
}

func (r *HTTPRenderClient) post(ctx context.Context, path string, in interface{}, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(r.cfg.APIKey) > 0 {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("render backend %s returned %d: %s", path, resp.StatusCode, string(snippet))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
