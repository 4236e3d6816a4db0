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

// Package test provides shared helpers and mock data for the test suite.
// This file holds in-memory fakes for the external backend interfaces so
// pipeline stages can be exercised without network access.
package test

import (
	"context"
	"encoding/json"

	"github.com/mediareel/go-reel-match/internal/cloud"
	"google.golang.org/genai"
)

// FakeRenderClient serves canned HTML keyed by URL and canned probe answers
// keyed by video URL.
type FakeRenderClient struct {
	Pages     map[string]string
	Durations map[string]float64
	RenderErr error
	ProbeErr  error

	RenderCalls []string
	ProbeCalls  []string
}

func NewFakeRenderClient() *FakeRenderClient {
	return &FakeRenderClient{
		Pages:     make(map[string]string),
		Durations: make(map[string]float64),
	}
}

func (f *FakeRenderClient) RenderPage(_ context.Context, url string) (string, error) {
	f.RenderCalls = append(f.RenderCalls, url)
	if f.RenderErr != nil {
		return "", f.RenderErr
	}
	return f.Pages[url], nil
}

func (f *FakeRenderClient) ProbeDuration(_ context.Context, videoURL string) (*float64, error) {
	f.ProbeCalls = append(f.ProbeCalls, videoURL)
	if f.ProbeErr != nil {
		return nil, f.ProbeErr
	}
	if d, ok := f.Durations[videoURL]; ok {
		return &d, nil
	}
	return nil, nil
}

// FakeSearchClient returns one scripted response per call: Responses[0] for
// the first call, Responses[1] for the second, and so on, repeating the last
// entry when the script runs out. Err, when set, fails every call.
type FakeSearchClient struct {
	Responses    [][]cloud.RawSearchResult
	Err          error
	Unconfigured bool

	Queries []string
}

func (f *FakeSearchClient) Configured() bool {
	return !f.Unconfigured
}

func (f *FakeSearchClient) Search(_ context.Context, query string, _ int) ([]cloud.RawSearchResult, json.RawMessage, error) {
	call := len(f.Queries)
	f.Queries = append(f.Queries, query)
	if f.Err != nil {
		return nil, nil, f.Err
	}
	if len(f.Responses) == 0 {
		return nil, json.RawMessage(`{"organic":[]}`), nil
	}
	if call >= len(f.Responses) {
		call = len(f.Responses) - 1
	}
	return f.Responses[call], json.RawMessage(`{"organic":[]}`), nil
}

// FakeTextGenerator returns one scripted model answer per call: Responses[0]
// for the first prompt, Responses[1] for the second, and so on, repeating the
// last entry when the script runs out. Err, when set, fails every call.
type FakeTextGenerator struct {
	Responses []string
	Err       error

	Prompts []string
}

func (f *FakeTextGenerator) GenerateText(_ context.Context, prompt string) (*genai.GenerateContentResponse, error) {
	call := len(f.Prompts)
	f.Prompts = append(f.Prompts, prompt)
	if f.Err != nil {
		return nil, f.Err
	}
	text := ""
	if len(f.Responses) > 0 {
		if call >= len(f.Responses) {
			call = len(f.Responses) - 1
		}
		text = f.Responses[call]
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}, nil
}

// FakeSpeechClient returns a fixed transcript for every payload.
type FakeSpeechClient struct {
	Text string
	Err  error

	Payloads [][]byte
}

func (f *FakeSpeechClient) TranscribeBytes(_ context.Context, data []byte, _ string) (string, error) {
	f.Payloads = append(f.Payloads, data)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Text, nil
}

func (f *FakeSpeechClient) Close() error { return nil }
