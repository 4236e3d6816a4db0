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

// Package model defines the core data structures for the reel-match pipeline.
// This file holds the typed stage errors. Every stage error carries a reason
// discriminant and, where available, the wrapped upstream error so nothing is
// swallowed silently. The HTTPStatus helper maps errors onto the status
// classes the webhook layer reports.
package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Extraction error reasons.
const (
	ReasonNavigationTimeout = "navigation_timeout"
	ReasonNoDescription     = "no_description"
	ReasonRenderFailed      = "render_failed"
)

// Transcription error reasons.
const (
	ReasonDownloadFailed = "download_failed"
	ReasonServiceError   = "service_error"
)

// Search error reasons.
const (
	ReasonNoResults    = "no_results"
	ReasonTimeout      = "timeout"
	ReasonUnconfigured = "unconfigured"
)

// Match error reasons.
const (
	ReasonNoMatchAboveThreshold = "no_match_above_threshold"
)

// ExtractionError is raised by the source extractor. A missing description is
// fatal for the run: a post without extractable text cannot be searched for.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed (%s)", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// TranscriptionError is raised by the speech transcriber and treated as a
// soft failure: the search falls back to the title.
type TranscriptionError struct {
	Reason string
	Err    error
}

func (e *TranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcription failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transcription failed (%s)", e.Reason)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// SearchError is raised by candidate search after its retry budget is spent,
// or immediately when no API credential is configured.
type SearchError struct {
	Reason string
	Err    error
}

func (e *SearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("search failed (%s)", e.Reason)
}

func (e *SearchError) Unwrap() error { return e.Err }

// FindMatchError is raised by the match scorer when no candidate clears the
// acceptance threshold.
type FindMatchError struct {
	Reason string
}

func (e *FindMatchError) Error() string {
	return fmt.Sprintf("match failed (%s)", e.Reason)
}

// Reason extracts the discriminant string from a stage error, or "internal"
// for anything untyped.
func Reason(err error) string {
	var ex *ExtractionError
	if errors.As(err, &ex) {
		return ex.Reason
	}
	var tr *TranscriptionError
	if errors.As(err, &tr) {
		return tr.Reason
	}
	var se *SearchError
	if errors.As(err, &se) {
		return se.Reason
	}
	var fm *FindMatchError
	if errors.As(err, &fm) {
		return fm.Reason
	}
	return "internal"
}

// HTTPStatus classifies a stage error for the HTTP front door: 400 bad
// input, 404 not-found / no results, 500 internal or configuration, 504
// timeout.
func HTTPStatus(err error) int {
	return StatusForReason(Reason(err))
}

// StatusForReason maps a stage-failure reason string onto the HTTP status
// classes the webhook layer reports.
func StatusForReason(reason string) int {
	switch reason {
	case ReasonNavigationTimeout, ReasonTimeout:
		return http.StatusGatewayTimeout
	case ReasonNoResults, ReasonNoMatchAboveThreshold:
		return http.StatusNotFound
	case ReasonNoDescription, ReasonDownloadFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
