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
// This file holds the in-memory objects that flow through a single pipeline
// run: the extracted source content, the probed duration, the transcript, the
// search candidates with their scores, and the aggregate PipelineRun that the
// orchestrator assembles and returns. A PipelineRun is never mutated after
// the orchestrator hands it back to the caller.
package model

import (
	"encoding/json"
	"time"
)

// RunState identifies the orchestrator's position in the pipeline state
// machine. States advance strictly forward; Errored is terminal and reachable
// from any step that raises a fatal error.
type RunState string

const (
	StateExtracting             RunState = "extracting"
	StateProbingAndTranscribing RunState = "probing_and_transcribing"
	StateSearching              RunState = "searching"
	StateScoring                RunState = "scoring"
	StateReCrawlingMatch        RunState = "recrawling_match"
	StateExtractingEntities     RunState = "extracting_entities"
	StateDone                   RunState = "done"
	StateErrored                RunState = "errored"
)

// ReelTrigger is the incoming submission payload, either the body of a
// webhook POST or the data of a Pub/Sub message on the reel topic.
type ReelTrigger struct {
	SourceURL string `json:"source_url"`
}

// SourceContent is the result of extracting a single post. Nullable fields
// use pointers so the JSON output distinguishes "absent" from "empty".
// Title and description have HTML entities decoded to literal characters and
// may be the span between the first pair of caption quote markers.
type SourceContent struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Author      *string `json:"author"`
	VideoURL    *string `json:"video_url"`
	SourceURL   string  `json:"source_url"`
}

// MediaDuration is the best-effort probe result for a direct video URL.
// It is derived per run and not stored beyond it.
type MediaDuration struct {
	VideoURL string  `json:"video_url"`
	Seconds  float64 `json:"seconds"`
}

// Transcript is the speech-to-text result for a video. Text may be the empty
// string when speech exists but nothing was recognized; an absent transcript
// is represented by a nil *Transcript on the run.
type Transcript struct {
	VideoURL string `json:"video_url"`
	Text     string `json:"text"`
}

// SearchCandidate is one normalized search-result row. Raw preserves the
// unprocessed upstream record for diagnostics and carries no contract beyond
// pass-through; downstream code must not depend on its shape.
type SearchCandidate struct {
	Title        string          `json:"title"`
	URL          string          `json:"url"`
	Snippet      string          `json:"snippet"`
	Position     int             `json:"position"`
	DurationText *string         `json:"duration_text,omitempty"`
	ThumbnailURL *string         `json:"thumbnail_url,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// MatchResult is a SearchCandidate augmented with its similarity scores, all
// in [0,1]. MatchScore is always the fixed weighted sum
// 0.6*DurationScore + 0.4*TitleScore; a component that cannot be computed
// contributes 0, its weight is not redistributed.
type MatchResult struct {
	SearchCandidate
	DurationScore float64 `json:"duration_score"`
	TitleScore    float64 `json:"title_score"`
	MatchScore    float64 `json:"match_score"`
}

// EntityType classifies an extracted entity.
type EntityType string

const (
	EntityTypeRestaurant EntityType = "restaurant"
	EntityTypeProduct    EntityType = "product"
	EntityTypePlace      EntityType = "place"
	EntityTypeService    EntityType = "service"
	EntityTypeOther      EntityType = "other"
)

// EntityURL is one resource link attached to an entity during enrichment.
type EntityURL struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
}

// Entity is a named real-world thing mentioned in the post's content.
// URLs are populated by a separate per-entity enrichment pass; an entity
// whose enrichment fails keeps its original url-less form.
type Entity struct {
	Name        string      `json:"name"`
	Type        EntityType  `json:"type"`
	Description string      `json:"description"`
	Reason      string      `json:"reason"`
	URLs        []EntityURL `json:"urls"`
}

// EntityExtractionResult captures the full language-model exchange. When the
// response does not parse as JSON, Entities stays nil and the raw Response is
// preserved for diagnostics; that is not treated as a hard error.
type EntityExtractionResult struct {
	Success  bool     `json:"success"`
	Entities []Entity `json:"entities,omitempty"`
	Prompt   string   `json:"prompt"`
	Response string   `json:"response"`
	Error    string   `json:"error,omitempty"`
}

// StageFailure records a non-fatal (or terminal) failure of a single stage so
// the final output documents what was attempted and what came back empty.
type StageFailure struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// DebugTrace is the parallel sub-tree of raw intermediate data carried next
// to the result. Nothing in here is part of the result contract.
type DebugTrace struct {
	RenderedHTMLBytes  int                     `json:"rendered_html_bytes,omitempty"`
	SearchQuery        string                  `json:"search_query,omitempty"`
	RawSearchResponse  json.RawMessage         `json:"raw_search_response,omitempty"`
	EntityExtraction   *EntityExtractionResult `json:"entity_extraction,omitempty"`
	TranscriptionBytes int                     `json:"transcription_bytes,omitempty"`
	ArchiveObject      string                  `json:"archive_object,omitempty"`
	Failures           []StageFailure          `json:"failures,omitempty"`
}

// PipelineRun is the aggregate produced once per submission. The orchestrator
// guarantees it always returns one of these, never a bare error: fatal stage
// errors are mapped into the Error field alongside whatever partial data was
// gathered before the failure point.
type PipelineRun struct {
	ID          string             `json:"id"`
	State       RunState           `json:"state"`
	SourceURL   string             `json:"source_url"`
	Source      *SourceContent     `json:"source,omitempty"`
	Duration    *MediaDuration     `json:"video_duration,omitempty"`
	Transcript  *Transcript        `json:"video_transcription,omitempty"`
	Candidates  []*SearchCandidate `json:"candidates,omitempty"`
	BestMatch   *MatchResult       `json:"best_match,omitempty"`
	MatchSource *SourceContent     `json:"match_source,omitempty"`
	Entities    []Entity           `json:"entities,omitempty"`
	Error       *StageFailure      `json:"error,omitempty"`
	Debug       *DebugTrace        `json:"debug"`
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt time.Time          `json:"completed_at,omitempty"`
}

// NewPipelineRun creates a run in its initial state with an empty debug trace.
func NewPipelineRun(id string, sourceURL string) *PipelineRun {
	return &PipelineRun{
		ID:        id,
		State:     StateExtracting,
		SourceURL: sourceURL,
		Debug:     &DebugTrace{},
		CreatedAt: time.Now().UTC(),
	}
}

// RecordFailure appends a soft failure for a stage to the debug trace.
func (r *PipelineRun) RecordFailure(stage string, reason string, detail string) {
	r.Debug.Failures = append(r.Debug.Failures, StageFailure{Stage: stage, Reason: reason, Detail: detail})
}

// Fail marks the run terminally errored with the fatal stage failure.
func (r *PipelineRun) Fail(stage string, reason string, detail string) {
	r.State = StateErrored
	r.Error = &StageFailure{Stage: stage, Reason: reason, Detail: detail}
}

// SearchQuery selects the text used for candidate search: transcript text is
// preferred over the title when both exist. An empty return means no search
// can be performed and the run completes as a partial result.
func (r *PipelineRun) SearchQuery() string {
	if r.Transcript != nil && len(r.Transcript.Text) > 0 {
		return r.Transcript.Text
	}
	if r.Source != nil && r.Source.Title != nil {
		return *r.Source.Title
	}
	return ""
}
