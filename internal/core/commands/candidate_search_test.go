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

// Tests for the candidate search stage: query truncation, the nested retry
// loops with their recorded pacing, error classification, and the no-query
// short circuit.
package commands

import (
	goctx "context"
	"strings"
	"testing"
	"time"

	"github.com/mediareel/go-reel-match/internal/cloud"
	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
	test "github.com/mediareel/go-reel-match/internal/testutil"
	"github.com/stretchr/testify/assert"
)

// newRunContext builds a chain context carrying a fresh run, the way the
// trigger reader would have left it.
func newRunContext(run *model.PipelineRun) cor.Context {
	context := cor.NewBaseContext()
	context.SetContext(goctx.Background())
	context.Add(GetRunParamName(), run)
	return context
}

// recordedSleeper captures retry pacing instead of actually waiting.
type recordedSleeper struct {
	delays []time.Duration
}

func (r *recordedSleeper) sleep(d time.Duration) {
	r.delays = append(r.delays, d)
}

type timeoutError struct{}

func (timeoutError) Error() string { return "request timed out" }
func (timeoutError) Timeout() bool { return true }

func TestTruncateQueryShortQueryUnchanged(t *testing.T) {
	assert.Equal(t, "sunset over the bay", truncateQuery("sunset over the bay"))
	exactly := strings.Repeat("x", 100)
	assert.Equal(t, exactly, truncateQuery(exactly))
}

func TestTruncateQueryCompletesStraddlingWord(t *testing.T) {
	// 90 chars, a space, then a 14-char word: 105 total with only 5 chars
	// past the cap, well within the slack, so the word is completed.
	query := strings.Repeat("x", 90) + " " + strings.Repeat("y", 14)
	assert.Equal(t, query, truncateQuery(query))
}

func TestTruncateQueryDropsOverlongWord(t *testing.T) {
	// The word at the cap runs 30 chars past it, beyond the slack, so the
	// cut backs up to the previous word boundary.
	query := strings.Repeat("x", 90) + " " + strings.Repeat("y", 130)
	assert.Equal(t, strings.Repeat("x", 90), truncateQuery(query))
}

func TestTruncateQueryCleanBoundaryAtCap(t *testing.T) {
	// Character 101 is a space: the first 100 chars are already a full word.
	query := strings.Repeat("x", 100) + " more"
	assert.Equal(t, strings.Repeat("x", 100), truncateQuery(query))
}

func TestCandidateSearchNoQueryShortCircuitsToDone(t *testing.T) {
	search := &test.FakeSearchClient{}
	command := NewCandidateSearch("search-candidates", search, "instagram.com", 5)

	run := model.NewPipelineRun("run-1", "https://www.instagram.com/reel/abc/")
	run.Source = &model.SourceContent{SourceURL: run.SourceURL}
	context := newRunContext(run)

	command.Execute(context)

	assert.Equal(t, model.StateDone, run.State)
	assert.Nil(t, run.Error)
	assert.Empty(t, search.Queries)
}

func TestCandidateSearchUnconfiguredIsFatal(t *testing.T) {
	search := &test.FakeSearchClient{Unconfigured: true}
	command := NewCandidateSearch("search-candidates", search, "instagram.com", 5)

	run := model.NewPipelineRun("run-1", "https://www.instagram.com/reel/abc/")
	title := "Sunset reel"
	run.Source = &model.SourceContent{Title: &title}
	context := newRunContext(run)

	command.Execute(context)

	assert.True(t, context.HasErrors())
	assert.Equal(t, model.StateErrored, run.State)
	if assert.NotNil(t, run.Error) {
		assert.Equal(t, model.ReasonUnconfigured, run.Error.Reason)
	}
}

func TestCandidateSearchAppendsSiteFilter(t *testing.T) {
	search := &test.FakeSearchClient{
		Responses: [][]cloud.RawSearchResult{{{Title: "Sunset reel", Link: "https://www.instagram.com/p/1/"}}},
	}
	command := NewCandidateSearch("search-candidates", search, "instagram.com", 5)

	run := model.NewPipelineRun("run-1", "https://www.instagram.com/reel/abc/")
	title := "Sunset reel"
	run.Source = &model.SourceContent{Title: &title}
	context := newRunContext(run)

	command.Execute(context)

	if assert.Len(t, search.Queries, 1) {
		assert.Equal(t, "Sunset reel site:instagram.com", search.Queries[0])
	}
	assert.Equal(t, "Sunset reel site:instagram.com", run.Debug.SearchQuery)
	if assert.Len(t, run.Candidates, 1) {
		assert.Equal(t, "https://www.instagram.com/p/1/", run.Candidates[0].URL)
	}
	assert.Nil(t, run.Error)
}

func TestCandidateSearchRetriesEmptyCompletions(t *testing.T) {
	// Both outer attempts complete with zero rows: two requests, a single 2s
	// pause between them, and a no_results soft failure at the end.
	search := &test.FakeSearchClient{}
	sleeper := &recordedSleeper{}
	command := NewCandidateSearch("search-candidates", search, "instagram.com", 5)
	command.sleep = sleeper.sleep

	run := model.NewPipelineRun("run-1", "https://www.instagram.com/reel/abc/")
	title := "Sunset reel"
	run.Source = &model.SourceContent{Title: &title}
	context := newRunContext(run)

	command.Execute(context)

	assert.Len(t, search.Queries, 2)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.delays)
	assert.Nil(t, run.Error)
	if assert.Len(t, run.Debug.Failures, 1) {
		assert.Equal(t, model.ReasonNoResults, run.Debug.Failures[0].Reason)
	}
	assert.Empty(t, run.Candidates)
}

func TestCandidateSearchBacksOffOnTimeouts(t *testing.T) {
	// Every request times out: three inner attempts per outer attempt with
	// 1s/2s pauses, plus the 2s outer pause, and a timeout classification.
	search := &test.FakeSearchClient{Err: timeoutError{}}
	sleeper := &recordedSleeper{}
	command := NewCandidateSearch("search-candidates", search, "instagram.com", 5)
	command.sleep = sleeper.sleep

	run := model.NewPipelineRun("run-1", "https://www.instagram.com/reel/abc/")
	title := "Sunset reel"
	run.Source = &model.SourceContent{Title: &title}
	context := newRunContext(run)

	command.Execute(context)

	assert.Len(t, search.Queries, 6)
	expected := []time.Duration{
		time.Second, 2 * time.Second, // first outer attempt
		2 * time.Second,              // outer pause
		time.Second, 2 * time.Second, // second outer attempt
	}
	assert.Equal(t, expected, sleeper.delays)
	if assert.Len(t, run.Debug.Failures, 1) {
		assert.Equal(t, model.ReasonTimeout, run.Debug.Failures[0].Reason)
	}
}

func TestCandidateSearchClientErrorsArePermanent(t *testing.T) {
	// A 4xx never retries within an outer attempt: one request per outer
	// attempt and only the outer pause in between.
	search := &test.FakeSearchClient{Err: &cloud.SearchStatusError{StatusCode: 403, Body: "forbidden"}}
	sleeper := &recordedSleeper{}
	command := NewCandidateSearch("search-candidates", search, "instagram.com", 5)
	command.sleep = sleeper.sleep

	run := model.NewPipelineRun("run-1", "https://www.instagram.com/reel/abc/")
	title := "Sunset reel"
	run.Source = &model.SourceContent{Title: &title}
	context := newRunContext(run)

	command.Execute(context)

	assert.Len(t, search.Queries, 2)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.delays)
	if assert.Len(t, run.Debug.Failures, 1) {
		assert.Equal(t, model.ReasonNoResults, run.Debug.Failures[0].Reason)
	}
}

func TestNormalizeCandidatesPicksRichestSnippet(t *testing.T) {
	rows := []cloud.RawSearchResult{
		{Title: "Row one", Link: "https://example.com/1", ChannelDescription: "channel text", Snippet: "snippet text"},
		{Title: "Row two", Link: "https://example.com/2", Snippet: "snippet text"},
		{Title: "Row three", Link: "https://example.com/3"},
	}

	candidates := normalizeCandidates(rows, 5)

	if assert.Len(t, candidates, 3) {
		assert.Equal(t, "channel text", candidates[0].Snippet)
		assert.Equal(t, "snippet text", candidates[1].Snippet)
		assert.Equal(t, "Row three", candidates[2].Snippet)
	}
}

func TestNormalizeCandidatesHonorsLimit(t *testing.T) {
	duration := "1:00"
	rows := make([]cloud.RawSearchResult, 0, 8)
	for i := 0; i < 8; i++ {
		rows = append(rows, cloud.RawSearchResult{Title: "Row", Link: "https://example.com/", Duration: duration})
	}

	candidates := normalizeCandidates(rows, 5)

	assert.Len(t, candidates, 5)
	if assert.NotNil(t, candidates[0].DurationText) {
		assert.Equal(t, "1:00", *candidates[0].DurationText)
	}
}
