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

// Package commands provides the concrete pipeline stages of the reel-match
// workflow. This file defines the candidate search stage: the run's query
// text (transcript preferred, else title) is truncated at a word boundary,
// restricted to the target site, and submitted through a two-level retry
// policy. An outer loop retries completed-but-empty responses; an inner loop
// retries network timeouts and 5xx answers with exponential backoff.
package commands

import (
	goctx "context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/mediareel/go-reel-match/internal/cloud"
	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
)

const (
	// maxQueryLength caps the free-text query submitted to the backend.
	maxQueryLength = 100
	// wordCompletionSlack is how far past the cap a word may extend and
	// still be completed rather than dropped.
	wordCompletionSlack = 20

	outerSearchAttempts = 2
	innerSearchAttempts = 3
	outerRetryDelay     = 2 * time.Second
	innerRetryBaseDelay = 1 * time.Second

	maxCandidates = 5
)

// CandidateSearch queries the web for posts that could match the reel.
type CandidateSearch struct {
	cor.BaseCommand
	search     cloud.SearchClient
	siteFilter string
	maxResults int

	// sleep is swapped for a recorder in tests so retry pacing is observable
	// without real delays.
	sleep func(time.Duration)
}

// NewCandidateSearch is the constructor for the CandidateSearch command.
func NewCandidateSearch(name string, search cloud.SearchClient, siteFilter string, maxResults int) *CandidateSearch {
	if maxResults <= 0 || maxResults > maxCandidates {
		maxResults = maxCandidates
	}
	return &CandidateSearch{
		BaseCommand: *cor.NewBaseCommand(name),
		search:      search,
		siteFilter:  siteFilter,
		maxResults:  maxResults,
		sleep:       time.Sleep,
	}
}

// IsExecutable requires a viable run that has completed extraction.
func (c *CandidateSearch) IsExecutable(context cor.Context) bool {
	run := GetPipelineRun(context)
	return runIsViable(context) && run.Source != nil
}

// Execute builds and submits the search. No query text at all short-circuits
// the run to Done as a partial result; an exhausted retry budget is a soft
// failure that leaves the run carrying only extraction-stage data. A missing
// API credential is a fatal configuration error.
func (c *CandidateSearch) Execute(context cor.Context) {
	run := GetPipelineRun(context)

	queryText := run.SearchQuery()
	if len(strings.TrimSpace(queryText)) == 0 {
		// Nothing to search for: neither transcript nor title survived the
		// earlier stages. The partial result is still valid output.
		run.State = model.StateDone
		context.Add(c.GetOutputParam(), run)
		return
	}
	run.State = model.StateSearching

	if !c.search.Configured() {
		err := &model.SearchError{Reason: model.ReasonUnconfigured}
		c.GetErrorCounter().Add(context.GetContext(), 1)
		run.Fail(c.GetName(), err.Reason, err.Error())
		context.AddError(c.GetName(), err)
		context.Add(c.GetOutputParam(), run)
		return
	}

	query := truncateQuery(queryText)
	if len(c.siteFilter) > 0 {
		query = fmt.Sprintf("%s site:%s", query, c.siteFilter)
	}
	run.Debug.SearchQuery = query

	rows, raw, err := c.searchWithRetries(context.GetContext(), query)
	run.Debug.RawSearchResponse = raw
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		slog.WarnContext(context.GetContext(), "candidate search failed", "query", query, "error", err)
		run.RecordFailure(c.GetName(), model.Reason(err), err.Error())
		context.Add(c.GetOutputParam(), run)
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	run.Candidates = normalizeCandidates(rows, c.maxResults)
	context.Add(c.GetOutputParam(), run)
}

// searchWithRetries applies the two nested retry loops. The outer loop
// resubmits the whole search when a completed request yields zero rows; the
// inner loop retries timeouts and 5xx responses with doubling backoff and
// treats 4xx as permanent for its attempt.
func (c *CandidateSearch) searchWithRetries(ctx goctx.Context, query string) ([]cloud.RawSearchResult, []byte, error) {
	var lastErr error
	var lastRaw []byte

	for outer := 1; outer <= outerSearchAttempts; outer++ {
		rows, raw, err := c.searchOnce(ctx, query)
		if raw != nil {
			lastRaw = raw
		}
		if err == nil && len(rows) > 0 {
			return rows, lastRaw, nil
		}
		lastErr = err

		if outer < outerSearchAttempts {
			c.sleep(outerRetryDelay)
		}
	}

	if isTimeout(lastErr) {
		return nil, lastRaw, &model.SearchError{Reason: model.ReasonTimeout, Err: lastErr}
	}
	return nil, lastRaw, &model.SearchError{Reason: model.ReasonNoResults, Err: lastErr}
}

// searchOnce is one outer attempt: up to innerSearchAttempts requests with
// 1s/2s/4s pauses between them.
func (c *CandidateSearch) searchOnce(ctx goctx.Context, query string) ([]cloud.RawSearchResult, []byte, error) {
	var lastErr error
	backoff := innerRetryBaseDelay

	for inner := 1; inner <= innerSearchAttempts; inner++ {
		rows, raw, err := c.search.Search(ctx, query, c.maxResults)
		if err == nil {
			return rows, raw, nil
		}
		lastErr = err

		var statusErr *cloud.SearchStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			// Client errors do not heal with retries.
			break
		}
		if inner < innerSearchAttempts {
			c.sleep(backoff)
			backoff *= 2
		}
	}
	return nil, nil, lastErr
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, goctx.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

// truncateQuery caps the query at maxQueryLength characters with
// word-boundary awareness: a word straddling the cap is completed when its
// remainder fits in the slack, otherwise dropped entirely.
func truncateQuery(query string) string {
	runes := []rune(strings.TrimSpace(query))
	if len(runes) <= maxQueryLength {
		return string(runes)
	}

	// Landing on or just after whitespace is already a clean boundary.
	if unicode.IsSpace(runes[maxQueryLength]) || unicode.IsSpace(runes[maxQueryLength-1]) {
		return strings.TrimRightFunc(string(runes[:maxQueryLength]), unicode.IsSpace)
	}

	// Mid-word: find where the word ends.
	wordEnd := maxQueryLength
	for wordEnd < len(runes) && !unicode.IsSpace(runes[wordEnd]) {
		wordEnd++
	}
	if wordEnd-maxQueryLength <= wordCompletionSlack {
		return string(runes[:wordEnd])
	}

	// The word runs too long: back up to the previous boundary.
	cut := maxQueryLength
	for cut > 0 && !unicode.IsSpace(runes[cut-1]) {
		cut--
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
}

// normalizeCandidates converts raw backend rows into SearchCandidates,
// choosing the richest available snippet text for each.
func normalizeCandidates(rows []cloud.RawSearchResult, limit int) []*model.SearchCandidate {
	candidates := make([]*model.SearchCandidate, 0, limit)
	for _, row := range rows {
		if len(candidates) == limit {
			break
		}
		candidate := &model.SearchCandidate{
			Title:    row.Title,
			URL:      row.Link,
			Snippet:  richestSnippet(row),
			Position: row.Position,
			Raw:      row.Raw,
		}
		if len(row.Duration) > 0 {
			duration := row.Duration
			candidate.DurationText = &duration
		}
		if len(row.Thumbnail) > 0 {
			thumbnail := row.Thumbnail
			candidate.ThumbnailURL = &thumbnail
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

// richestSnippet picks the candidate's text in descending order of richness:
// channel description, search snippet, generic description, then the title.
func richestSnippet(row cloud.RawSearchResult) string {
	for _, value := range []string{row.ChannelDescription, row.Snippet, row.Description} {
		if len(strings.TrimSpace(value)) > 0 {
			return value
		}
	}
	return row.Title
}
