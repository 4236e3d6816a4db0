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
// workflow. This file defines the re-crawl stage: once a candidate is
// accepted, its URL goes through the same extraction cascade to obtain the
// canonical title/author/video-URL for the match. Failure keeps the match
// without the re-crawled detail.
package commands

import (
	"log/slog"

	"github.com/mediareel/go-reel-match/internal/cloud"
	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
)

// RecrawlMatch extracts the matched candidate's own source content.
type RecrawlMatch struct {
	cor.BaseCommand
	render cloud.RenderClient
}

// NewRecrawlMatch is the constructor for the RecrawlMatch command.
func NewRecrawlMatch(name string, render cloud.RenderClient) *RecrawlMatch {
	return &RecrawlMatch{BaseCommand: *cor.NewBaseCommand(name), render: render}
}

// IsExecutable requires an active run with an accepted match.
func (c *RecrawlMatch) IsExecutable(context cor.Context) bool {
	run := GetPipelineRun(context)
	return runIsActive(context) && run.BestMatch != nil && len(run.BestMatch.URL) > 0
}

// Execute re-runs source extraction against the matched URL. Unlike the
// initial extraction this is best effort: the match already stands on its
// score.
func (c *RecrawlMatch) Execute(context cor.Context) {
	run := GetPipelineRun(context)
	run.State = model.StateReCrawlingMatch
	matchURL := run.BestMatch.URL

	rawHTML, err := c.render.RenderPage(context.GetContext(), matchURL)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		slog.WarnContext(context.GetContext(), "match re-crawl failed", "url", matchURL, "error", err)
		run.RecordFailure(c.GetName(), model.ReasonRenderFailed, err.Error())
		context.Add(c.GetOutputParam(), run)
		return
	}

	source := extractSourceContent(rawHTML, matchURL)
	if source.Title == nil && source.Description == nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		run.RecordFailure(c.GetName(), model.ReasonNoDescription, "matched page yielded no extractable content")
		context.Add(c.GetOutputParam(), run)
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	run.MatchSource = source
	context.Add(c.GetOutputParam(), run)
}
