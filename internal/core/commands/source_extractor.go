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
// workflow. This file defines the mandatory first stage: render the source
// page and extract its content. A post without extractable text cannot be
// searched for, so extraction failure is fatal for the run.
package commands

import (
	"errors"
	"fmt"

	"github.com/mediareel/go-reel-match/internal/cloud"
	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
)

// SourceExtractor renders the submitted URL and extracts the SourceContent.
type SourceExtractor struct {
	cor.BaseCommand
	render cloud.RenderClient
}

// NewSourceExtractor is the constructor for the SourceExtractor command.
func NewSourceExtractor(name string, render cloud.RenderClient) *SourceExtractor {
	return &SourceExtractor{BaseCommand: *cor.NewBaseCommand(name), render: render}
}

// IsExecutable requires an open run from the trigger reader.
func (c *SourceExtractor) IsExecutable(context cor.Context) bool {
	return runIsViable(context) && context.GetContext() != nil
}

// Execute renders the page, runs the extraction cascade, and stores the
// SourceContent on the run. Navigation timeout and a page with neither title
// nor description are fatal; a missing video URL is not.
func (c *SourceExtractor) Execute(context cor.Context) {
	run := GetPipelineRun(context)
	run.State = model.StateExtracting

	rawHTML, err := c.render.RenderPage(context.GetContext(), run.SourceURL)
	if err != nil {
		reason := model.ReasonRenderFailed
		if errors.Is(err, cloud.ErrNavigationTimeout) {
			reason = model.ReasonNavigationTimeout
		}
		c.fail(context, run, &model.ExtractionError{Reason: reason, Err: err})
		return
	}
	run.Debug.RenderedHTMLBytes = len(rawHTML)

	source := extractSourceContent(rawHTML, run.SourceURL)
	if source.Title == nil && source.Description == nil {
		c.fail(context, run, &model.ExtractionError{Reason: model.ReasonNoDescription})
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	run.Source = source
	run.State = model.StateProbingAndTranscribing
	context.Add(c.GetOutputParam(), run)
}

// fail marks the run terminally errored and registers the chain error so the
// caller can classify it.
func (c *SourceExtractor) fail(context cor.Context, run *model.PipelineRun, err *model.ExtractionError) {
	c.GetErrorCounter().Add(context.GetContext(), 1)
	run.Fail(c.GetName(), err.Reason, err.Error())
	context.AddError(c.GetName(), fmt.Errorf("source extraction: %w", err))
	context.Add(c.GetOutputParam(), run)
}
