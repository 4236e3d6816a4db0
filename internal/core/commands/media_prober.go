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
// workflow. This file defines the best-effort duration probe. Its failure
// never aborts the run: a missing duration only zeroes the duration term of
// the match score downstream.
package commands

import (
	"log/slog"

	"github.com/mediareel/go-reel-match/internal/cloud"
	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
)

// MediaProber determines the video duration from media metadata only.
type MediaProber struct {
	cor.BaseCommand
	render cloud.RenderClient
}

// NewMediaProber is the constructor for the MediaProber command.
func NewMediaProber(name string, render cloud.RenderClient) *MediaProber {
	return &MediaProber{BaseCommand: *cor.NewBaseCommand(name), render: render}
}

// IsExecutable requires a viable run with an extracted video URL; without one
// the probe is skipped gracefully.
func (c *MediaProber) IsExecutable(context cor.Context) bool {
	run := GetPipelineRun(context)
	return runIsViable(context) && run.Source != nil && run.Source.VideoURL != nil
}

// Execute probes the video metadata. A timeout, a decode failure, or a null
// answer from the backend all resolve to "no duration" and a debug entry.
func (c *MediaProber) Execute(context cor.Context) {
	run := GetPipelineRun(context)
	run.State = model.StateProbingAndTranscribing
	videoURL := *run.Source.VideoURL

	seconds, err := c.render.ProbeDuration(context.GetContext(), videoURL)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		slog.WarnContext(context.GetContext(), "duration probe failed", "video_url", videoURL, "error", err)
		run.RecordFailure(c.GetName(), model.ReasonTimeout, err.Error())
		context.Add(c.GetOutputParam(), run)
		return
	}
	if seconds == nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		run.RecordFailure(c.GetName(), model.ReasonTimeout, "metadata did not load within the probe budget")
		context.Add(c.GetOutputParam(), run)
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	run.Duration = &model.MediaDuration{VideoURL: videoURL, Seconds: *seconds}
	context.Add(c.GetOutputParam(), run)
}
