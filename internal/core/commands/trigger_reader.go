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
// workflow. This file defines the entry command: it parses the incoming
// submission payload (a webhook body or a Pub/Sub message) into a ReelTrigger
// and opens a fresh PipelineRun for it.
package commands

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
)

// TriggerReader parses a reel submission into a new PipelineRun.
type TriggerReader struct {
	cor.BaseCommand
}

// NewTriggerReader is the constructor for the TriggerReader command.
func NewTriggerReader(name string) *TriggerReader {
	return &TriggerReader{BaseCommand: *cor.NewBaseCommand(name)}
}

// Execute parses the raw JSON payload, validates the source URL, and places a
// new run into the context under the well-known run key.
func (c *TriggerReader) Execute(context cor.Context) {
	in := context.Get(c.GetInputParam()).(string)

	var trigger model.ReelTrigger
	if err := json.Unmarshal([]byte(in), &trigger); err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to unmarshal reel trigger: %w", err))
		return
	}

	// The source must be a well-formed absolute URL before any rendering
	// budget is spent on it.
	parsed, err := url.Parse(trigger.SourceURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("trigger source_url is not an absolute URL: %q", trigger.SourceURL))
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)

	run := model.NewPipelineRun(uuid.NewString(), trigger.SourceURL)
	context.Add(GetRunParamName(), run)
	context.Add(c.GetOutputParam(), run)
}
