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
// workflow. This file defines the terminal command: it finalizes the run's
// state and writes the serialized run to BigQuery. It runs for every run,
// including fatally errored ones, so the runs API can serve the failure
// record too. Persistence trouble never masks the run itself.
package commands

import (
	"log/slog"
	"time"

	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
	"github.com/mediareel/go-reel-match/internal/core/services"
)

// RunPersistToBigQuery finalizes and stores the finished pipeline run.
type RunPersistToBigQuery struct {
	cor.BaseCommand
	runService *services.RunService
}

// NewRunPersistToBigQuery is the constructor for the RunPersistToBigQuery
// command. The service may be nil in test harnesses; persistence is then
// skipped after finalization.
func NewRunPersistToBigQuery(name string, runService *services.RunService) *RunPersistToBigQuery {
	return &RunPersistToBigQuery{BaseCommand: *cor.NewBaseCommand(name), runService: runService}
}

// IsExecutable only requires that a run exists: errored runs are persisted
// too.
func (c *RunPersistToBigQuery) IsExecutable(context cor.Context) bool {
	return GetPipelineRun(context) != nil
}

// Execute marks the run Done (unless it errored), stamps the completion
// time, and inserts the row.
func (c *RunPersistToBigQuery) Execute(context cor.Context) {
	run := GetPipelineRun(context)

	if run.Error == nil {
		run.State = model.StateDone
	}
	run.CompletedAt = time.Now().UTC()

	if c.runService != nil {
		if err := c.runService.Save(context.GetContext(), run); err != nil {
			c.GetErrorCounter().Add(context.GetContext(), 1)
			slog.WarnContext(context.GetContext(), "failed to persist run", "run_id", run.ID, "error", err)
			run.RecordFailure(c.GetName(), model.ReasonServiceError, err.Error())
			context.Add(c.GetOutputParam(), run)
			return
		}
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), run)
}
