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
// workflow as Chain-of-Responsibility commands. Each command reads the shared
// PipelineRun from the workflow context, performs one stage, and mutates the
// run in place. Fatal stage errors mark the run Errored AND register a chain
// error; soft failures only land in the run's debug trace, so the chain keeps
// flowing and the final output documents what was attempted.
package commands

import (
	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
)

// GetRunParamName returns the well-known context key under which the shared
// PipelineRun is stored for the duration of one workflow execution.
func GetRunParamName() string {
	return "__PIPELINE_RUN__"
}

// GetPipelineRun fetches the shared run from the workflow context, or nil
// when no trigger has been read yet.
func GetPipelineRun(context cor.Context) *model.PipelineRun {
	value := context.Get(GetRunParamName())
	if value == nil {
		return nil
	}
	run, ok := value.(*model.PipelineRun)
	if !ok {
		return nil
	}
	return run
}

// runIsViable reports whether the run exists and has not hit a fatal error.
// Commands downstream of a fatal failure skip themselves through this check,
// while the terminal persistence command still runs.
func runIsViable(context cor.Context) bool {
	run := GetPipelineRun(context)
	return run != nil && run.Error == nil
}

// runIsActive additionally requires that the run has not already completed.
// Search short-circuits a run with no query text straight to Done; the
// stages behind it must not reopen it.
func runIsActive(context cor.Context) bool {
	run := GetPipelineRun(context)
	return runIsViable(context) && run.State != model.StateDone
}
