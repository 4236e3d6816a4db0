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
// workflow. This file defines entity extraction: the run's accumulated
// content (author, title, duration, transcript) is rendered into a prompt
// and submitted to the rate-limited language model. The response is parsed
// tolerantly; a non-JSON answer is preserved for diagnostics rather than
// treated as a hard error.
package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"go.opentelemetry.io/otel/metric"

	"github.com/mediareel/go-reel-match/internal/cloud"
	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
)

// EntityExtractor asks the language model for the entities a reel mentions.
type EntityExtractor struct {
	cor.BaseCommand
	generativeAIModel        cloud.TextGenerator
	promptTemplate           *template.Template
	geminiInputTokenCounter  metric.Int64Counter
	geminiOutputTokenCounter metric.Int64Counter
	geminiRetryCounter       metric.Int64Counter
}

// NewEntityExtractor is the constructor for the EntityExtractor command.
func NewEntityExtractor(
	name string,
	generativeAIModel cloud.TextGenerator,
	prompt *template.Template) *EntityExtractor {
	out := &EntityExtractor{
		BaseCommand:       *cor.NewBaseCommand(name),
		generativeAIModel: generativeAIModel,
		promptTemplate:    prompt,
	}

	out.geminiInputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.input", out.GetName()))
	out.geminiOutputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.output", out.GetName()))
	out.geminiRetryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.retry", out.GetName()))

	return out
}

// IsExecutable requires an active run with extracted source content. The
// stage runs regardless of match outcome; it works with whatever accumulated.
func (c *EntityExtractor) IsExecutable(context cor.Context) bool {
	run := GetPipelineRun(context)
	return runIsActive(context) && run.Source != nil
}

// Execute renders the prompt, calls the model, and parses the entities.
// Failure is soft: a run without entities is still a complete result.
func (c *EntityExtractor) Execute(context cor.Context) {
	run := GetPipelineRun(context)
	run.State = model.StateExtractingEntities

	prompt, err := c.renderPrompt(run)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		run.RecordFailure(c.GetName(), model.ReasonServiceError, err.Error())
		context.Add(c.GetOutputParam(), run)
		return
	}

	response, err := cloud.GenerateTextResponse(
		context.GetContext(),
		c.geminiInputTokenCounter,
		c.geminiOutputTokenCounter,
		c.geminiRetryCounter,
		0,
		c.generativeAIModel,
		prompt)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		slog.WarnContext(context.GetContext(), "entity extraction failed", "error", err)
		run.RecordFailure(c.GetName(), model.ReasonServiceError, err.Error())
		run.Debug.EntityExtraction = &model.EntityExtractionResult{
			Success: false,
			Prompt:  prompt,
			Error:   err.Error(),
		}
		context.Add(c.GetOutputParam(), run)
		return
	}

	result := parseEntityResponse(prompt, response)
	run.Debug.EntityExtraction = result
	if result.Success {
		run.Entities = result.Entities
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), run)
}

// renderPrompt substitutes the run's content document and the few-shot
// example into the configured template.
func (c *EntityExtractor) renderPrompt(run *model.PipelineRun) (string, error) {
	exampleJSON, _ := json.Marshal(map[string]interface{}{"entities": model.GetExampleEntities()})

	var contentBuilder strings.Builder
	if run.Source.Author != nil {
		fmt.Fprintf(&contentBuilder, "Author: %s\n", *run.Source.Author)
	}
	if run.Source.Title != nil {
		fmt.Fprintf(&contentBuilder, "Title: %s\n", *run.Source.Title)
	}
	if run.Duration != nil {
		fmt.Fprintf(&contentBuilder, "Video duration: %.0f seconds\n", run.Duration.Seconds)
	}
	if run.Transcript != nil && len(run.Transcript.Text) > 0 {
		fmt.Fprintf(&contentBuilder, "Transcript:\n%s\n", run.Transcript.Text)
	}

	vocabulary := map[string]string{
		"CONTENT_DOCUMENT": contentBuilder.String(),
		"EXAMPLE_JSON":     string(exampleJSON),
	}

	var doc bytes.Buffer
	if err := c.promptTemplate.Execute(&doc, vocabulary); err != nil {
		return "", fmt.Errorf("failed to render entity prompt: %w", err)
	}
	return doc.String(), nil
}

// parseEntityResponse attempts to read the model output as JSON carrying an
// entities array. The raw text always survives in the result.
func parseEntityResponse(prompt string, response string) *model.EntityExtractionResult {
	result := &model.EntityExtractionResult{
		Prompt:   prompt,
		Response: response,
	}

	var parsed struct {
		Entities []model.Entity `json:"entities"`
	}
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		result.Error = fmt.Sprintf("response is not valid entity JSON: %v", err)
		return result
	}

	result.Success = true
	result.Entities = parsed.Entities
	return result
}
