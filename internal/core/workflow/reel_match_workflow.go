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

// Package workflow defines the high-level orchestrations that combine
// commands into pipelines. This file implements the reel-match pipeline: from
// an incoming submission through extraction, probing, transcription, search,
// scoring, re-crawl, entity extraction, enrichment, and persistence.
package workflow

import (
	"fmt"
	"text/template"

	"github.com/mediareel/go-reel-match/internal/cloud"
	"github.com/mediareel/go-reel-match/internal/core/commands"
	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
	"github.com/mediareel/go-reel-match/internal/core/services"
)

// ReelMatchWorkflow orchestrates one full pipeline run. The chain continues
// on failure: individual commands implement the fatal/soft split by either
// marking the run Errored (fatal) or recording debug failures (soft), and
// each command's IsExecutable gate skips work a dead or completed run cannot
// use. Whatever happens, the shared PipelineRun comes out the other end as a
// structured result.
type ReelMatchWorkflow struct {
	cor.BaseCommand
	config         *cloud.Config
	serviceClients *cloud.ServiceClients
	runService     *services.RunService
	entityTemplate *template.Template
	agentModelName string
	chain          cor.Chain
}

// Execute runs the workflow chain.
func (m *ReelMatchWorkflow) Execute(context cor.Context) {
	m.chain.Execute(context)
}

// GetRun returns the pipeline run produced by an execution of this workflow,
// or nil when the trigger never parsed.
func (m *ReelMatchWorkflow) GetRun(context cor.Context) *model.PipelineRun {
	return commands.GetPipelineRun(context)
}

// initializeChain wires the pipeline stages in their state-machine order.
func (m *ReelMatchWorkflow) initializeChain() {
	out := cor.NewBaseChain(m.GetName())
	out.ContinueOnFailure(true)

	// Step 1: parse the submission payload and open a fresh run.
	out.AddCommand(commands.NewTriggerReader("read-reel-trigger"))

	// Step 2: render the source page and extract its content. Fatal when
	// nothing searchable comes back.
	out.AddCommand(commands.NewSourceExtractor("extract-source", m.serviceClients.RenderClient))

	// Steps 3 and 4: best-effort duration probe and speech transcription.
	// Both need the extracted video URL and neither can abort the run.
	out.AddCommand(commands.NewMediaProber("probe-media-duration", m.serviceClients.RenderClient))
	out.AddCommand(commands.NewTranscriber(
		"transcribe-media",
		m.serviceClients.SpeechClient,
		m.serviceClients.StorageClient,
		&m.config.Speech,
		m.config.Storage.ArchiveBucket))

	// Step 5: search the target site for candidate posts, transcript text
	// preferred over the title as the query.
	out.AddCommand(commands.NewCandidateSearch(
		"search-candidates",
		m.serviceClients.SearchClient,
		m.config.Search.SiteFilter,
		m.config.Search.MaxResults))

	// Step 6: score the candidates and keep the best one above threshold.
	out.AddCommand(commands.NewMatchScorer("score-candidates"))

	// Step 7: re-crawl the accepted match for its canonical attribution.
	out.AddCommand(commands.NewRecrawlMatch("recrawl-match", m.serviceClients.RenderClient))

	// Steps 8 and 9: extract entities from the accumulated content, then
	// enrich each with resource URLs through the worker pool.
	out.AddCommand(commands.NewEntityExtractor(
		"extract-entities",
		m.serviceClients.AgentModels[m.agentModelName],
		m.entityTemplate))
	out.AddCommand(commands.NewEntityEnricher(
		"enrich-entities",
		m.serviceClients.SearchClient,
		m.config.Application.ThreadPoolSize))

	// Step 10: finalize the run and persist it, errored or not.
	out.AddCommand(commands.NewRunPersistToBigQuery("persist-run", m.runService))

	m.chain = out
}

// NewReelMatchWorkflow is the constructor for the ReelMatchWorkflow. It
// compiles the entity prompt template, verifies the agent model is
// configured, and builds the command chain. Both checks panic: a workflow
// missing its model or template is a deployment error, not a per-run one.
func NewReelMatchWorkflow(
	config *cloud.Config,
	serviceClients *cloud.ServiceClients,
	agentModelName string) *ReelMatchWorkflow {

	entityTemplate, err := template.New("entity-template").Parse(config.PromptTemplates.EntityPrompt)
	if err != nil {
		panic(err)
	}

	if model, ok := serviceClients.AgentModels[agentModelName]; !ok || model == nil {
		panic(fmt.Errorf("agent model %q is not configured", agentModelName))
	}

	pipeline := &ReelMatchWorkflow{
		BaseCommand:    *cor.NewBaseCommand("reel-match-pipeline"),
		config:         config,
		serviceClients: serviceClients,
		runService: services.NewRunService(
			serviceClients.BigQueryClient,
			config.BigQueryDataSource.DatasetName,
			config.BigQueryDataSource.RunTable),
		entityTemplate: entityTemplate,
		agentModelName: agentModelName,
	}
	pipeline.initializeChain()
	return pipeline
}
