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

// Package workflow_test exercises the assembled reel-match workflow over
// in-memory backends: the full chain wiring, the no-query short circuit, and
// the structured result contract for bad submissions.
package workflow_test

import (
	"context"
	"os"
	"testing"

	"github.com/mediareel/go-reel-match/internal/cloud"
	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
	"github.com/mediareel/go-reel-match/internal/core/workflow"
	test "github.com/mediareel/go-reel-match/internal/testutil"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const tName = "github.com/mediareel/go-reel-match/tests/workflow"

var logger = otelslog.NewLogger(tName)

func TestMain(m *testing.M) {
	logger.Info("starting workflow test suite")
	os.Exit(m.Run())
}

// newTestConfig is the minimal configuration the workflow constructor needs.
func newTestConfig() *cloud.Config {
	config := cloud.NewConfig()
	config.Application.Name = "reel-match"
	config.Application.ThreadPoolSize = 2
	config.Search.SiteFilter = "instagram.com"
	config.Search.MaxResults = 5
	config.Speech.LanguageCode = "en-US"
	config.Speech.MaxPayloadBytes = 1024
	config.Speech.DownloadTimeoutSeconds = 5
	config.PromptTemplates.EntityPrompt = "{{.CONTENT_DOCUMENT}}\n{{.EXAMPLE_JSON}}"
	return config
}

func newTestClients(render *test.FakeRenderClient, search *test.FakeSearchClient) *cloud.ServiceClients {
	return &cloud.ServiceClients{
		SpeechClient:    &test.FakeSpeechClient{},
		RenderClient:    render,
		SearchClient:    search,
		PubSubListeners: make(map[string]*cloud.PubSubListener),
		AgentModels: map[string]cloud.TextGenerator{
			"entity-agent": &test.FakeTextGenerator{Responses: []string{`{"entities": []}`}},
		},
	}
}

func execute(w *workflow.ReelMatchWorkflow, payload string) (cor.Context, *model.PipelineRun) {
	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, payload)
	w.Execute(chainCtx)
	return chainCtx, w.GetRun(chainCtx)
}

// TestWorkflowCompletesWithoutQueryText drives the assembled workflow with a
// page that yields only a description: nothing to search with, so the run
// short-circuits to Done as a partial result and no backend is queried.
func TestWorkflowCompletesWithoutQueryText(t *testing.T) {
	render := test.NewFakeRenderClient()
	render.Pages["https://www.instagram.com/reel/Cxy123abc/"] =
		`<html><head><meta name="description" content="a reel about nothing" /></head></html>`
	search := &test.FakeSearchClient{}

	w := workflow.NewReelMatchWorkflow(newTestConfig(), newTestClients(render, search), "entity-agent")
	chainCtx, run := execute(w, test.GetTestTriggerMessageText())

	assert.False(t, chainCtx.HasErrors())
	if assert.NotNil(t, run) {
		assert.Equal(t, model.StateDone, run.State)
		assert.Nil(t, run.Error)
		if assert.NotNil(t, run.Source) {
			assert.Nil(t, run.Source.Title)
			assert.Equal(t, "a reel about nothing", *run.Source.Description)
		}
		assert.Empty(t, run.Candidates)
		assert.False(t, run.CompletedAt.IsZero())
	}
	assert.Empty(t, search.Queries)
}

// TestWorkflowFatalRenderFailure verifies that a render error surfaces as a
// structured errored run rather than a bare chain failure.
func TestWorkflowFatalRenderFailure(t *testing.T) {
	render := test.NewFakeRenderClient()
	render.RenderErr = cloud.ErrNavigationTimeout

	w := workflow.NewReelMatchWorkflow(newTestConfig(), newTestClients(render, &test.FakeSearchClient{}), "entity-agent")
	chainCtx, run := execute(w, test.GetTestTriggerMessageText())

	assert.True(t, chainCtx.HasErrors())
	if assert.NotNil(t, run) {
		assert.Equal(t, model.StateErrored, run.State)
		if assert.NotNil(t, run.Error) {
			assert.Equal(t, model.ReasonNavigationTimeout, run.Error.Reason)
		}
		assert.False(t, run.CompletedAt.IsZero())
	}
}

// TestWorkflowRequiresConfiguredAgentModel verifies the constructor refuses
// to assemble a pipeline whose entity model is missing from the configured
// agents, instead of failing on the first model call mid-run.
func TestWorkflowRequiresConfiguredAgentModel(t *testing.T) {
	clients := newTestClients(test.NewFakeRenderClient(), &test.FakeSearchClient{})
	delete(clients.AgentModels, "entity-agent")

	assert.Panics(t, func() {
		workflow.NewReelMatchWorkflow(newTestConfig(), clients, "entity-agent")
	})
}

// TestWorkflowMalformedPayload verifies that an unparseable submission never
// opens a run.
func TestWorkflowMalformedPayload(t *testing.T) {
	render := test.NewFakeRenderClient()

	w := workflow.NewReelMatchWorkflow(newTestConfig(), newTestClients(render, &test.FakeSearchClient{}), "entity-agent")
	chainCtx, run := execute(w, `{"source_url": "not a url"}`)

	assert.True(t, chainCtx.HasErrors())
	assert.Nil(t, run)
	assert.Empty(t, render.RenderCalls)
}
