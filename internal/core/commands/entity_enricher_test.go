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

// Tests for per-entity URL enrichment: query shape, the URL cap, order
// preservation through the worker pool, and failure pass-through.
package commands

import (
	"fmt"
	"testing"

	"github.com/mediareel/go-reel-match/internal/cloud"
	"github.com/mediareel/go-reel-match/internal/core/model"
	test "github.com/mediareel/go-reel-match/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func runWithEntities(entities ...model.Entity) *model.PipelineRun {
	run := model.NewPipelineRun("run-1", "https://www.instagram.com/reel/abc/")
	run.State = model.StateExtractingEntities
	run.Entities = entities
	return run
}

func TestEntityEnricherAttachesURLs(t *testing.T) {
	rows := make([]cloud.RawSearchResult, 0, 8)
	for i := 1; i <= 8; i++ {
		rows = append(rows, cloud.RawSearchResult{
			Title:   fmt.Sprintf("Result %d", i),
			Link:    fmt.Sprintf("https://example.com/%d", i),
			Snippet: fmt.Sprintf("snippet %d", i),
		})
	}
	// A single worker keeps the fake's call log deterministic.
	search := &test.FakeSearchClient{Responses: [][]cloud.RawSearchResult{rows}}
	command := NewEntityEnricher("enrich-entities", search, 1)

	run := runWithEntities(model.Entity{Name: "Joe's Diner", Type: model.EntityTypeRestaurant})
	context := newRunContext(run)
	command.Execute(context)

	if assert.Len(t, search.Queries, 1) {
		assert.Equal(t, "Joe's Diner restaurant", search.Queries[0])
	}
	if assert.Len(t, run.Entities, 1) {
		urls := run.Entities[0].URLs
		// The backend returned eight rows; only the first five attach.
		if assert.Len(t, urls, 5) {
			assert.Equal(t, "https://example.com/1", urls[0].URL)
			assert.Equal(t, "Result 1", urls[0].Title)
			assert.Equal(t, "snippet 1", urls[0].Description)
			assert.Equal(t, "https://example.com/5", urls[4].URL)
		}
	}
}

func TestEntityEnricherPreservesOrder(t *testing.T) {
	search := &test.FakeSearchClient{
		Responses: [][]cloud.RawSearchResult{
			{{Title: "First", Link: "https://example.com/first"}},
			{{Title: "Second", Link: "https://example.com/second"}},
			{{Title: "Third", Link: "https://example.com/third"}},
		},
	}
	command := NewEntityEnricher("enrich-entities", search, 1)

	run := runWithEntities(
		model.Entity{Name: "Alpha", Type: model.EntityTypePlace},
		model.Entity{Name: "Beta", Type: model.EntityTypeProduct},
		model.Entity{Name: "Gamma", Type: model.EntityTypeService},
	)
	context := newRunContext(run)
	command.Execute(context)

	if assert.Len(t, run.Entities, 3) {
		assert.Equal(t, "Alpha", run.Entities[0].Name)
		assert.Equal(t, "Beta", run.Entities[1].Name)
		assert.Equal(t, "Gamma", run.Entities[2].Name)
		assert.Equal(t, "https://example.com/first", run.Entities[0].URLs[0].URL)
		assert.Equal(t, "https://example.com/second", run.Entities[1].URLs[0].URL)
		assert.Equal(t, "https://example.com/third", run.Entities[2].URLs[0].URL)
	}
}

func TestEntityEnricherKeepsEntityOnFailure(t *testing.T) {
	search := &test.FakeSearchClient{Err: assert.AnError}
	command := NewEntityEnricher("enrich-entities", search, 1)

	original := model.Entity{
		Name:        "Joe's Diner",
		Type:        model.EntityTypeRestaurant,
		Description: "a diner",
		Reason:      "mentioned in the caption",
	}
	run := runWithEntities(original)
	context := newRunContext(run)
	command.Execute(context)

	// The lookup failed but the entity survives url-less, and the chain
	// records no error.
	if assert.Len(t, run.Entities, 1) {
		assert.Equal(t, original, run.Entities[0])
		assert.Empty(t, run.Entities[0].URLs)
	}
	assert.False(t, context.HasErrors())
	assert.Nil(t, run.Error)
}

func TestEntityEnricherSkipsWithoutEntities(t *testing.T) {
	command := NewEntityEnricher("enrich-entities", &test.FakeSearchClient{}, 1)

	run := model.NewPipelineRun("run-1", "https://www.instagram.com/reel/abc/")
	context := newRunContext(run)

	assert.False(t, command.IsExecutable(context))
}

func TestEntityEnricherSkipsCompletedRun(t *testing.T) {
	command := NewEntityEnricher("enrich-entities", &test.FakeSearchClient{}, 1)

	run := runWithEntities(model.Entity{Name: "Alpha", Type: model.EntityTypeOther})
	run.State = model.StateDone
	context := newRunContext(run)

	assert.False(t, command.IsExecutable(context))
}
