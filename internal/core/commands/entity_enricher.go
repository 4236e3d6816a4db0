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
// workflow. This file defines per-entity URL enrichment. Each extracted
// entity is searched for independently through a bounded worker pool; an
// entity whose lookup fails keeps its url-less form, and the original entity
// order is preserved in the output.
package commands

import (
	goctx "context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mediareel/go-reel-match/internal/cloud"
	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
)

// maxEntityURLs caps how many organic result URLs each entity receives.
const maxEntityURLs = 5

// EntityEnricher attaches resource URLs to extracted entities.
type EntityEnricher struct {
	cor.BaseCommand
	search          cloud.SearchClient
	numberOfWorkers int
}

// NewEntityEnricher is the constructor for the EntityEnricher command. The
// search client here is unrestricted: entity lookups go to the open web, not
// the reel platform.
func NewEntityEnricher(name string, search cloud.SearchClient, numberOfWorkers int) *EntityEnricher {
	if numberOfWorkers <= 0 {
		numberOfWorkers = 1
	}
	return &EntityEnricher{
		BaseCommand:     *cor.NewBaseCommand(name),
		search:          search,
		numberOfWorkers: numberOfWorkers,
	}
}

// IsExecutable requires an active run that produced entities.
func (c *EntityEnricher) IsExecutable(context cor.Context) bool {
	run := GetPipelineRun(context)
	return runIsActive(context) && len(run.Entities) > 0
}

// entityJob carries one entity and its position so results reassemble in the
// original order.
type entityJob struct {
	index  int
	entity model.Entity
}

// entityResult is the enriched entity or, on failure, the original.
type entityResult struct {
	index  int
	entity model.Entity
}

// Execute fans the entities out across the worker pool and collects the
// enriched versions back into their original positions.
func (c *EntityEnricher) Execute(context cor.Context) {
	run := GetPipelineRun(context)
	entities := run.Entities

	var wg sync.WaitGroup
	jobs := make(chan *entityJob, len(entities))
	results := make(chan *entityResult, len(entities))

	for w := 1; w <= c.numberOfWorkers; w++ {
		wg.Add(1)
		go c.enrichWorker(context.GetContext(), jobs, results, &wg)
	}

	for i, entity := range entities {
		jobs <- &entityJob{index: i, entity: entity}
	}
	close(jobs)

	wg.Wait()
	close(results)

	enriched := make([]model.Entity, len(entities))
	for r := range results {
		enriched[r.index] = r.entity
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	run.Entities = enriched
	context.Add(c.GetOutputParam(), run)
}

// enrichWorker processes jobs until the channel drains. A failed lookup
// passes the original entity through untouched.
func (c *EntityEnricher) enrichWorker(ctx goctx.Context, jobs <-chan *entityJob, results chan<- *entityResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for j := range jobs {
		entity, err := c.enrich(ctx, j.entity)
		if err != nil {
			c.GetErrorCounter().Add(ctx, 1)
			slog.WarnContext(ctx, "entity enrichment failed", "entity", j.entity.Name, "error", err)
			results <- &entityResult{index: j.index, entity: j.entity}
			continue
		}
		results <- &entityResult{index: j.index, entity: entity}
	}
}

// enrich looks the entity up on the open web and attaches up to five organic
// result URLs verbatim.
func (c *EntityEnricher) enrich(ctx goctx.Context, entity model.Entity) (model.Entity, error) {
	query := fmt.Sprintf("%s %s", entity.Name, entity.Type)

	rows, _, err := c.search.Search(ctx, query, maxEntityURLs)
	if err != nil {
		return entity, err
	}

	urls := make([]model.EntityURL, 0, maxEntityURLs)
	for _, row := range rows {
		if len(urls) == maxEntityURLs {
			break
		}
		if len(row.Link) == 0 {
			continue
		}
		urls = append(urls, model.EntityURL{
			URL:         row.Link,
			Title:       row.Title,
			Description: row.Snippet,
			Image:       row.Thumbnail,
		})
	}

	entity.URLs = urls
	return entity, nil
}
