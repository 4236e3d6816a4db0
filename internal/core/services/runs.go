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

// Package services contains the data-access layer. This file defines the
// RunService, which persists finished pipeline runs to BigQuery and reads
// them back for the runs API. Each run is stored as one row keyed by the run
// ID, with the full serialized run as a JSON payload column so the document
// shape can evolve without schema migrations.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/mediareel/go-reel-match/internal/core/model"
)

// QryFindRunById selects a single run row. Parameters: fully qualified table
// name, run ID.
const QryFindRunById = "SELECT id, source_url, state, payload, created_at, completed_at FROM `%s` WHERE id = \"%s\" LIMIT 1"

// RunRecord is the BigQuery row shape for a persisted run.
type RunRecord struct {
	ID          string    `bigquery:"id"`
	SourceURL   string    `bigquery:"source_url"`
	State       string    `bigquery:"state"`
	Payload     string    `bigquery:"payload"`
	CreatedAt   time.Time `bigquery:"created_at"`
	CompletedAt time.Time `bigquery:"completed_at"`
}

// RunService reads and writes pipeline runs in BigQuery.
type RunService struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	RunTable       string
}

// NewRunService is the constructor for RunService.
func NewRunService(client *bigquery.Client, datasetName string, runTable string) *RunService {
	return &RunService{BigqueryClient: client, DatasetName: datasetName, RunTable: runTable}
}

// GetFQN returns the fully qualified, queryable table name with dots instead
// of the colon the client library emits.
func (s *RunService) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.RunTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// Save streams the run into the run table via an Inserter.
func (s *RunService) Save(ctx context.Context, run *model.PipelineRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to serialize run %s: %w", run.ID, err)
	}

	record := &RunRecord{
		ID:          run.ID,
		SourceURL:   run.SourceURL,
		State:       string(run.State),
		Payload:     string(payload),
		CreatedAt:   run.CreatedAt,
		CompletedAt: run.CompletedAt,
	}

	inserter := s.BigqueryClient.Dataset(s.DatasetName).Table(s.RunTable).Inserter()
	if err := inserter.Put(ctx, record); err != nil {
		return fmt.Errorf("bigquery insert failed for run %s: %w", run.ID, err)
	}
	return nil
}

// Get fetches a persisted run by ID and deserializes its payload.
func (s *RunService) Get(ctx context.Context, id string) (*model.PipelineRun, error) {
	queryText := fmt.Sprintf(QryFindRunById, s.GetFQN(), id)
	q := s.BigqueryClient.Query(queryText)
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}

	record := &RunRecord{}
	if err := itr.Next(record); err != nil {
		return nil, err
	}

	run := &model.PipelineRun{}
	if err := json.Unmarshal([]byte(record.Payload), run); err != nil {
		return nil, fmt.Errorf("failed to deserialize run %s: %w", id, err)
	}
	return run, nil
}
