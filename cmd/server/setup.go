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

// Package main contains the application state setup: configuration loading,
// cloud client initialization, the run service, and the workflow instance
// shared by the HTTP handlers and the Pub/Sub listener.
package main

import (
	"context"
	"log"
	"os"

	"github.com/mediareel/go-reel-match/internal/cloud"
	"github.com/mediareel/go-reel-match/internal/core/services"
	"github.com/mediareel/go-reel-match/internal/core/workflow"
)

// entityAgentModelName is the agent_models config key for the model driving
// entity extraction.
const entityAgentModelName = "entity-agent"

// StateManager holds the shared dependencies of the server process.
type StateManager struct {
	config       *cloud.Config
	cloud        *cloud.ServiceClients
	runService   *services.RunService
	reelWorkflow *workflow.ReelMatchWorkflow
}

var state = &StateManager{}

// SetupOS points the configuration loader at the configs directory and the
// local runtime overlay when the environment does not say otherwise.
func SetupOS() (err error) {
	if len(os.Getenv(cloud.EnvConfigFilePrefix)) == 0 {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if len(os.Getenv(cloud.EnvConfigRuntime)) == 0 {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

// GetConfig loads the configuration once and caches it on the state.
func GetConfig() *cloud.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to set up environment: %v\n", err)
		}
		config := cloud.NewConfig()
		cloud.LoadConfig(&config)
		state.config = config
	}
	return state.config
}

// InitState creates the cloud clients, the run service, the workflow, and
// the Pub/Sub listeners.
func InitState(ctx context.Context) {
	config := GetConfig()

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		panic(err)
	}
	state.cloud = cloudClients

	state.runService = services.NewRunService(
		cloudClients.BigQueryClient,
		config.BigQueryDataSource.DatasetName,
		config.BigQueryDataSource.RunTable)

	state.reelWorkflow = workflow.NewReelMatchWorkflow(config, cloudClients, entityAgentModelName)

	SetupListeners(config, cloudClients, ctx)
}
