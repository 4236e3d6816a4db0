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

// Package main contains the Pub/Sub listener wiring. Reel submissions can
// arrive on a topic as well as over HTTP; both paths execute the same
// workflow chain.
package main

import (
	"context"

	"github.com/mediareel/go-reel-match/internal/cloud"
)

// reelTopicKey is the topic_subscriptions config key for the reel trigger
// subscription.
const reelTopicKey = "ReelTriggers"

// SetupListeners attaches the workflow to the reel trigger subscription and
// starts receiving. A deployment without the subscription configured simply
// runs HTTP-only.
func SetupListeners(config *cloud.Config, cloudClients *cloud.ServiceClients, ctx context.Context) {
	listener, ok := cloudClients.PubSubListeners[reelTopicKey]
	if !ok {
		return
	}
	listener.SetCommand(state.reelWorkflow)
	listener.Listen(ctx)
}
