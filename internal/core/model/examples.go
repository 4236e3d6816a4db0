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

// Package model defines the core data structures for the reel-match pipeline.
// This file provides hardcoded example instances used for few-shot prompting.
// Embedding a concrete example of the desired JSON output in the prompt keeps
// the language model's entity responses consistent and parsable.
package model

// GetExampleEntities returns a sample entity list used as the few-shot
// example inside the entity-extraction prompt template.
func GetExampleEntities() []Entity {
	return []Entity{
		{
			Name:        "Joe's Shanghai",
			Type:        EntityTypeRestaurant,
			Description: "Chinatown restaurant famous for soup dumplings",
			Reason:      "The narrator recommends the soup dumplings at Joe's Shanghai",
			URLs:        []EntityURL{},
		},
		{
			Name:        "Brooklyn Bridge Park",
			Type:        EntityTypePlace,
			Description: "Waterfront park with skyline views",
			Reason:      "Shown as the picnic spot at the end of the reel",
			URLs:        []EntityURL{},
		},
	}
}
