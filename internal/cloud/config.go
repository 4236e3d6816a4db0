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

// Package cloud defines the application configuration structures, loaded
// from TOML files, along with the clients for the external backends the
// pipeline depends on (page rendering, web search, speech-to-text, the
// language model, Pub/Sub, Storage, and BigQuery).
package cloud

import "google.golang.org/genai"

// DefaultSafetySettings holds the non-restrictive content thresholds applied
// to every language-model call. Reel captions and transcripts are user
// content; blocking categories here would silently drop entity extractions.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// RenderBackend configures the page-render service: a black box that loads a
// JS-heavy page in a headless browsing context and returns the final DOM
// serialization, and that can probe a video URL for its duration without
// downloading the body.
type RenderBackend struct {
	Endpoint                 string `toml:"endpoint"`
	APIKey                   string `toml:"api_key"`
	UserAgent                string `toml:"user_agent"`
	ViewportWidth            int    `toml:"viewport_width"`
	ViewportHeight           int    `toml:"viewport_height"`
	NavigationTimeoutSeconds int    `toml:"navigation_timeout_seconds"` // total navigation budget; tuned high for cold starts
	SettleDelaySeconds       int    `toml:"settle_delay_seconds"`       // fixed wait after network-mostly-idle
	ProbeTimeoutSeconds      int    `toml:"probe_timeout_seconds"`
}

// SearchBackend configures the web-search service.
type SearchBackend struct {
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	Engine         string `toml:"engine"`
	SiteFilter     string `toml:"site_filter"` // target site for candidate search, e.g. "instagram.com"
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxResults     int    `toml:"max_results"`
}

// SpeechBackend configures the speech-to-text service and the video download
// that feeds it.
type SpeechBackend struct {
	LanguageCode           string `toml:"language_code"`
	Model                  string `toml:"model"`
	MaxPayloadBytes        int64  `toml:"max_payload_bytes"` // backend rejects larger payloads; typically 25MB
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
}

// Storage configures the optional archive bucket for downloaded media.
type Storage struct {
	ArchiveBucket string `toml:"archive_bucket"`
}

// BigQueryDataSource names the dataset and table that persist finished runs.
type BigQueryDataSource struct {
	DatasetName string `toml:"dataset"`
	RunTable    string `toml:"run_table"`
}

// PromptTemplates holds the text templates rendered into language-model
// prompts.
type PromptTemplates struct {
	EntityPrompt string `toml:"entity"`
}

// VertexAiLLMModel configures one language model plus its generation
// parameters and rate limit.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`
	SystemInstructions string  `toml:"system_instructions"`
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"`
	RateLimit          int     `toml:"rate_limit"`
}

// TopicSubscription configures a single Pub/Sub subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// Config is the root configuration container.
type Config struct {
	Application struct {
		Name            string `toml:"name"`
		GoogleProjectId string `toml:"google_project_id"`
		GoogleLocation  string `toml:"location"`
		ThreadPoolSize  int    `toml:"thread_pool_size"` // worker pool size for per-entity enrichment
	} `toml:"application"`
	Render             RenderBackend                `toml:"render"`
	Search             SearchBackend                `toml:"search"`
	Speech             SpeechBackend                `toml:"speech"`
	Storage            Storage                      `toml:"storage"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"`
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`
}

// NewConfig creates a Config with its maps initialized so the TOML loader
// can populate them.
func NewConfig() *Config {
	return &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
}
