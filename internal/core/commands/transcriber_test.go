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

// Tests for the transcription stage against a local HTTP server standing in
// for the video CDN. Every failure path must stay soft: the run keeps going
// without a transcript.
package commands

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mediareel/go-reel-match/internal/cloud"
	"github.com/mediareel/go-reel-match/internal/core/model"
	test "github.com/mediareel/go-reel-match/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func speechConfig() *cloud.SpeechBackend {
	return &cloud.SpeechBackend{
		LanguageCode:           "en-US",
		Model:                  "latest_long",
		MaxPayloadBytes:        1024,
		DownloadTimeoutSeconds: 5,
	}
}

func runWithVideoURL(videoURL string) *model.PipelineRun {
	run := model.NewPipelineRun("run-1", "https://www.instagram.com/reel/abc/")
	run.Source = &model.SourceContent{VideoURL: &videoURL, SourceURL: run.SourceURL}
	return run
}

func TestTranscriberAttachesTranscript(t *testing.T) {
	payload := []byte("fake video payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	speech := &test.FakeSpeechClient{Text: "hello from the reel"}
	command := NewTranscriber("transcribe-media", speech, nil, speechConfig(), "")

	run := runWithVideoURL(server.URL + "/video.mp4")
	context := newRunContext(run)
	command.Execute(context)

	if assert.NotNil(t, run.Transcript) {
		assert.Equal(t, "hello from the reel", run.Transcript.Text)
		assert.Equal(t, server.URL+"/video.mp4", run.Transcript.VideoURL)
	}
	assert.Equal(t, len(payload), run.Debug.TranscriptionBytes)
	assert.Empty(t, run.Debug.Failures)
	if assert.Len(t, speech.Payloads, 1) {
		assert.Equal(t, payload, speech.Payloads[0])
	}
}

func TestTranscriberDownloadFailureIsSoft(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	speech := &test.FakeSpeechClient{Text: "never reached"}
	command := NewTranscriber("transcribe-media", speech, nil, speechConfig(), "")

	run := runWithVideoURL(server.URL + "/video.mp4")
	context := newRunContext(run)
	command.Execute(context)

	assert.Nil(t, run.Transcript)
	assert.Nil(t, run.Error)
	assert.False(t, context.HasErrors())
	if assert.Len(t, run.Debug.Failures, 1) {
		assert.Equal(t, model.ReasonDownloadFailed, run.Debug.Failures[0].Reason)
	}
	assert.Empty(t, speech.Payloads)
}

func TestTranscriberRejectsOversizedPayload(t *testing.T) {
	oversized := make([]byte, 2048) // config caps at 1024
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(oversized)
	}))
	defer server.Close()

	speech := &test.FakeSpeechClient{Text: "never reached"}
	command := NewTranscriber("transcribe-media", speech, nil, speechConfig(), "")

	run := runWithVideoURL(server.URL + "/video.mp4")
	context := newRunContext(run)
	command.Execute(context)

	assert.Nil(t, run.Transcript)
	if assert.Len(t, run.Debug.Failures, 1) {
		assert.Equal(t, model.ReasonServiceError, run.Debug.Failures[0].Reason)
	}
	assert.Empty(t, speech.Payloads)
}

func TestTranscriberBackendFailureIsSoft(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	speech := &test.FakeSpeechClient{Err: assert.AnError}
	command := NewTranscriber("transcribe-media", speech, nil, speechConfig(), "")

	run := runWithVideoURL(server.URL + "/video.mp4")
	context := newRunContext(run)
	command.Execute(context)

	assert.Nil(t, run.Transcript)
	assert.Nil(t, run.Error)
	if assert.Len(t, run.Debug.Failures, 1) {
		assert.Equal(t, model.ReasonServiceError, run.Debug.Failures[0].Reason)
	}
}

func TestTranscriberRequiresVideoURL(t *testing.T) {
	command := NewTranscriber("transcribe-media", &test.FakeSpeechClient{}, nil, speechConfig(), "")

	run := model.NewPipelineRun("run-1", "https://www.instagram.com/reel/abc/")
	run.Source = &model.SourceContent{SourceURL: run.SourceURL}
	context := newRunContext(run)

	assert.False(t, command.IsExecutable(context))
}
