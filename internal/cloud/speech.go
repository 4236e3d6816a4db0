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

// Package cloud provides the configuration and external-backend clients for
// the pipeline. This file wraps the Cloud Speech-to-Text client behind the
// minimal interface the transcriber command needs: submit a binary payload,
// get plain text back.
package cloud

import (
	"context"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
)

// SpeechClient is the boundary to the speech-to-text backend. Tests
// substitute a fake; production uses GoogleSpeechClient.
type SpeechClient interface {
	// TranscribeBytes submits the payload and returns the recognized text.
	// An empty string is a valid result: speech existed but nothing was
	// recognized.
	TranscribeBytes(ctx context.Context, data []byte, mimeType string) (string, error)
	Close() error
}

// GoogleSpeechClient implements SpeechClient on Cloud Speech-to-Text.
type GoogleSpeechClient struct {
	client *speech.Client
	cfg    *SpeechBackend
}

// NewGoogleSpeechClient creates the underlying API client. Extra options
// allow tests to point at an emulator endpoint.
func NewGoogleSpeechClient(ctx context.Context, cfg *SpeechBackend, opts ...option.ClientOption) (*GoogleSpeechClient, error) {
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeechClient{client: c, cfg: cfg}, nil
}

func (g *GoogleSpeechClient) Close() error {
	return g.client.Close()
}

// TranscribeBytes runs a long-running recognition over the payload and
// concatenates the top alternative of every result into a single transcript.
func (g *GoogleSpeechClient) TranscribeBytes(ctx context.Context, data []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	cfg := &speechpb.RecognitionConfig{
		// Encoding stays unspecified for container formats; the backend
		// sniffs the header.
		LanguageCode:               g.cfg.LanguageCode,
		Model:                      g.cfg.Model,
		EnableAutomaticPunctuation: true,
	}

	op, err := g.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	})
	if err != nil {
		return "", err
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(result.Alternatives[0].Transcript)
	}
	return sb.String(), nil
}
