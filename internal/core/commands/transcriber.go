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
// workflow. This file defines the speech transcription stage: download the
// video payload, sniff its type, optionally archive it, and submit the bytes
// to the speech backend. The orchestrator treats every failure here as soft;
// the search stage falls back to the title when no transcript exists.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/h2non/filetype"
	"github.com/mediareel/go-reel-match/internal/cloud"
	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
)

// Transcriber downloads the extracted video and turns its speech into text.
type Transcriber struct {
	cor.BaseCommand
	httpClient    *http.Client
	speech        cloud.SpeechClient
	storageClient *storage.Client
	cfg           *cloud.SpeechBackend
	archiveBucket string
}

// NewTranscriber is the constructor for the Transcriber command. The storage
// client may be nil; archiving is skipped when it or the bucket is absent.
func NewTranscriber(
	name string,
	speech cloud.SpeechClient,
	storageClient *storage.Client,
	cfg *cloud.SpeechBackend,
	archiveBucket string) *Transcriber {
	return &Transcriber{
		BaseCommand:   *cor.NewBaseCommand(name),
		httpClient:    &http.Client{},
		speech:        speech,
		storageClient: storageClient,
		cfg:           cfg,
		archiveBucket: archiveBucket,
	}
}

// IsExecutable requires a viable run with an extracted video URL.
func (c *Transcriber) IsExecutable(context cor.Context) bool {
	run := GetPipelineRun(context)
	return runIsViable(context) && run.Source != nil && run.Source.VideoURL != nil
}

// Execute downloads the payload and submits it for recognition. Any failure
// lands in the debug trace and the run continues without a transcript.
func (c *Transcriber) Execute(chainCtx cor.Context) {
	run := GetPipelineRun(chainCtx)
	run.State = model.StateProbingAndTranscribing
	videoURL := *run.Source.VideoURL

	text, byteCount, err := c.transcribe(chainCtx.GetContext(), run, videoURL)
	if err != nil {
		c.GetErrorCounter().Add(chainCtx.GetContext(), 1)
		slog.WarnContext(chainCtx.GetContext(), "transcription failed", "video_url", videoURL, "error", err)
		run.RecordFailure(c.GetName(), model.Reason(err), err.Error())
		chainCtx.Add(c.GetOutputParam(), run)
		return
	}

	c.GetSuccessCounter().Add(chainCtx.GetContext(), 1)
	run.Transcript = &model.Transcript{VideoURL: videoURL, Text: text}
	run.Debug.TranscriptionBytes = byteCount
	chainCtx.Add(c.GetOutputParam(), run)
}

func (c *Transcriber) transcribe(ctx context.Context, run *model.PipelineRun, videoURL string) (string, int, error) {
	data, err := c.download(ctx, videoURL)
	if err != nil {
		return "", 0, err
	}

	// The speech backend rejects oversized payloads; refusing locally saves
	// the upload.
	if c.cfg.MaxPayloadBytes > 0 && int64(len(data)) > c.cfg.MaxPayloadBytes {
		return "", 0, &model.TranscriptionError{
			Reason: model.ReasonServiceError,
			Err:    fmt.Errorf("payload of %d bytes exceeds the %d byte limit", len(data), c.cfg.MaxPayloadBytes),
		}
	}

	mimeType := "video/mp4"
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		mimeType = kind.MIME.Value
	}

	if c.storageClient != nil && len(c.archiveBucket) > 0 {
		c.archive(ctx, run, data, mimeType)
	}

	text, err := c.speech.TranscribeBytes(ctx, data, mimeType)
	if err != nil {
		return "", 0, &model.TranscriptionError{Reason: model.ReasonServiceError, Err: err}
	}
	return text, len(data), nil
}

// download fetches the full binary payload. A non-2xx answer is a
// download_failed transcription error.
func (c *Transcriber) download(ctx context.Context, videoURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.DownloadTimeoutSeconds)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, &model.TranscriptionError{Reason: model.ReasonDownloadFailed, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.TranscriptionError{Reason: model.ReasonDownloadFailed, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.TranscriptionError{
			Reason: model.ReasonDownloadFailed,
			Err:    fmt.Errorf("video fetch returned status %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.TranscriptionError{Reason: model.ReasonDownloadFailed, Err: err}
	}
	return data, nil
}

// archive writes the payload to the configured bucket for later reprocessing.
// Best effort only; a failed archive never blocks recognition.
func (c *Transcriber) archive(ctx context.Context, run *model.PipelineRun, data []byte, mimeType string) {
	ext := "bin"
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		ext = kind.Extension
	}
	objectName := fmt.Sprintf("reels/%s.%s", run.ID, ext)

	writer := c.storageClient.Bucket(c.archiveBucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = mimeType
	if _, err := writer.Write(data); err != nil {
		slog.WarnContext(ctx, "failed to archive media payload", "object", objectName, "error", err)
		_ = writer.Close()
		return
	}
	if err := writer.Close(); err != nil {
		slog.WarnContext(ctx, "failed to finalize media archive", "object", objectName, "error", err)
		return
	}
	run.Debug.ArchiveObject = fmt.Sprintf("gs://%s/%s", c.archiveBucket, objectName)
}
