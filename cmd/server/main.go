// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point for the reel-match server.
//
// The server exposes a small REST API for submitting reels and retrieving
// finished runs, runs the matching pipeline out-of-band for webhook
// deliveries and synchronously for direct submissions, and listens on a
// Pub/Sub subscription carrying the same trigger payloads. It is
// instrumented with OpenTelemetry tracing and metrics and logs structured
// JSON compatible with Cloud Logging.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
	"github.com/mediareel/go-reel-match/internal/telemetry"
)

// main wires logging, telemetry, state, routes, and listeners, then serves
// until interrupted.
func main() {
	telemetry.SetupLogging()
	slog.Info("Logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := GetConfig()

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	slog.Info("Tracing initialized")

	InitState(ctx)
	slog.Info("Initialized State")

	r := gin.Default()
	r.Use(otelgin.Middleware("reel-match-server"))
	r.Use(cors.Default())

	apiV1 := r.Group("/api/v1")
	{
		ReelRouter(apiV1)
		RunRouter(apiV1)
	}

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous runs span several backend calls
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to listen", "error", err)
		}
	}()
	slog.Info("Server Ready on port 8080")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("Telemetry Shutdown Failed", "error", err)
	}
	state.cloud.Close()

	log.Println("Server exiting")
}

// ReelRouter sets up the submission endpoints.
//
// POST /webhook acknowledges immediately with {"status":"ok"} and runs the
// pipeline out-of-band, even when the payload later fails internally, so the
// upstream delivery system does not retry transient faults indefinitely.
//
// POST /reels runs the pipeline synchronously and returns the full run
// document, with the status code classifying any fatal stage error.
func ReelRouter(r *gin.RouterGroup) {
	r.POST("/webhook", func(c *gin.Context) {
		payload, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
			return
		}

		// Ack first; the run happens on a background context detached from
		// this request.
		c.JSON(http.StatusOK, gin.H{"status": "ok"})

		go func() {
			run := executePipeline(context.Background(), string(payload))
			if run == nil {
				slog.Warn("webhook payload did not produce a run")
				return
			}
			slog.Info("webhook run finished", "run_id", run.ID, "state", run.State)
		}()
	})

	r.POST("/reels", func(c *gin.Context) {
		var trigger model.ReelTrigger
		if err := c.ShouldBindJSON(&trigger); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trigger payload"})
			return
		}
		payload, _ := json.Marshal(trigger)

		run := executePipeline(c.Request.Context(), string(payload))
		if run == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "trigger could not be processed"})
			return
		}
		if run.Error != nil {
			c.JSON(model.StatusForReason(run.Error.Reason), run)
			return
		}
		c.JSON(http.StatusOK, run)
	})
}

// RunRouter sets up retrieval of persisted runs.
func RunRouter(r *gin.RouterGroup) {
	r.GET("/runs/:id", func(c *gin.Context) {
		id := c.Param("id")
		run, err := state.runService.Get(c, id)
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.JSON(http.StatusOK, run)
	})
}

// executePipeline runs one submission payload through the workflow chain and
// returns the structured run, nil only when the trigger never parsed.
func executePipeline(ctx context.Context, payload string) *model.PipelineRun {
	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(ctx)
	chainCtx.Add(cor.CtxIn, payload)

	state.reelWorkflow.Execute(chainCtx)

	if chainCtx.HasErrors() {
		for name, err := range chainCtx.GetErrors() {
			slog.WarnContext(ctx, "pipeline command error", "command", name, "error", err)
		}
	}
	return state.reelWorkflow.GetRun(chainCtx)
}
