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

// Package cor (Chain of Responsibility) provides the building blocks for
// expressing a workflow as an ordered sequence of commands that share a
// context. Commands read their inputs from the context, do their work, and
// write results back for the commands that follow. Chains are themselves
// commands, so workflows compose.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the keys used for the primary data flow inside a
// chain: after each command runs, the value under CtxOut becomes the value
// under CtxIn for the next command.
const (
	CtxIn  = "__IN__"
	CtxOut = "__OUT__"
)

// Context is the shared state for one workflow execution. It carries
// arbitrary key-value data, errors keyed by the command that raised them,
// temp files and closers that must be released on every exit path, and the
// standard Go context for cancellation and trace propagation.
type Context interface {
	SetContext(context context.Context)
	GetContext() context.Context

	// Add stores a value and returns the Context for chaining.
	Add(key string, value interface{}) Context
	Get(key string) interface{}
	Remove(key string)

	// AddError records a command failure. Chains that are not configured to
	// continue on failure stop at the first recorded error.
	AddError(key string, err error)
	GetErrors() map[string]error
	HasErrors() bool

	// AddTempFile tracks a temporary file for removal in Close.
	AddTempFile(file string)
	GetTempFiles() []string

	// AddCloser registers a resource handle (a browser session, an open
	// response body) that Close must release regardless of outcome.
	AddCloser(close func())

	// Close releases all tracked temp files and closers. Defer it at the
	// start of every workflow run.
	Close()
}

// Executable is anything with a core execution step.
type Executable interface {
	Execute(context Context)
}

// Command is an atomic, independently testable unit of work.
type Command interface {
	Executable

	GetName() string
	GetInputParam() string
	GetOutputParam() string

	// IsExecutable reports whether the command can run against the current
	// context state. It is checked before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is a Command that runs an ordered list of child commands.
type Chain interface {
	Command

	// ContinueOnFailure controls whether the chain keeps executing after a
	// command records an error.
	ContinueOnFailure(bool) Chain

	AddCommand(command Command) Chain
}
