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

// Package cor_test verifies the chain-of-responsibility building blocks: the
// output-to-input piping between commands, the error policy, and the context
// cleanup guarantees.
package cor_test

import (
	goctx "context"
	"errors"
	"testing"

	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/zeebo/assert"
)

// appendCommand appends its suffix to the string piped in and emits the
// result, recording that it ran.
type appendCommand struct {
	cor.BaseCommand
	suffix string
	ran    bool
}

func newAppendCommand(name string, suffix string) *appendCommand {
	return &appendCommand{BaseCommand: *cor.NewBaseCommand(name), suffix: suffix}
}

func (c *appendCommand) Execute(context cor.Context) {
	c.ran = true
	in := context.Get(c.GetInputParam()).(string)
	context.Add(c.GetOutputParam(), in+c.suffix)
}

// failingCommand records an error but still passes its input through, the way
// soft-failing pipeline stages keep the shared state flowing.
type failingCommand struct {
	cor.BaseCommand
}

func newFailingCommand(name string) *failingCommand {
	return &failingCommand{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *failingCommand) Execute(context cor.Context) {
	context.AddError(c.GetName(), errors.New("boom"))
	context.Add(c.GetOutputParam(), context.Get(c.GetInputParam()))
}

// silentCommand consumes its input and emits nothing.
type silentCommand struct {
	cor.BaseCommand
}

func newSilentCommand(name string) *silentCommand {
	return &silentCommand{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *silentCommand) Execute(context cor.Context) {}

func newContext(payload string) cor.Context {
	context := cor.NewBaseContext()
	context.SetContext(goctx.Background())
	context.Add(cor.CtxIn, payload)
	return context
}

func TestChainPipesOutputToInput(t *testing.T) {
	first := newAppendCommand("first", "-a")
	second := newAppendCommand("second", "-b")

	chain := cor.NewBaseChain("pipe-test")
	chain.AddCommand(first)
	chain.AddCommand(second)

	context := newContext("start")
	defer context.Close()
	chain.Execute(context)

	assert.False(t, context.HasErrors())
	assert.True(t, first.ran)
	assert.True(t, second.ran)
	// The final output sits under the input key after the last pipe flip.
	assert.Equal(t, "start-a-b", context.Get(cor.CtxIn))
	assert.Nil(t, context.Get(cor.CtxOut))
}

func TestChainStopsAtFirstError(t *testing.T) {
	after := newAppendCommand("after", "-x")

	chain := cor.NewBaseChain("stop-test")
	chain.AddCommand(newFailingCommand("fails"))
	chain.AddCommand(after)

	context := newContext("start")
	defer context.Close()
	chain.Execute(context)

	assert.True(t, context.HasErrors())
	assert.False(t, after.ran)
	assert.NotNil(t, context.GetErrors()["fails"])
}

func TestChainContinueOnFailureKeepsGoing(t *testing.T) {
	after := newAppendCommand("after", "-x")

	chain := cor.NewBaseChain("continue-test")
	chain.ContinueOnFailure(true)
	chain.AddCommand(newFailingCommand("fails"))
	chain.AddCommand(after)

	context := newContext("start")
	defer context.Close()
	chain.Execute(context)

	assert.True(t, context.HasErrors())
	assert.True(t, after.ran)
	assert.Equal(t, "start-x", context.Get(cor.CtxIn))
}

func TestChainSkipsNonExecutableCommand(t *testing.T) {
	// The silent command emits nothing, so the next command finds no input
	// and is skipped without recording an error.
	after := newAppendCommand("after", "-x")

	chain := cor.NewBaseChain("skip-test")
	chain.AddCommand(newSilentCommand("silent"))
	chain.AddCommand(after)

	context := newContext("start")
	defer context.Close()
	chain.Execute(context)

	assert.False(t, after.ran)
	assert.False(t, context.HasErrors())
}

func TestContextRunsClosersInReverseOrder(t *testing.T) {
	order := make([]string, 0, 2)

	context := cor.NewBaseContext()
	context.AddCloser(func() { order = append(order, "first") })
	context.AddCloser(func() { order = append(order, "second") })
	context.Close()

	assert.DeepEqual(t, []string{"second", "first"}, order)
}
