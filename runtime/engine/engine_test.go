package engine_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BDNK1/stepflow/runtime"
	"github.com/BDNK1/stepflow/runtime/engine"
	"github.com/BDNK1/stepflow/runtime/engine/render"
)

const greeting = `
name: greeting
description: Greets someone
inputs:
  - who
  - punctuation: "!"
steps:
  - name: prepare
    engine: script
    source: |
      context["message"] = "Hello, " + context["who"] + context["punctuation"]
      context["output"] = context["message"]
  - name: card
    engine: render
    source: |
      el("div", {"class": "card"}, context.message ?? "nothing yet")
  - name: audit
    engine: telemetry
    source: ignored
`

func newDispatcher() *runtime.Dispatcher {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	return engine.NewDispatcher(l, render.NewService(l))
}

func load(t *testing.T, text string) *runtime.Workflow {
	t.Helper()
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := runtime.NewLoader(l).Load(text, "greeting.yaml")
	require.NoError(t, err)
	return w
}

func TestExecuteMixedEngines(t *testing.T) {
	w := load(t, greeting)
	exec := newDispatcher().Execute(context.Background(), w,
		map[string]any{"who": "Ada"}, nil,
	)

	message, err := exec.String("message")
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada!", message)

	// the render step replaced the script's output with its factory
	factory, err := exec.Component("card")
	require.NoError(t, err)
	out, ok := exec.Output().(runtime.ComponentFactory)
	require.True(t, ok)
	assert.NotNil(t, out)

	node, err := factory(nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, node.Render(&buf))
	assert.Equal(t, `<div class="card">Hello, Ada!</div>`, buf.String())

	// unknown engines are skipped without recording an error
	assert.False(t, exec.Has(runtime.ErrorsKey))
}

func TestExecuteForComponentRunsOnlyRenderStep(t *testing.T) {
	w := load(t, greeting)
	result := newDispatcher().ExecuteForComponent(context.Background(), w,
		map[string]any{"who": "Ada"}, nil,
	)
	require.NotNil(t, result)

	// the script step did not run, so message is absent
	_, ok := result.Props["message"]
	assert.False(t, ok)
	assert.Equal(t, "Ada", result.Props["who"])
	assert.Equal(t, "!", result.Props["punctuation"])

	node, err := result.Component(result.Props)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, node.Render(&buf))
	assert.Equal(t, `<div class="card">nothing yet</div>`, buf.String())
}

func TestExecuteForComponentWithoutRenderStep(t *testing.T) {
	w := load(t, `
name: scripted
steps:
  - name: only
    engine: script
    source: context["output"] = 1
`)
	assert.Nil(t, newDispatcher().ExecuteForComponent(context.Background(), w, nil, nil))
}

func TestFailedRenderStepLeavesOutput(t *testing.T) {
	w := load(t, `
name: broken
steps:
  - name: set
    engine: script
    source: context["output"] = "kept"
  - name: bad
    engine: render
    source: el(
`)
	exec := newDispatcher().Execute(context.Background(), w, nil, nil)

	assert.Equal(t, "kept", exec.Output())
	assert.False(t, exec.Has("bad"))
}
