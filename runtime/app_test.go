package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	items []RawDefinition
	err   error
}

func (s *staticSource) List(ctx context.Context) ([]RawDefinition, error) {
	return s.items, s.err
}

// echoExecutor copies the "greeting" binding and the "who" input into output.
var echoExecutor = StepExecutorFunc(func(ctx context.Context, exec *Execution, step Step) error {
	greeting, _ := exec.String("greeting")
	who, _ := exec.String("who")
	exec.SetOutput(greeting + " " + who)
	return nil
})

func newTestApp(t *testing.T, source DefinitionSource, opts ...AppOption) *App {
	t.Helper()
	registry := NewRegistry(testLogger())
	registry.Register("echo", echoExecutor)
	dispatcher := NewDispatcher(testLogger(), registry, &stubCompiler{factory: okFactory})
	return NewApp(testLogger(), source, NewLoader(testLogger()), dispatcher, opts...)
}

func helloSource() *staticSource {
	return &staticSource{items: []RawDefinition{
		{Text: []byte("name: hello\ninputs:\n  - who: world\nsteps:\n  - name: say\n    engine: echo\n  - name: ui\n    engine: render\n    source: x\n"), Locator: "hello.yaml"},
		{Text: []byte("not: valid"), Locator: "bad.yaml"},
	}}
}

func TestApp_ReloadAndExecute(t *testing.T) {
	app := newTestApp(t, helloSource(), WithBinding("greeting", "hello"))
	require.NoError(t, app.Reload(context.Background()))

	assert.Equal(t, []string{"hello"}, app.Catalog.Names())

	exec, err := app.Execute(context.Background(), "hello", nil, nil)
	require.NoError(t, err)
	// the render step ran after echo and took over output
	_, isFactory := exec.Output().(ComponentFactory)
	assert.True(t, isFactory)

	exec, err = app.Execute(context.Background(), "hello", map[string]any{"who": "ada"},
		map[string]any{"greeting": "hi"},
	)
	require.NoError(t, err)
	assert.Equal(t, "hi", exec.Values()["greeting"])
	assert.Equal(t, "ada", exec.Values()["who"])
}

func TestApp_UnknownWorkflow(t *testing.T) {
	app := newTestApp(t, helloSource())
	require.NoError(t, app.Reload(context.Background()))

	_, err := app.Execute(context.Background(), "nope", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
	_, err = app.Render(context.Background(), "nope", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
}

func TestApp_Render(t *testing.T) {
	app := newTestApp(t, helloSource())
	require.NoError(t, app.Reload(context.Background()))

	result, err := app.Render(context.Background(), "hello", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "world", result.Props["who"])
}

func TestApp_ReloadSourceFailureKeepsCatalog(t *testing.T) {
	source := helloSource()
	app := newTestApp(t, source)
	require.NoError(t, app.Reload(context.Background()))

	source.err = errors.New("bucket offline")
	assert.Error(t, app.Reload(context.Background()))
	assert.Equal(t, 1, app.Catalog.Len())
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(map[string]*Workflow{
		"b": {Name: "b"},
		"a": {Name: "a", Inputs: []Input{{Name: "x"}}},
	})

	assert.Equal(t, []string{"a", "b"}, c.Names())
	tools := c.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "a", tools[0].Name)
	assert.Equal(t, []string{"x"}, tools[0].Parameters.Required)

	c.Replace(nil)
	assert.Equal(t, 0, c.Len())
	_, err := c.Get("a")
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
}
