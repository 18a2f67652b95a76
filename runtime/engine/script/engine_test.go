package script_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BDNK1/stepflow/runtime"
	"github.com/BDNK1/stepflow/runtime/engine/script"
)

func newEngine() *script.Engine {
	return script.NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func run(t *testing.T, source string, inputs map[string]any) (*runtime.Execution, error) {
	t.Helper()
	exec := runtime.NewExecution(nil, inputs, nil)
	err := newEngine().ExecuteStep(context.Background(), exec, runtime.Step{
		Name:   "s",
		Engine: runtime.EngineScript,
		Source: source,
	})
	return exec, err
}

func TestScriptSetsOutput(t *testing.T) {
	exec, err := run(t, `context["output"] = "hello " + context["name"]`,
		map[string]any{"name": "ada"},
	)
	require.NoError(t, err)
	assert.Equal(t, "hello ada", exec.Output())
}

func TestScriptArithmeticOnInputs(t *testing.T) {
	exec, err := run(t, `context["sum"] = context["a"] + context["b"]`,
		map[string]any{"a": 2, "b": 3},
	)
	require.NoError(t, err)

	sum, err := exec.Int("sum")
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum)

	// untouched inputs keep their Go types
	a, ok := exec.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, a)
}

func TestScriptMutatesNestedMap(t *testing.T) {
	exec, err := run(t, `context["user"]["role"] = "admin"`,
		map[string]any{"user": map[string]any{"name": "ada"}},
	)
	require.NoError(t, err)

	user, err := exec.Map("user")
	require.NoError(t, err)
	assert.Equal(t, "ada", user["name"])
	assert.Equal(t, "admin", user["role"])
}

func TestScriptCallsBoundModule(t *testing.T) {
	var called string
	exec, err := run(t, `context["resp"] = context["http"].get("https://example.com")`,
		map[string]any{
			"http": map[string]any{
				"get": func(url string) (map[string]any, error) {
					called = url
					return map[string]any{"status_code": 200}, nil
				},
			},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", called)

	resp, err := exec.Map("resp")
	require.NoError(t, err)
	assert.Equal(t, int64(200), resp["status_code"])

	// the handler map is untouched and still callable from Go
	handlers, err := exec.Map("http")
	require.NoError(t, err)
	_, isFunc := handlers["get"].(func(string) (map[string]any, error))
	assert.True(t, isFunc)
}

func TestScriptErrorPropagates(t *testing.T) {
	exec, err := run(t, "context[\"before\"] = 1\ncontext[\"fail\"]()\ncontext[\"after\"] = 2",
		map[string]any{
			"fail": func() error { return errors.New("boom") },
		},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	// writes made before the failure are kept
	before, err := exec.Int("before")
	require.NoError(t, err)
	assert.Equal(t, int64(1), before)
	assert.False(t, exec.Has("after"))
}

func TestScriptArityMismatch(t *testing.T) {
	_, err := run(t, `context["fail"](1, 2)`,
		map[string]any{
			"fail": func() error { return nil },
		},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 0 arguments")
}

func TestScriptSandboxHasNoOS(t *testing.T) {
	_, err := run(t, `context["home"] = os.getenv("HOME")`, nil)
	assert.Error(t, err)
}

func TestScriptSyntaxError(t *testing.T) {
	exec, err := run(t, `context["x"] = (`, map[string]any{"x": "kept"})
	require.Error(t, err)

	x, err := exec.String("x")
	require.NoError(t, err)
	assert.Equal(t, "kept", x)
}

func TestScriptDispatchedFailureIsRecorded(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := runtime.NewRegistry(l)
	registry.Register(runtime.EngineScript, script.NewEngine(l))
	d := runtime.NewDispatcher(l, registry, nil)

	w := &runtime.Workflow{
		Name: "wf",
		Steps: []runtime.Step{
			{Name: "first", Engine: runtime.EngineScript, Source: `context["fail"]()`},
			{Name: "second", Engine: runtime.EngineScript, Source: `context["output"] = "recovered"`},
		},
	}
	exec := d.Execute(context.Background(), w, nil, map[string]any{
		"fail": func() error { return errors.New("flaky") },
	})

	assert.Equal(t, "recovered", exec.Output())
	errs, err := exec.List(runtime.ErrorsKey)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	entry := errs[0].(map[string]any)
	assert.Equal(t, "first", entry["step"])
	assert.Equal(t, "runtime", entry["type"])
}

type handle struct{ id int }

func TestScriptLeavesUntouchedValuesAlone(t *testing.T) {
	client := &handle{id: 1}
	callback := func() string { return "hi" }
	tags := []string{"a", "b"}

	exec, err := run(t, `x := 1`, map[string]any{
		"cfg":       map[string]any{"client": client},
		"callbacks": []any{callback},
		"tags":      tags,
	})
	require.NoError(t, err)

	cfg, err := exec.Map("cfg")
	require.NoError(t, err)
	assert.Same(t, client, cfg["client"])

	callbacks, err := exec.List("callbacks")
	require.NoError(t, err)
	require.Len(t, callbacks, 1)
	fn, ok := callbacks[0].(func() string)
	require.True(t, ok, "callback became %T", callbacks[0])
	assert.Equal(t, "hi", fn())

	got, _ := exec.Get("tags")
	assert.Equal(t, tags, got)
}

func TestScriptChangeKeepsUntouchedSiblings(t *testing.T) {
	client := &handle{id: 7}
	callback := func() string { return "hi" }

	exec, err := run(t, `
context["cfg"]["region"] = "eu"
context["callbacks"].append("extra")
`, map[string]any{
		"cfg":       map[string]any{"client": client},
		"callbacks": []any{callback},
	})
	require.NoError(t, err)

	cfg, err := exec.Map("cfg")
	require.NoError(t, err)
	assert.Same(t, client, cfg["client"])
	assert.Equal(t, "eu", cfg["region"])

	callbacks, err := exec.List("callbacks")
	require.NoError(t, err)
	require.Len(t, callbacks, 2)
	_, ok := callbacks[0].(func() string)
	assert.True(t, ok, "callback became %T", callbacks[0])
	assert.Equal(t, "extra", callbacks[1])
}
