package runtime

import (
	"context"
	"io"
)

// Parser turns raw definition text into the generic object form that
// Loader normalizes. YAMLParser is the default.
type Parser interface {
	Parse(raw []byte) (map[string]any, error)
}

// StepExecutor executes a single workflow step against the run's context.
// Executors mutate exec in place and return an error for step failures;
// the dispatcher isolates those failures.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, exec *Execution, step Step) error
}

// StepExecutorFunc adapts a plain function to StepExecutor.
type StepExecutorFunc func(ctx context.Context, exec *Execution, step Step) error

func (f StepExecutorFunc) ExecuteStep(ctx context.Context, exec *Execution, step Step) error {
	return f(ctx, exec, step)
}

// ComponentCompiler compiles render step source into a component factory.
// CompileAndInvoke never fails loudly: a nil factory means nothing was
// produced and the reason has already been logged.
type ComponentCompiler interface {
	CompileAndInvoke(ctx context.Context, source string, exec *Execution) ComponentFactory
}

// Renderable is a unit the host UI pipeline can display.
type Renderable interface {
	Render(w io.Writer) error
}

// ComponentFactory yields a renderable unit for the given props.
type ComponentFactory func(props map[string]any) (Renderable, error)

// DefinitionSource supplies raw workflow definitions from storage.
type DefinitionSource interface {
	List(ctx context.Context) ([]RawDefinition, error)
}
