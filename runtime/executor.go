package runtime

import (
	"context"
	"fmt"
	"log/slog"
)

// Dispatcher runs workflow steps in declaration order, routing each one to
// the executor registered for its engine. Step failures never abort a run.
type Dispatcher struct {
	l        *slog.Logger
	registry *Registry
	compiler ComponentCompiler
}

// NewDispatcher wires registry and compiler together. When compiler is set
// and no executor is registered for EngineRender, one backed by compiler is
// added.
func NewDispatcher(l *slog.Logger, registry *Registry, compiler ComponentCompiler) *Dispatcher {
	if compiler != nil && !registry.Registered(EngineRender) {
		registry.Register(EngineRender, &renderExecutor{compiler: compiler})
	}
	return &Dispatcher{
		l:        l,
		registry: registry,
		compiler: compiler,
	}
}

// Registry exposes the engines this dispatcher resolves steps against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Execute runs every step of w against a fresh context and returns it.
// Callers detect degraded runs through the output and errors keys; no
// step failure is returned as an error. ctx is handed to the engines
// untouched: the dispatcher neither cancels nor times out steps itself.
func (d *Dispatcher) Execute(ctx context.Context, w *Workflow, inputs, extra map[string]any) *Execution {
	exec := NewExecution(DefaultInputs(w), inputs, extra)
	l := d.l.With("workflow", w.Name, "execution_id", exec.ID)

	l.InfoContext(ctx, fmt.Sprintf("Executing workflow: %s", w.Name), "steps", len(w.Steps))
	for _, step := range w.Steps {
		executor := d.registry.Resolve(step.Engine)
		if err := d.runStep(ctx, executor, exec, step); err != nil {
			se := NewStepError(step, err)
			l.ErrorContext(ctx, fmt.Sprintf("Step failed: %s", step.Name),
				"step", step.Name,
				"engine", step.Engine,
				"type", se.Type,
				"error", se.message())
			if displaced := exec.recordFailure(se); displaced != nil {
				l.WarnContext(ctx, fmt.Sprintf("Replaced non-list %s value", ErrorsKey),
					"step", step.Name,
					"type", fmt.Sprintf("%T", displaced))
			}
			continue
		}
		l.DebugContext(ctx, fmt.Sprintf("Executed step: %s", step.Name), "engine", step.Engine)
	}
	return exec
}

// ExecuteForComponent builds the initial context and compiles only the first
// render step; no other step runs. It returns nil when the workflow has no
// render step or when nothing could be produced.
func (d *Dispatcher) ExecuteForComponent(ctx context.Context, w *Workflow, inputs, extra map[string]any) *RenderResult {
	if d.compiler == nil {
		d.l.WarnContext(ctx, "No component compiler configured", "workflow", w.Name)
		return nil
	}

	step, ok := firstRenderStep(w)
	if !ok {
		return nil
	}

	exec := NewExecution(DefaultInputs(w), inputs, extra)
	factory := d.compile(ctx, exec, step)
	if factory == nil {
		return nil
	}
	return &RenderResult{
		Component: factory,
		Props:     exec.Values(),
	}
}

func (d *Dispatcher) runStep(ctx context.Context, executor StepExecutor, exec *Execution, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StepError{
				Step:   step.Name,
				Engine: step.Engine,
				Type:   StepErrorPanic,
				Err:    fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return executor.ExecuteStep(ctx, exec, step)
}

func (d *Dispatcher) compile(ctx context.Context, exec *Execution, step Step) (factory ComponentFactory) {
	defer func() {
		if r := recover(); r != nil {
			d.l.ErrorContext(ctx, fmt.Sprintf("Component compilation panicked: %s", step.Name),
				"step", step.Name,
				"execution_id", exec.ID,
				"error", fmt.Sprintf("%v", r))
			factory = nil
		}
	}()
	return d.compiler.CompileAndInvoke(ctx, step.Source, exec)
}

func firstRenderStep(w *Workflow) (Step, bool) {
	for _, step := range w.Steps {
		if step.Engine == EngineRender {
			return step, true
		}
	}
	return Step{}, false
}
