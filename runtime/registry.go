package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Registry maps engine identifiers to step executors. Identifiers with no
// registered executor resolve to a no-op executor that only logs a warning.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]StepExecutor
	fallback  StepExecutor
}

func NewRegistry(l *slog.Logger) *Registry {
	return &Registry{
		executors: make(map[string]StepExecutor),
		fallback:  &noopExecutor{l: l},
	}
}

func (r *Registry) Register(engine string, executor StepExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[engine] = executor
}

func (r *Registry) Registered(engine string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[engine]
	return ok
}

// Resolve never returns nil.
func (r *Registry) Resolve(engine string) StepExecutor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if executor, ok := r.executors[engine]; ok {
		return executor
	}
	return r.fallback
}

// Engines returns the registered identifiers in sorted order.
func (r *Registry) Engines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

type noopExecutor struct {
	l *slog.Logger
}

func (e *noopExecutor) ExecuteStep(ctx context.Context, exec *Execution, step Step) error {
	e.l.WarnContext(ctx, fmt.Sprintf("Unknown engine %q for step %s, skipping", step.Engine, step.Name),
		"step", step.Name,
		"engine", step.Engine,
		"execution_id", exec.ID)
	return nil
}

// renderExecutor stores the factory produced by a render step under the
// step's name and under output. A nil factory leaves the context untouched.
type renderExecutor struct {
	compiler ComponentCompiler
}

func (e *renderExecutor) ExecuteStep(ctx context.Context, exec *Execution, step Step) error {
	factory := e.compiler.CompileAndInvoke(ctx, step.Source, exec)
	if factory == nil {
		return nil
	}
	exec.Set(step.Name, factory)
	exec.SetOutput(factory)
	return nil
}
