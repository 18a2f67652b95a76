// Package engine assembles the built-in step engines into a dispatcher.
package engine

import (
	"log/slog"

	"github.com/BDNK1/stepflow/runtime"
	"github.com/BDNK1/stepflow/runtime/engine/render"
	"github.com/BDNK1/stepflow/runtime/engine/script"
)

// NewRegistry registers the script engine. The render engine is added by
// the dispatcher from the compiler it is given.
func NewRegistry(l *slog.Logger) *runtime.Registry {
	registry := runtime.NewRegistry(l)
	registry.Register(runtime.EngineScript, script.NewEngine(l))
	return registry
}

// NewDispatcher wires the script engine and svc into one dispatcher. svc is
// shared; pass the same instance to every dispatcher in the process.
func NewDispatcher(l *slog.Logger, svc *render.Service) *runtime.Dispatcher {
	return runtime.NewDispatcher(l, NewRegistry(l), svc)
}
