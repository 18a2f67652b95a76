package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
)

// App ties a definition source to a catalog and a dispatcher. Bindings are
// host values (action handlers, settings) merged into every run's extra
// context beneath the caller's own extra values.
type App struct {
	l          *slog.Logger
	source     DefinitionSource
	loader     *Loader
	dispatcher *Dispatcher
	bindings   map[string]any

	Catalog *Catalog
}

type AppOption func(*App)

// WithBinding exposes value to every run under key.
func WithBinding(key string, value any) AppOption {
	return func(a *App) {
		a.bindings[key] = value
	}
}

func NewApp(l *slog.Logger, source DefinitionSource, loader *Loader, dispatcher *Dispatcher, opts ...AppOption) *App {
	app := &App{
		l:          l,
		source:     source,
		loader:     loader,
		dispatcher: dispatcher,
		bindings:   make(map[string]any),
		Catalog:    NewCatalog(nil),
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// Reload reads every definition from the source and replaces the catalog.
// Definitions that fail to load are skipped; only a source failure is
// returned.
func (a *App) Reload(ctx context.Context) error {
	items, err := a.source.List(ctx)
	if err != nil {
		return fmt.Errorf("error listing workflow definitions: %w", err)
	}

	workflows := a.loader.LoadMany(items)
	a.Catalog.Replace(workflows)
	a.l.InfoContext(ctx, fmt.Sprintf("Loaded %d of %d workflow definitions", len(workflows), len(items)))
	return nil
}

func (a *App) Execute(ctx context.Context, name string, inputs, extra map[string]any) (*Execution, error) {
	w, err := a.Catalog.Get(name)
	if err != nil {
		return nil, err
	}
	return a.dispatcher.Execute(ctx, w, inputs, a.extra(extra)), nil
}

// Render returns nil, nil when the workflow produced no component.
func (a *App) Render(ctx context.Context, name string, inputs, extra map[string]any) (*RenderResult, error) {
	w, err := a.Catalog.Get(name)
	if err != nil {
		return nil, err
	}
	return a.dispatcher.ExecuteForComponent(ctx, w, inputs, a.extra(extra)), nil
}

func (a *App) extra(extra map[string]any) map[string]any {
	merged := maps.Clone(a.bindings)
	maps.Copy(merged, extra)
	return merged
}
