package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/BDNK1/stepflow/runtime"
	"github.com/BDNK1/stepflow/runtime/actions"
	"github.com/BDNK1/stepflow/runtime/engine"
	"github.com/BDNK1/stepflow/runtime/engine/render"
	"github.com/BDNK1/stepflow/runtime/source"
)

// host is everything one CLI invocation needs to run workflows.
type host struct {
	app     *runtime.App
	render  *render.Service
	closers []io.Closer
}

// wire opens the workflow source and the configured actions, assembles the
// engines and loads the catalog.
func wire(ctx context.Context, c *runtime.Config, l *slog.Logger) (_ *host, err error) {
	h := &host{}
	defer func() {
		if err != nil {
			h.Close()
		}
	}()

	bucket, err := source.Open(ctx, c.Workflows.Source, c.Workflows.Prefix)
	if err != nil {
		return nil, err
	}
	h.closers = append(h.closers, bucket)

	bindings, err := h.openActions(ctx, c.Actions, l)
	if err != nil {
		return nil, err
	}

	h.render = render.NewService(l, render.WithLibrary(bucket.Components))
	dispatcher := engine.NewDispatcher(l, h.render)
	loader := runtime.NewLoader(l, runtime.WithConcurrency(c.Workflows.Concurrency))

	h.app = runtime.NewApp(l, bucket, loader, dispatcher, bindings...)
	if err := h.app.Reload(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *host) openActions(ctx context.Context, c runtime.ActionsConfig, l *slog.Logger) ([]runtime.AppOption, error) {
	var opts []runtime.AppOption

	httpCfg, err := actions.LoadHTTPConfig(c.HTTP)
	if err != nil {
		return nil, err
	}
	if httpCfg.Enabled {
		opts = append(opts, runtime.WithBinding(actions.HTTPBinding, actions.NewHTTP(l, httpCfg).Handlers()))
	}

	pgCfg, err := actions.LoadPostgresConfig(c.Postgres)
	if err != nil {
		return nil, err
	}
	if pgCfg.Enabled {
		pg, err := actions.OpenPostgres(ctx, l, pgCfg)
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, pg)
		opts = append(opts, runtime.WithBinding(actions.PostgresBinding, pg.Handlers()))
	}

	return opts, nil
}

// Close releases everything wire opened, in reverse order.
func (h *host) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i].Close())
	}
	return errors.Join(errs...)
}
