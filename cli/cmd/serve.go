package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BDNK1/stepflow/runtime"
)

const shutdownTimeout = 5 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve workflows over HTTP",
	Long: `Serve exposes the loaded workflows over HTTP:

  GET  /health
  GET  /tools
  GET  /workflows
  GET  /workflows/:name          (?format=yaml for the definition)
  GET  /workflows/:name/tool
  POST /workflows/:name/execute
  POST /workflows/:name/render

SIGHUP reloads definitions from the source; SIGINT and SIGTERM shut down
gracefully.`,
	Args: cobra.NoArgs,
	RunE: serve,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides server.addr")
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.render.EnsureInitialized(ctx); err != nil {
		// render steps retry initialization on first use
		logger.WarnContext(ctx, "Render toolchain not ready", "error", err)
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: runtime.NewServer(logger, h.app, cfg.Server.RunTimeout).SetupRoutes(),
	}

	go reloadOnHangup(ctx, h.app)

	errc := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, fmt.Sprintf("Serving %d workflows on %s", h.app.Catalog.Len(), addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func reloadOnHangup(ctx context.Context, app *runtime.App) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := app.Reload(ctx); err != nil {
				logger.ErrorContext(ctx, "Reload failed, keeping current workflows", "error", err)
			}
		}
	}
}
