package app

import (
	"context"
	"errors"

	"github.com/vk/calcgrid/internal/ctxlog"
	"github.com/vk/calcgrid/internal/server"
)

// Serve runs the HTTP API and the health check until ctx is cancelled, then
// shuts both down and saves the open documents.
func (a *App) Serve(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	if err := a.open(ctx); err != nil {
		return err
	}

	serveCtx, cancel := context.WithCancel(a.ctx)
	defer cancel()

	a.healthCheckServer()
	srv := server.New(serveCtx, a.sessions, a.hub)
	srv.Start(a.config.Server.Address)

	<-ctx.Done()
	a.logger.Info("🛑 Shutdown requested.")
	cancel()

	var errs []error
	errs = append(errs, srv.Shutdown(context.Background()))
	errs = append(errs, a.closeHealthCheckServer())
	errs = append(errs, a.Close(context.Background()))
	return errors.Join(errs...)
}
