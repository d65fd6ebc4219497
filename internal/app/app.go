package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/calcgrid/internal/action"
	"github.com/vk/calcgrid/internal/config"
	"github.com/vk/calcgrid/internal/ctxlog"
	"github.com/vk/calcgrid/internal/eventbus"
	"github.com/vk/calcgrid/internal/globals"
	"github.com/vk/calcgrid/internal/inmemorystore"
	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/session"
	"github.com/vk/calcgrid/internal/snapshotstore"
	"github.com/vk/calcgrid/internal/sqlitestore"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	ctx    context.Context
	config *config.Model
	env    *model.Environment

	// Opened on first use by the commands that need them.
	store    snapshotstore.Store
	hub      *eventbus.Hub
	redis    *eventbus.Redis
	sessions *session.Manager

	healthServer *http.Server
}

// NewApp is the constructor for the main application. It loads the config
// file, overlays the command-line settings and builds the model environment
// with the configured globals. A configuration error is fatal and panics.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader) *App {
	bootLogger := newLogger(config.Logging{Level: appConfig.LogLevel, Format: appConfig.LogFormat}, outW)
	ctx := ctxlog.WithLogger(context.Background(), bootLogger)

	cfgModel, err := loader.Load(ctx, appConfig.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	if err := appConfig.apply(cfgModel); err != nil {
		panic(fmt.Errorf("invalid configuration: %w", err))
	}

	logger := newLogger(cfgModel.Logging, outW)
	ctx = ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	resolver := globals.Default()
	cfgModel.RegisterGlobals(resolver)
	resolver.Seal()
	logger.Debug("Globals registered.", "values", cfgModel.GlobalNames(), "functions", len(resolver.FunctionNames()))

	return &App{
		outW:   outW,
		logger: logger,
		ctx:    ctx,
		config: cfgModel,
		env:    action.NewEnvironment(resolver),
	}
}

// Config returns the resolved configuration. This is primarily for testing.
func (a *App) Config() *config.Model {
	return a.config
}

// Environment returns the model environment shared by every document.
func (a *App) Environment() *model.Environment {
	return a.env
}

// Context returns the application context carrying its logger.
func (a *App) Context() context.Context {
	return a.ctx
}

// open connects the snapshot store and the event publishers and starts the
// session manager. It is a no-op once done.
func (a *App) open(ctx context.Context) error {
	if a.sessions != nil {
		return nil
	}
	ctx = ctxlog.WithLogger(ctx, a.logger)

	switch a.config.Store.Driver {
	case config.StoreSQLite:
		store, err := sqlitestore.New(ctx, a.config.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		a.store = store
		a.logger.Debug("SQLite snapshot store opened.", "path", a.config.Store.Path)
	default:
		a.store = inmemorystore.New()
		a.logger.Debug("In-memory snapshot store opened.")
	}

	a.hub = eventbus.NewHub()
	var publisher eventbus.Publisher = a.hub
	if a.config.Redis != nil && a.config.Redis.URL != "" {
		prefix := a.config.Redis.ChannelPrefix
		if prefix == "" {
			prefix = eventbus.DefaultChannelPrefix
		}
		r, err := eventbus.Dial(ctx, a.config.Redis.URL, prefix)
		if err != nil {
			_ = a.store.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redis = r
		publisher = eventbus.Fanout{a.hub, r}
		a.logger.Info("📡 Publishing change events to Redis", "prefix", prefix)
	}

	a.sessions = session.NewManager(a.ctx, a.env, a.store, publisher)
	return nil
}

// Close saves and closes open documents and releases the store and the
// Redis connection.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.sessions != nil {
		errs = append(errs, a.sessions.Close(ctxlog.WithLogger(ctx, a.logger)))
		a.sessions = nil
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
		a.redis = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	return errors.Join(errs...)
}
