package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/qtmlab/sweeprig/internal/ctxlog"
	"github.com/qtmlab/sweeprig/internal/instrument"
	"github.com/qtmlab/sweeprig/internal/rig"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	model    *rig.Model
	registry *instrument.Registry
}

// NewApp is the constructor for the main application. It loads and
// validates the rig before any instrument is touched; a failure to load is
// a fatal startup error and panics (recovered in main for a clean exit).
func NewApp(outW io.Writer, config *Config, drivers map[string]instrument.Factory) *App {
	logger := newLogger(config.LogLevel, config.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	model, err := rig.Load(config.RigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load rig: %w", err))
	}
	logger.Debug("Rig loaded.", "devices", len(model.Devices), "measures", len(model.Measures), "plan_steps", len(model.Plan))

	if config.Sample != "" {
		model.Run.Sample = config.Sample
	}
	if config.DataDir != "" {
		model.Run.DataDir = config.DataDir
	}

	reg := instrument.NewRegistry()
	if drivers == nil {
		drivers = coreDrivers
	}
	for name, factory := range drivers {
		if config.DryRun {
			factory = simFactory
		}
		reg.RegisterDriver(name, factory)
	}
	logger.Debug("All drivers registered.", "count", len(drivers), "dry_run", config.DryRun)

	return &App{
		outW:     outW,
		logger:   logger,
		config:   config,
		model:    model,
		registry: reg,
	}
}

// Registry returns the application's device registry. Primarily for testing.
func (a *App) Registry() *instrument.Registry {
	return a.registry
}

// Model returns the loaded rig model. Primarily for testing.
func (a *App) Model() *rig.Model {
	return a.model
}

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Context returns ctx with the app logger attached.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
