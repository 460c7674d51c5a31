// Package app provides the application context and dependency management
// for the regdelta CLI. It centralizes configuration, logging, and the
// tracker instance so commands share one set of dependencies.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/regdelta/regdelta"
	"github.com/regdelta/regdelta/pkg/errors"
)

// App represents the regdelta application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string

	// Configuration
	config *Config

	// Logger
	logger *zerolog.Logger

	// Tracker instance (lazy-initialized, singleton)
	mu      sync.Mutex
	tracker *regdelta.Tracker
}

// New creates a new App instance with the given version information.
func New(version, commit, date string) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Tracker returns the tracker instance, creating it lazily if needed.
func (a *App) Tracker() (*regdelta.Tracker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tracker != nil {
		return a.tracker, nil
	}

	tracker, err := regdelta.New(a.buildTrackerOptions()...)
	if err != nil {
		return nil, errors.WrapResource("create", "tracker", "", err)
	}

	a.tracker = tracker
	return tracker, nil
}

// Shutdown releases the tracker's resources.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tracker == nil {
		return nil
	}
	err := a.tracker.Close()
	a.tracker = nil
	return err
}

// buildTrackerOptions constructs tracker options from the app configuration.
func (a *App) buildTrackerOptions() []regdelta.Option {
	opts := []regdelta.Option{
		regdelta.WithLogger(a.logger),
	}

	if a.config.SnapshotDir != "" {
		opts = append(opts, regdelta.WithSnapshotDir(a.config.SnapshotDir))
	}
	if a.config.ChangesDir != "" {
		opts = append(opts, regdelta.WithChangesDir(a.config.ChangesDir))
	}
	if a.config.DBPath != "" {
		opts = append(opts, regdelta.WithDBPath(a.config.DBPath))
	}
	if a.config.SchemaFile != "" {
		opts = append(opts, regdelta.WithSchemaFile(a.config.SchemaFile))
	}
	if a.config.Workers > 0 {
		opts = append(opts, regdelta.WithWorkers(a.config.Workers))
	}
	if len(a.config.IgnoreFields) > 0 {
		opts = append(opts, regdelta.WithIgnoreFields(a.config.IgnoreFields...))
	}

	return opts
}
