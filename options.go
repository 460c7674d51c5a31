package regdelta

import (
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/regdelta/regdelta/pkg/errors"
	"github.com/regdelta/regdelta/pkg/registry"
	"github.com/regdelta/regdelta/pkg/snapshot"
)

// Option is a function that configures a Tracker instance.
type Option func(*config) error

// config holds the assembled settings for a Tracker before construction.
type config struct {
	schema      *registry.Schema
	schemaFile  string
	snapshotDir string
	changesDir  string
	dbPath      string
	db          *sqlx.DB
	store       snapshot.Store
	workers     int
	ignore      []string
	logger      *zerolog.Logger
}

// WithSchema configures the registry schema used for parsing and diffing.
func WithSchema(schema *registry.Schema) Option {
	return func(c *config) error {
		if schema == nil {
			return &errors.ConfigError{Component: "tracker", Message: "schema must not be nil"}
		}
		c.schema = schema
		return nil
	}
}

// WithSchemaFile configures a YAML schema file to load at construction.
func WithSchemaFile(path string) Option {
	return func(c *config) error {
		if path == "" {
			return &errors.ConfigError{Component: "tracker", Message: "schema file path must not be empty"}
		}
		c.schemaFile = path
		return nil
	}
}

// WithSnapshotDir configures the directory holding snapshot dump files.
func WithSnapshotDir(dir string) Option {
	return func(c *config) error {
		if dir == "" {
			return &errors.ConfigError{Component: "tracker", Message: "snapshot directory must not be empty"}
		}
		c.snapshotDir = dir
		return nil
	}
}

// WithSnapshotStore configures a custom snapshot store, overriding the
// directory-backed default. Useful for tests and alternative layouts.
func WithSnapshotStore(store snapshot.Store) Option {
	return func(c *config) error {
		if store == nil {
			return &errors.ConfigError{Component: "tracker", Message: "snapshot store must not be nil"}
		}
		c.store = store
		return nil
	}
}

// WithChangesDir configures the directory for per-date change artifacts.
func WithChangesDir(dir string) Option {
	return func(c *config) error {
		if dir == "" {
			return &errors.ConfigError{Component: "tracker", Message: "changes directory must not be empty"}
		}
		c.changesDir = dir
		return nil
	}
}

// WithDBPath configures the SQLite database path for the queryable store.
// Pass ":memory:" for an ephemeral store.
func WithDBPath(path string) Option {
	return func(c *config) error {
		if path == "" {
			return &errors.ConfigError{Component: "tracker", Message: "database path must not be empty"}
		}
		c.dbPath = path
		return nil
	}
}

// WithDB configures an existing database handle for the queryable
// store instead of opening one at the configured path. The caller
// keeps ownership of the handle; Tracker.Close will not close it.
func WithDB(db *sqlx.DB) Option {
	return func(c *config) error {
		if db == nil {
			return &errors.ConfigError{Component: "tracker", Message: "database handle must not be nil"}
		}
		c.db = db
		return nil
	}
}

// WithWorkers configures how many goroutines compare overlapping keys.
func WithWorkers(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return &errors.ConfigError{Component: "tracker", Message: "workers must be at least 1"}
		}
		c.workers = n
		return nil
	}
}

// WithIgnoreFields configures additional fields to exclude from comparison.
func WithIgnoreFields(fields ...string) Option {
	return func(c *config) error {
		c.ignore = append(c.ignore, fields...)
		return nil
	}
}

// WithLogger configures the logger used for run progress and sink errors.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return &errors.ConfigError{Component: "tracker", Message: "logger must not be nil"}
		}
		c.logger = logger
		return nil
	}
}
