package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// Run is an indexed extraction run.
type Run struct {
	ID        string
	StartedAt time.Time
	Root      string
	Manifest  *types.RunManifest
}

// Store provides persistence for run indexes.
// This interface abstracts the underlying storage implementation,
// allowing for different backends (SQLite, PostgreSQL, memory).
type Store interface {
	// AddRun stores a run, replacing the manifest of an existing run with the same ID.
	AddRun(run *Run) error

	// AddUnit records an emitted unit. seq is the unit's position in the run's stream.
	AddUnit(runID string, seq int, rec types.UnitRecord) error

	// UnitExists checks if a run other than exceptRun has emitted a unit
	// with this blob ID. An empty exceptRun considers every run.
	UnitExists(id types.BlobID, exceptRun string) (bool, error)

	// GetRun retrieves a run by ID.
	GetRun(id string) (*Run, error)

	// GetRuns retrieves all runs, oldest first.
	GetRuns() ([]*Run, error)

	// GetUnits retrieves a run's units in stream order.
	GetUnits(runID string) ([]types.UnitRecord, error)

	// Close closes the database connection.
	Close() error
}

// ErrRunNotFound is returned by GetRun for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// Config for store initialization.
type Config struct {
	// Path is the SQLite database file path.
	// Use ":memory:" for an in-memory store (useful for testing).
	Path string

	// DSN selects PostgreSQL instead of SQLite when it starts with
	// "postgres://" or "postgresql://".
	DSN string
}

// New creates a Store for cfg.
func New(cfg Config) (Store, error) {
	if isPostgresDSN(cfg.DSN) {
		return NewPostgres(cfg.DSN)
	}
	if cfg.DSN != "" {
		return nil, fmt.Errorf("%w: unsupported index DSN %q", types.ErrInvalidConfig, cfg.DSN)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if cfg.Path == ":memory:" {
		return NewMemory(), nil
	}
	return NewSQLite(cfg.Path)
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
