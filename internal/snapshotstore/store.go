// Package snapshotstore defines the interface for persisting the saved form of
// model documents between runs.
//
// # Why Snapshot Store Exists
//
// A confirmed model is an immutable, in-memory value. It is lost when the
// process exits. The snapshot store keeps the JSON document of a model under a
// caller-chosen id so a later session can load it again.
//
// Only documents are stored, never live models: a document is loaded through
// the action pipeline, which recalculates every member, so nothing derived is
// persisted.
//
// # Implementations
//
//   - internal/inmemorystore: ephemeral, for tests and `calcgrid serve` without
//     a database
//   - internal/sqlitestore: a single SQLite file
package snapshotstore

import (
	"context"
	"errors"
	"time"

	"github.com/vk/calcgrid/internal/model"
)

// ErrNotFound is returned by Load and Delete for an unknown id.
var ErrNotFound = errors.New("snapshot not found")

// Info describes a stored snapshot without its content.
type Info struct {
	ID       string
	Name     string
	Revision string
	SavedAt  time.Time
}

// Store persists model documents by id.
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for concurrent use. Documents are saved from
// their own run context goroutines while the HTTP API lists and loads others.
type Store interface {
	// Save writes doc under id, replacing any earlier snapshot. Every save gets
	// a fresh revision.
	Save(ctx context.Context, id string, doc *model.ModelJSON) (Info, error)

	// Load returns the latest document saved under id, or ErrNotFound.
	Load(ctx context.Context, id string) (*model.ModelJSON, error)

	// List returns every stored snapshot ordered by id.
	List(ctx context.Context) ([]Info, error)

	// Delete removes the snapshot under id, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Close releases the resources held by the store.
	Close() error
}
