// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the snapshotstore.Store interface.
//
// # Characteristics
//
//   - **Ephemeral:** Snapshots live as long as the store value
//   - **Thread-Safe:** Uses sync.Map for lock-free concurrent access in most cases
//   - **Isolated:** Documents are kept in their encoded form, so a caller that
//     changes a loaded document never changes the stored one
//
// # Concurrency Model
//
// Every document is saved from its own run context goroutine and keys are
// independent, which is the access pattern sync.Map is built for.
package inmemorystore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/snapshotstore"
)

// entry is one stored snapshot.
type entry struct {
	info snapshotstore.Info
	raw  []byte
}

var _ snapshotstore.Store = (*Store)(nil)

// Store is an in-memory implementation of snapshotstore.Store.
type Store struct {
	snapshots sync.Map // Key: document id, Value: *entry
	now       func() time.Time
}

// New creates a new, empty in-memory snapshot store.
func New() *Store {
	return &Store{now: time.Now}
}

// Save stores the encoded document under id.
func (s *Store) Save(ctx context.Context, id string, doc *model.ModelJSON) (snapshotstore.Info, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return snapshotstore.Info{}, fmt.Errorf("encode snapshot %s: %w", id, err)
	}
	info := snapshotstore.Info{
		ID:       id,
		Name:     doc.Name,
		Revision: uuid.NewString(),
		SavedAt:  s.now().UTC(),
	}
	s.snapshots.Store(id, &entry{info: info, raw: raw})
	return info, nil
}

// Load decodes the document stored under id.
func (s *Store) Load(ctx context.Context, id string) (*model.ModelJSON, error) {
	v, ok := s.snapshots.Load(id)
	if !ok {
		return nil, fmt.Errorf("load %s: %w", id, snapshotstore.ErrNotFound)
	}
	return model.ParseModelJSON(v.(*entry).raw)
}

// List returns the stored snapshots ordered by id.
func (s *Store) List(ctx context.Context) ([]snapshotstore.Info, error) {
	var out []snapshotstore.Info
	s.snapshots.Range(func(_, v any) bool {
		out = append(out, v.(*entry).info)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes the snapshot stored under id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, loaded := s.snapshots.LoadAndDelete(id); !loaded {
		return fmt.Errorf("delete %s: %w", id, snapshotstore.ErrNotFound)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
