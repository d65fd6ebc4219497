// Package session manages the documents open in one process: it opens them
// from a snapshot store on first use, keeps one run context per document
// and writes them back on save and shutdown.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/calcgrid/internal/ctxlog"
	"github.com/vk/calcgrid/internal/eventbus"
	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/runcontext"
	"github.com/vk/calcgrid/internal/snapshotstore"
)

// ErrExists is returned when creating a document under a taken id.
var ErrExists = errors.New("document already exists")

// Manager owns the open documents.
type Manager struct {
	ctx       context.Context
	env       *model.Environment
	store     snapshotstore.Store
	publisher eventbus.Publisher

	mu   sync.Mutex
	docs map[string]*runcontext.Document
}

// NewManager wires a manager. ctx carries the logger documents log with and
// outlives every request. The publisher may be nil.
func NewManager(ctx context.Context, env *model.Environment, store snapshotstore.Store, publisher eventbus.Publisher) *Manager {
	return &Manager{
		ctx:       ctx,
		env:       env,
		store:     store,
		publisher: publisher,
		docs:      make(map[string]*runcontext.Document),
	}
}

// Open returns the open document id, loading it from the store when needed.
func (m *Manager) Open(ctx context.Context, id string) (*runcontext.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		return d, nil
	}

	doc, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := runcontext.Open(m.ctx, id, m.env, doc, m.publisher)
	if err != nil {
		return nil, err
	}
	m.docs[id] = d
	ctxlog.FromContext(ctx).Debug("Document loaded from store.", "document", id)
	return d, nil
}

// Create opens a new document from doc, or an empty one when doc is nil, and
// saves it.
func (m *Manager) Create(ctx context.Context, id string, doc *model.ModelJSON) (*runcontext.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; ok {
		return nil, fmt.Errorf("create %s: %w", id, ErrExists)
	}
	if _, err := m.store.Load(ctx, id); err == nil {
		return nil, fmt.Errorf("create %s: %w", id, ErrExists)
	} else if !errors.Is(err, snapshotstore.ErrNotFound) {
		return nil, err
	}

	if doc == nil {
		doc = model.EmptyModelJSON()
	}
	d, err := runcontext.Open(m.ctx, id, m.env, doc, m.publisher)
	if err != nil {
		return nil, err
	}
	if _, err := m.save(ctx, d); err != nil {
		d.Close()
		return nil, err
	}
	m.docs[id] = d
	return d, nil
}

// Save writes the confirmed model of an open document to the store.
func (m *Manager) Save(ctx context.Context, id string) (snapshotstore.Info, error) {
	m.mu.Lock()
	d, ok := m.docs[id]
	m.mu.Unlock()
	if !ok {
		return snapshotstore.Info{}, fmt.Errorf("save %s: %w", id, snapshotstore.ErrNotFound)
	}
	return m.save(ctx, d)
}

func (m *Manager) save(ctx context.Context, d *runcontext.Document) (snapshotstore.Info, error) {
	doc, err := d.Snapshot()
	if err != nil {
		return snapshotstore.Info{}, fmt.Errorf("snapshot %s: %w", d.ID(), err)
	}
	return m.store.Save(ctx, d.ID(), doc)
}

// Delete closes a document without saving and removes it from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	d, ok := m.docs[id]
	delete(m.docs, id)
	m.mu.Unlock()
	if ok {
		d.Close()
	}
	return m.store.Delete(ctx, id)
}

// OpenIDs returns the ids of the open documents in order.
func (m *Manager) OpenIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns the stored documents.
func (m *Manager) List(ctx context.Context) ([]snapshotstore.Info, error) {
	return m.store.List(ctx)
}

// Close saves and closes every open document. It returns the joined save
// errors; every document is closed regardless.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	docs := m.docs
	m.docs = make(map[string]*runcontext.Document)
	m.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	var errs []error
	for id, d := range docs {
		if _, err := m.save(ctx, d); err != nil {
			errs = append(errs, err)
		}
		d.Close()
		logger.Debug("Document saved and closed.", "document", id)
	}
	return errors.Join(errs...)
}
