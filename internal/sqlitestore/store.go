// Package sqlitestore provides a snapshotstore.Store backed by a single SQLite
// file, using the pure Go modernc.org/sqlite driver.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/snapshotstore"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var _ snapshotstore.Store = (*Store)(nil)

// Store persists snapshots in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the database at dbPath, creating it and its directory when
// needed, and runs migrations.
func New(ctx context.Context, dbPath string) (*Store, error) {
	dsn := MemoryPath
	if dbPath != MemoryPath {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite only supports one writer at a time, and every connection to
	// :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		revision TEXT NOT NULL,
		content TEXT NOT NULL,
		saved_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshot_revisions (
		revision TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL,
		saved_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshot_revisions_snapshot_id ON snapshot_revisions(snapshot_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Save upserts the document under id and records the new revision.
func (s *Store) Save(ctx context.Context, id string, doc *model.ModelJSON) (snapshotstore.Info, error) {
	content, err := json.Marshal(doc)
	if err != nil {
		return snapshotstore.Info{}, fmt.Errorf("encode snapshot %s: %w", id, err)
	}
	info := snapshotstore.Info{
		ID:       id,
		Name:     doc.Name,
		Revision: uuid.New().String(),
		SavedAt:  s.now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return snapshotstore.Info{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, name, revision, content, saved_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, revision = excluded.revision,
			content = excluded.content, saved_at = excluded.saved_at`,
		info.ID, info.Name, info.Revision, string(content), info.SavedAt,
	)
	if err != nil {
		return snapshotstore.Info{}, fmt.Errorf("upsert snapshot: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshot_revisions (revision, snapshot_id, saved_at) VALUES (?, ?, ?)`,
		info.Revision, info.ID, info.SavedAt,
	)
	if err != nil {
		return snapshotstore.Info{}, fmt.Errorf("insert revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return snapshotstore.Info{}, fmt.Errorf("commit: %w", err)
	}
	return info, nil
}

// Load returns the document stored under id.
func (s *Store) Load(ctx context.Context, id string) (*model.ModelJSON, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM snapshots WHERE id = ?`, id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load %s: %w", id, snapshotstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return model.ParseModelJSON([]byte(content))
}

// List returns every snapshot ordered by id.
func (s *Store) List(ctx context.Context) ([]snapshotstore.Info, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, revision, saved_at FROM snapshots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []snapshotstore.Info
	for rows.Next() {
		var info snapshotstore.Info
		if err := rows.Scan(&info.ID, &info.Name, &info.Revision, &info.SavedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Revisions returns the revision ids saved under id, oldest first.
func (s *Store) Revisions(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT revision FROM snapshot_revisions WHERE snapshot_id = ? ORDER BY saved_at, rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var rev string
		if err := rows.Scan(&rev); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

// Delete removes the snapshot and its revision history.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", id, snapshotstore.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_revisions WHERE snapshot_id = ?`, id); err != nil {
		return fmt.Errorf("delete revisions: %w", err)
	}
	return tx.Commit()
}
