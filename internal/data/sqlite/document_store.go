// Package sqlite holds the local fallback document store used when the remote
// store cannot be reached. It keeps the same logical layout as the remote store
// in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/household-ledger/internal/domain/shared"
	"github.com/household-ledger/internal/platform/docstore"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// DocumentStore implements docstore.Port on a local SQLite database.
type DocumentStore struct {
	conn   *sql.DB
	hub    *docstore.Hub
	logger *slog.Logger
	now    func() time.Time
}

var _ docstore.Port = (*DocumentStore)(nil)

// NewDocumentStore opens (creating if needed) the database at path and runs migrations.
// ":memory:" gives a throwaway store.
func NewDocumentStore(logger *slog.Logger, path string, hub *docstore.Hub) (*DocumentStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases alive.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping local store: %w", err)
	}

	s := &DocumentStore{
		conn:   conn,
		hub:    hub,
		logger: logger,
		now:    time.Now,
	}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("Opened local document store", "path", path)
	return s, nil
}

func (s *DocumentStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.conn.Exec(m); err != nil {
			return fmt.Errorf("failed to migrate local store: %w", err)
		}
	}
	return nil
}

func (s *DocumentStore) Mode() string {
	return docstore.ModeLocal
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *DocumentStore) get(ctx context.Context, q queryRower, collection, id string) (*docstore.Document, error) {
	doc := &docstore.Document{Collection: collection, ID: id}
	var data, updatedAt string
	err := q.QueryRowContext(ctx,
		`SELECT data, version, updated_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data, &doc.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s/%s: %w", collection, id, err)
	}
	doc.Data = json.RawMessage(data)
	if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("document %s/%s has a malformed timestamp: %w", collection, id, err)
	}
	return doc, nil
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	doc, err := s.get(ctx, s.conn, collection, id)
	if err != nil {
		return nil, shared.Unavailable("get", err)
	}
	if doc == nil {
		return nil, docstore.NotFound(collection, id)
	}
	return doc, nil
}

// Set writes data to collection/id; with merge its top-level keys are laid over
// the stored object.
func (s *DocumentStore) Set(ctx context.Context, collection, id string, data json.RawMessage, merge bool) error {
	_, err := s.RunAtomicUpdate(ctx, collection, id, func(current *docstore.Document) (json.RawMessage, error) {
		if merge && current != nil {
			return docstore.MergeJSON(current.Data, data)
		}
		return data, nil
	})
	if err != nil {
		return shared.Unavailable("set", err)
	}
	return nil
}

// RunAtomicUpdate applies fn inside a single SQLite transaction. The store has one
// connection, so no other writer can interleave and no retry is needed.
func (s *DocumentStore) RunAtomicUpdate(ctx context.Context, collection, id string, fn docstore.UpdateFunc) (*docstore.Document, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, shared.Unavailable("runAtomicUpdate", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.get(ctx, tx, collection, id)
	if err != nil {
		return nil, shared.Unavailable("runAtomicUpdate", err)
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, tx.Commit()
	}
	if !json.Valid(next) {
		return nil, fmt.Errorf("document %s/%s: update produced invalid JSON", collection, id)
	}

	doc := &docstore.Document{Collection: collection, ID: id, Data: next, Version: 1, UpdatedAt: s.now().UTC()}
	if current != nil {
		doc.Version = current.Version + 1
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, version, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, version = excluded.version, updated_at = excluded.updated_at`,
		collection, id, string(next), doc.Version, doc.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		s.logger.Error("Failed to write local document", "collection", collection, "id", id, "error", err)
		return nil, shared.Unavailable("runAtomicUpdate", fmt.Errorf("failed to write document %s/%s: %w", collection, id, err))
	}
	if err := tx.Commit(); err != nil {
		return nil, shared.Unavailable("runAtomicUpdate", fmt.Errorf("failed to commit: %w", err))
	}

	s.hub.Publish(docstore.Snapshot{Collection: collection, ID: id, Document: doc})
	return doc, nil
}

// Delete removes collection/id. Deleting a ledger also drops its sub-collections
// in the same transaction.
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return shared.Unavailable("delete", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return shared.Unavailable("delete", fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err))
	}
	if collection == docstore.LedgersCollection {
		_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE collection IN (?, ?)`,
			docstore.TransactionsCollection(id), docstore.TemplatesCollection(id))
		if err != nil {
			return shared.Unavailable("delete", fmt.Errorf("failed to delete sub-collections of %s: %w", id, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return shared.Unavailable("delete", fmt.Errorf("failed to commit: %w", err))
	}

	if n, _ := result.RowsAffected(); n > 0 {
		s.hub.Publish(docstore.Snapshot{Collection: collection, ID: id, Deleted: true})
	}
	return nil
}

func (s *DocumentStore) List(ctx context.Context, collection string) ([]*docstore.Document, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, data, version, updated_at FROM documents WHERE collection = ? ORDER BY id ASC`, collection)
	if err != nil {
		return nil, shared.Unavailable("list", fmt.Errorf("failed to list %s: %w", collection, err))
	}
	defer rows.Close()

	var docs []*docstore.Document
	for rows.Next() {
		doc := &docstore.Document{Collection: collection}
		var data, updatedAt string
		if err := rows.Scan(&doc.ID, &data, &doc.Version, &updatedAt); err != nil {
			return nil, shared.Unavailable("list", fmt.Errorf("failed to scan document: %w", err))
		}
		doc.Data = json.RawMessage(data)
		doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Unavailable("list", err)
	}
	return docs, nil
}

func (s *DocumentStore) Subscribe(ctx context.Context, target docstore.Target) (*docstore.Subscription, error) {
	subID, sub := s.hub.Subscribe(ctx, target)
	if err := s.hub.Prime(ctx, s, subID, target); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// Close ends all subscriptions and closes the database.
func (s *DocumentStore) Close() error {
	s.hub.Close()
	return s.conn.Close()
}
