package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/household-ledger/internal/domain/shared"
	"github.com/household-ledger/internal/platform/docstore"
	"github.com/household-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

// DocumentStore implements docstore.Port on the documents table.
type DocumentStore struct {
	db     persistence.TxBeginner
	hub    *docstore.Hub
	retry  docstore.RetryPolicy
	logger *slog.Logger
}

// NewDocumentStore creates the authoritative remote store. Changes committed by this
// process are published on hub directly; changes from other processes arrive through
// the ChangeListener.
func NewDocumentStore(logger *slog.Logger, db *persistence.PostgresDB, hub *docstore.Hub, retry docstore.RetryPolicy) *DocumentStore {
	return &DocumentStore{
		db:     db.Pool(),
		hub:    hub,
		retry:  retry,
		logger: logger,
	}
}

var _ docstore.Port = (*DocumentStore)(nil)

// callbackError carries an error produced by an UpdateFunc through the
// transaction and retry layers untouched.
type callbackError struct{ err error }

func (e callbackError) Error() string { return e.err.Error() }
func (e callbackError) Unwrap() error { return e.err }

func (s *DocumentStore) Mode() string {
	return docstore.ModeRemote
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	doc, err := s.get(ctx, s.db, collection, id, false)
	if err != nil {
		s.logger.Error("Failed to get document", "collection", collection, "id", id, "error", err)
		return nil, shared.Unavailable("get", err)
	}
	if doc == nil {
		return nil, docstore.NotFound(collection, id)
	}
	return doc, nil
}

func (s *DocumentStore) get(ctx context.Context, q persistence.Querier, collection, id string, forUpdate bool) (*docstore.Document, error) {
	query := `
		SELECT data, version, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
	`
	if forUpdate {
		query += "FOR UPDATE\n"
	}

	doc := &docstore.Document{Collection: collection, ID: id}
	var data []byte
	err := q.QueryRow(ctx, query, collection, id).Scan(&data, &doc.Version, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s/%s: %w", collection, id, err)
	}
	doc.Data = json.RawMessage(data)
	return doc, nil
}

// Set writes data to collection/id. With merge the top-level keys of data are
// laid over the stored object instead of replacing it.
func (s *DocumentStore) Set(ctx context.Context, collection, id string, data json.RawMessage, merge bool) error {
	query := `
		INSERT INTO documents (collection, id, data, version, updated_at)
		VALUES ($1, $2, $3::jsonb, 1, now())
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, version = documents.version + 1, updated_at = now()
		RETURNING data, version, updated_at
	`
	if merge {
		query = `
		INSERT INTO documents (collection, id, data, version, updated_at)
		VALUES ($1, $2, $3::jsonb, 1, now())
		ON CONFLICT (collection, id) DO UPDATE
		SET data = documents.data || EXCLUDED.data, version = documents.version + 1, updated_at = now()
		RETURNING data, version, updated_at
	`
	}

	doc := &docstore.Document{Collection: collection, ID: id}
	var stored []byte
	err := s.db.QueryRow(ctx, query, collection, id, string(data)).Scan(&stored, &doc.Version, &doc.UpdatedAt)
	if err != nil {
		s.logger.Error("Failed to set document", "collection", collection, "id", id, "merge", merge, "error", err)
		return shared.Unavailable("set", fmt.Errorf("failed to write document %s/%s: %w", collection, id, err))
	}
	doc.Data = json.RawMessage(stored)
	s.hub.Publish(docstore.Snapshot{Collection: collection, ID: id, Document: doc})
	return nil
}

// RunAtomicUpdate reads collection/id under a row lock, applies fn and writes the
// result guarded on the version that was read. Lost races on creation and
// serialization failures are retried under the store's RetryPolicy.
func (s *DocumentStore) RunAtomicUpdate(ctx context.Context, collection, id string, fn docstore.UpdateFunc) (*docstore.Document, error) {
	var (
		result  *docstore.Document
		changed bool
	)
	err := s.retry.Do(ctx, retryableUpdateError, func() error {
		changed = false
		return persistence.RunInTx(ctx, s.db, func(tx pgx.Tx) error {
			current, err := s.get(ctx, tx, collection, id, true)
			if err != nil {
				return err
			}
			next, err := fn(current)
			if err != nil {
				return callbackError{err: err}
			}
			if next == nil {
				result = current
				return nil
			}
			if current == nil {
				result, err = s.insertIfAbsent(ctx, tx, collection, id, next)
			} else {
				result, err = s.updateAtVersion(ctx, tx, current, next)
			}
			changed = err == nil
			return err
		})
	})
	if err != nil {
		var cbErr callbackError
		if errors.As(err, &cbErr) {
			return nil, cbErr.err
		}
		s.logger.Error("Atomic update failed", "collection", collection, "id", id, "error", err)
		return nil, shared.Unavailable("runAtomicUpdate", err)
	}
	if changed {
		s.hub.Publish(docstore.Snapshot{Collection: collection, ID: id, Document: result})
	}
	return result, nil
}

func retryableUpdateError(err error) bool {
	return docstore.IsConflict(err) || persistence.IsRetryableTxError(err)
}

func (s *DocumentStore) insertIfAbsent(ctx context.Context, tx pgx.Tx, collection, id string, data json.RawMessage) (*docstore.Document, error) {
	query := `
		INSERT INTO documents (collection, id, data, version, updated_at)
		VALUES ($1, $2, $3::jsonb, 1, now())
		ON CONFLICT (collection, id) DO NOTHING
		RETURNING version, updated_at
	`
	doc := &docstore.Document{Collection: collection, ID: id, Data: data}
	err := tx.QueryRow(ctx, query, collection, id, string(data)).Scan(&doc.Version, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Another writer created the document between our read and insert.
		return nil, docstore.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *DocumentStore) updateAtVersion(ctx context.Context, tx pgx.Tx, current *docstore.Document, data json.RawMessage) (*docstore.Document, error) {
	query := `
		UPDATE documents
		SET data = $3::jsonb, version = version + 1, updated_at = now()
		WHERE collection = $1 AND id = $2 AND version = $4
		RETURNING version, updated_at
	`
	doc := &docstore.Document{Collection: current.Collection, ID: current.ID, Data: data}
	err := tx.QueryRow(ctx, query, current.Collection, current.ID, string(data), current.Version).Scan(&doc.Version, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, docstore.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update document %s/%s: %w", current.Collection, current.ID, err)
	}
	return doc, nil
}

// Delete removes collection/id. Deleting a missing document is not an error.
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	query := `
		DELETE FROM documents
		WHERE collection = $1 AND id = $2
	`
	result, err := s.db.Exec(ctx, query, collection, id)
	if err != nil {
		s.logger.Error("Failed to delete document", "collection", collection, "id", id, "error", err)
		return shared.Unavailable("delete", fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err))
	}
	if result.RowsAffected() > 0 {
		s.hub.Publish(docstore.Snapshot{Collection: collection, ID: id, Deleted: true})
	}
	return nil
}

// List returns every document of collection ordered by id.
func (s *DocumentStore) List(ctx context.Context, collection string) ([]*docstore.Document, error) {
	query := `
		SELECT id, data, version, updated_at
		FROM documents
		WHERE collection = $1
		ORDER BY id ASC
	`
	rows, err := s.db.Query(ctx, query, collection)
	if err != nil {
		s.logger.Error("Failed to list documents", "collection", collection, "error", err)
		return nil, shared.Unavailable("list", fmt.Errorf("failed to list %s: %w", collection, err))
	}
	defer rows.Close()

	var docs []*docstore.Document
	for rows.Next() {
		doc := &docstore.Document{Collection: collection}
		var data []byte
		if err := rows.Scan(&doc.ID, &data, &doc.Version, &doc.UpdatedAt); err != nil {
			return nil, shared.Unavailable("list", fmt.Errorf("failed to scan document: %w", err))
		}
		doc.Data = json.RawMessage(data)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Unavailable("list", fmt.Errorf("error iterating over %s: %w", collection, err))
	}
	return docs, nil
}

// Subscribe registers target on the hub and immediately delivers its current state.
func (s *DocumentStore) Subscribe(ctx context.Context, target docstore.Target) (*docstore.Subscription, error) {
	subID, sub := s.hub.Subscribe(ctx, target)
	if err := s.hub.Prime(ctx, s, subID, target); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// Close ends every open subscription. The pool is owned by the caller.
func (s *DocumentStore) Close() error {
	s.hub.Close()
	return nil
}

// publishRemote forwards a change observed in another process.
func (s *DocumentStore) publishRemote(ctx context.Context, change documentChange) {
	if !s.hub.Interested(change.Collection, change.ID) {
		return
	}
	if change.Op == "DELETE" {
		s.hub.Publish(docstore.Snapshot{Collection: change.Collection, ID: change.ID, Deleted: true})
		return
	}
	doc, err := s.get(ctx, s.db, change.Collection, change.ID, false)
	switch {
	case err != nil:
		s.logger.Warn("Failed to load changed document", "collection", change.Collection, "id", change.ID, "error", err)
	case doc == nil:
		// Deleted again before we could read it; the DELETE notification follows.
	default:
		s.hub.Publish(docstore.Snapshot{Collection: change.Collection, ID: change.ID, Document: doc})
	}
}

// documentChange is the payload of a document_changes notification.
type documentChange struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Op         string `json:"op"`
	Version    int64  `json:"version"`
}
