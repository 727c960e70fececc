package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/household-ledger/internal/domain/shared"
	"github.com/household-ledger/internal/platform/docstore"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestStore(t *testing.T) (*DocumentStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store := &DocumentStore{
		db:     mock,
		hub:    docstore.NewHub(4),
		retry:  docstore.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
		logger: newTestLogger(),
	}
	return store, mock
}

func receive(t *testing.T, sub *docstore.Subscription) docstore.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
		return docstore.Snapshot{}
	}
}

const (
	selectDocumentQuery  = `SELECT data, version, updated_at\s+FROM documents\s+WHERE collection = \$1 AND id = \$2`
	selectForUpdateQuery = selectDocumentQuery + `\s+FOR UPDATE`
	insertIfAbsentQuery  = `ON CONFLICT \(collection, id\) DO NOTHING`
	updateAtVersionQuery = `UPDATE documents\s+SET data = \$3::jsonb, version = version \+ 1, updated_at = now\(\)\s+WHERE collection = \$1 AND id = \$2 AND version = \$4`
	replaceDocumentQuery = `SET data = EXCLUDED.data, version = documents.version \+ 1`
	mergeDocumentQuery   = `SET data = documents.data \|\| EXCLUDED.data, version = documents.version \+ 1`
	deleteDocumentQuery  = `DELETE FROM documents\s+WHERE collection = \$1 AND id = \$2`
	listDocumentsQuery   = `SELECT id, data, version, updated_at\s+FROM documents\s+WHERE collection = \$1\s+ORDER BY id ASC`
)

func TestDocumentStore_Get(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("success", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectQuery(selectDocumentQuery).
			WithArgs("ledgers", "l1").
			WillReturnRows(pgxmock.NewRows([]string{"data", "version", "updated_at"}).
				AddRow([]byte(`{"name":"Home"}`), int64(3), now))

		doc, err := store.Get(ctx, "ledgers", "l1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), doc.Version)
		assert.JSONEq(t, `{"name":"Home"}`, string(doc.Data))
		assert.Equal(t, "l1", doc.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectQuery(selectDocumentQuery).WithArgs("ledgers", "missing").WillReturnError(pgx.ErrNoRows)

		doc, err := store.Get(ctx, "ledgers", "missing")
		assert.Nil(t, doc)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.ErrorIs(t, err, shared.NotFoundError{Kind: "ledgers", ID: "missing"})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database failure", func(t *testing.T) {
		store, mock := newTestStore(t)
		dbErr := errors.New("connection reset")
		mock.ExpectQuery(selectDocumentQuery).WithArgs("ledgers", "l1").WillReturnError(dbErr)

		_, err := store.Get(ctx, "ledgers", "l1")
		assert.ErrorIs(t, err, shared.ErrPersistenceUnavailable)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDocumentStore_Set(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("replace publishes the stored document", func(t *testing.T) {
		store, mock := newTestStore(t)
		_, sub := store.hub.Subscribe(ctx, docstore.Target{Collection: "users", ID: "u1"})
		defer sub.Close()

		mock.ExpectQuery(replaceDocumentQuery).
			WithArgs("users", "u1", `{"uid":"u1"}`).
			WillReturnRows(pgxmock.NewRows([]string{"data", "version", "updated_at"}).
				AddRow([]byte(`{"uid":"u1"}`), int64(1), now))

		err := store.Set(ctx, "users", "u1", json.RawMessage(`{"uid":"u1"}`), false)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())

		snap := receive(t, sub)
		assert.Equal(t, int64(1), snap.Document.Version)
	})

	t.Run("merge concatenates objects", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectQuery(mergeDocumentQuery).
			WithArgs("users", "u1", `{"lastLedgerId":"l2"}`).
			WillReturnRows(pgxmock.NewRows([]string{"data", "version", "updated_at"}).
				AddRow([]byte(`{"uid":"u1","lastLedgerId":"l2"}`), int64(4), now))

		err := store.Set(ctx, "users", "u1", json.RawMessage(`{"lastLedgerId":"l2"}`), true)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure is persistence unavailable", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectQuery(replaceDocumentQuery).WillReturnError(errors.New("timeout"))

		err := store.Set(ctx, "users", "u1", json.RawMessage(`{}`), false)
		assert.ErrorIs(t, err, shared.ErrPersistenceUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDocumentStore_RunAtomicUpdate(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	rowColumns := []string{"data", "version", "updated_at"}
	returningColumns := []string{"version", "updated_at"}

	t.Run("creates an absent document", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(selectForUpdateQuery).WithArgs("ledgers", "l1").WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(insertIfAbsentQuery).
			WithArgs("ledgers", "l1", `{"name":"Home"}`).
			WillReturnRows(pgxmock.NewRows(returningColumns).AddRow(int64(1), now))
		mock.ExpectCommit()

		doc, err := store.RunAtomicUpdate(ctx, "ledgers", "l1", func(current *docstore.Document) (json.RawMessage, error) {
			assert.Nil(t, current)
			return json.RawMessage(`{"name":"Home"}`), nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), doc.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("updates guarded on the read version", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(selectForUpdateQuery).WithArgs("ledgers", "l1").
			WillReturnRows(pgxmock.NewRows(rowColumns).AddRow([]byte(`{"name":"Home"}`), int64(2), now))
		mock.ExpectQuery(updateAtVersionQuery).
			WithArgs("ledgers", "l1", `{"name":"Trip"}`, int64(2)).
			WillReturnRows(pgxmock.NewRows(returningColumns).AddRow(int64(3), now))
		mock.ExpectCommit()

		doc, err := store.RunAtomicUpdate(ctx, "ledgers", "l1", func(current *docstore.Document) (json.RawMessage, error) {
			require.NotNil(t, current)
			return json.RawMessage(`{"name":"Trip"}`), nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), doc.Version)
		assert.JSONEq(t, `{"name":"Trip"}`, string(doc.Data))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries after losing a creation race", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(selectForUpdateQuery).WithArgs("users", "u1").WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(insertIfAbsentQuery).WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectQuery(selectForUpdateQuery).WithArgs("users", "u1").
			WillReturnRows(pgxmock.NewRows(rowColumns).AddRow([]byte(`{"uid":"u1"}`), int64(1), now))
		mock.ExpectQuery(updateAtVersionQuery).
			WillReturnRows(pgxmock.NewRows(returningColumns).AddRow(int64(2), now))
		mock.ExpectCommit()

		calls := 0
		doc, err := store.RunAtomicUpdate(ctx, "users", "u1", func(current *docstore.Document) (json.RawMessage, error) {
			calls++
			return json.RawMessage(`{"uid":"u1","lastLedgerId":"l1"}`), nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, int64(2), doc.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("callback errors pass through unwrapped", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(selectForUpdateQuery).WithArgs("ledgers", "l1").
			WillReturnRows(pgxmock.NewRows(rowColumns).AddRow([]byte(`{}`), int64(1), now))
		mock.ExpectRollback()

		violation := shared.InvariantViolationError{Op: "leaveLedger", Reason: "not a member"}
		_, err := store.RunAtomicUpdate(ctx, "ledgers", "l1", func(*docstore.Document) (json.RawMessage, error) {
			return nil, violation
		})
		assert.ErrorIs(t, err, shared.ErrInvariantViolation)
		assert.NotErrorIs(t, err, shared.ErrPersistenceUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no change skips the write", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(selectForUpdateQuery).WithArgs("ledgers", "l1").
			WillReturnRows(pgxmock.NewRows(rowColumns).AddRow([]byte(`{"name":"Home"}`), int64(5), now))
		mock.ExpectCommit()

		doc, err := store.RunAtomicUpdate(ctx, "ledgers", "l1", func(*docstore.Document) (json.RawMessage, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), doc.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up after repeated conflicts", func(t *testing.T) {
		store, mock := newTestStore(t)
		for i := 0; i < 3; i++ {
			mock.ExpectBegin()
			mock.ExpectQuery(selectForUpdateQuery).WillReturnError(pgx.ErrNoRows)
			mock.ExpectQuery(insertIfAbsentQuery).WillReturnError(pgx.ErrNoRows)
			mock.ExpectRollback()
		}

		_, err := store.RunAtomicUpdate(ctx, "users", "u1", func(*docstore.Document) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		})
		assert.ErrorIs(t, err, shared.ErrPersistenceUnavailable)
		assert.ErrorIs(t, err, docstore.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDocumentStore_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	store, mock := newTestStore(t)
	_, sub := store.hub.Subscribe(ctx, docstore.Target{Collection: "ledgers", ID: "l1"})
	defer sub.Close()

	mock.ExpectExec(deleteDocumentQuery).WithArgs("ledgers", "l1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, store.Delete(ctx, "ledgers", "l1"))
	snap := receive(t, sub)
	assert.True(t, snap.Deleted)

	mock.ExpectExec(deleteDocumentQuery).WithArgs("ledgers", "gone").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.NoError(t, store.Delete(ctx, "ledgers", "gone"))

	mock.ExpectQuery(listDocumentsQuery).WithArgs("ledgers/l1/recurringTemplates").
		WillReturnRows(pgxmock.NewRows([]string{"id", "data", "version", "updated_at"}).
			AddRow("t1", []byte(`{"title":"Rent"}`), int64(1), now).
			AddRow("t2", []byte(`{"title":"Gym"}`), int64(2), now))
	docs, err := store.List(ctx, docstore.TemplatesCollection("l1"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "t2", docs[1].ID)
	assert.Equal(t, "ledgers/l1/recurringTemplates", docs[1].Collection)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentStore_Subscribe(t *testing.T) {
	now := time.Now().UTC()

	t.Run("delivers the current document first", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		store, mock := newTestStore(t)
		mock.ExpectQuery(selectDocumentQuery).WithArgs("ledgers", "l1").
			WillReturnRows(pgxmock.NewRows([]string{"data", "version", "updated_at"}).
				AddRow([]byte(`{"name":"Home"}`), int64(1), now))

		sub, err := store.Subscribe(ctx, docstore.Target{Collection: "ledgers", ID: "l1"})
		require.NoError(t, err)
		defer sub.Close()

		snap := receive(t, sub)
		require.NotNil(t, snap.Document)
		assert.Equal(t, int64(1), snap.Document.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing document is reported as deleted", func(t *testing.T) {
		ctx := context.Background()
		store, mock := newTestStore(t)
		mock.ExpectQuery(selectDocumentQuery).WithArgs("ledgers", "l9").WillReturnError(pgx.ErrNoRows)

		sub, err := store.Subscribe(ctx, docstore.Target{Collection: "ledgers", ID: "l9"})
		require.NoError(t, err)
		defer sub.Close()

		assert.True(t, receive(t, sub).Deleted)
	})

	t.Run("cancelling the context closes the stream", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		store, mock := newTestStore(t)
		mock.ExpectQuery(selectDocumentQuery).WillReturnError(pgx.ErrNoRows)

		sub, err := store.Subscribe(ctx, docstore.Target{Collection: "ledgers", ID: "l1"})
		require.NoError(t, err)
		receive(t, sub)
		cancel()

		assert.Eventually(t, func() bool {
			select {
			case _, ok := <-sub.C:
				return !ok
			default:
				return false
			}
		}, time.Second, 10*time.Millisecond)
		assert.Equal(t, 0, store.hub.Len())
	})
}

func TestDocumentStore_PublishRemote(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store, mock := newTestStore(t)

	// Nobody watches l2, so no read is issued.
	store.publishRemote(ctx, documentChange{Collection: "ledgers", ID: "l2", Op: "UPDATE", Version: 2})

	_, sub := store.hub.Subscribe(ctx, docstore.Target{Collection: "ledgers"})
	defer sub.Close()

	mock.ExpectQuery(selectDocumentQuery).WithArgs("ledgers", "l1").
		WillReturnRows(pgxmock.NewRows([]string{"data", "version", "updated_at"}).
			AddRow([]byte(`{"name":"Home"}`), int64(7), now))
	store.publishRemote(ctx, documentChange{Collection: "ledgers", ID: "l1", Op: "UPDATE", Version: 7})
	assert.Equal(t, int64(7), receive(t, sub).Document.Version)

	store.publishRemote(ctx, documentChange{Collection: "ledgers", ID: "l1", Op: "DELETE", Version: 7})
	assert.True(t, receive(t, sub).Deleted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseDocumentChange(t *testing.T) {
	change, err := parseDocumentChange(`{"collection":"ledgers","id":"l1","op":"UPDATE","version":3}`)
	require.NoError(t, err)
	assert.Equal(t, documentChange{Collection: "ledgers", ID: "l1", Op: "UPDATE", Version: 3}, change)

	_, err = parseDocumentChange(`{"collection":"ledgers"}`)
	assert.Error(t, err)

	_, err = parseDocumentChange(`not json`)
	assert.Error(t, err)
}
