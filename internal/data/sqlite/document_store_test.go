package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/household-ledger/internal/domain/shared"
	"github.com/household-ledger/internal/platform/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// DocumentStoreTestSuite runs the local store against an in-memory database.
type DocumentStoreTestSuite struct {
	suite.Suite
	store *DocumentStore
	ctx   context.Context
}

func (suite *DocumentStoreTestSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := NewDocumentStore(logger, ":memory:", docstore.NewHub(8))
	require.NoError(suite.T(), err, "failed to create test store")
	suite.store = store
	suite.ctx = context.Background()
}

func (suite *DocumentStoreTestSuite) TearDownTest() {
	if suite.store != nil {
		suite.store.Close()
	}
}

func (suite *DocumentStoreTestSuite) TestGetMissing() {
	_, err := suite.store.Get(suite.ctx, "ledgers", "nope")
	assert.ErrorIs(suite.T(), err, shared.ErrNotFound)
}

func (suite *DocumentStoreTestSuite) TestSetReplaceAndMerge() {
	t := suite.T()
	require.NoError(t, suite.store.Set(suite.ctx, "users", "u1", json.RawMessage(`{"uid":"u1","displayName":"Ann"}`), false))
	require.NoError(t, suite.store.Set(suite.ctx, "users", "u1", json.RawMessage(`{"lastLedgerId":"l1"}`), true))

	doc, err := suite.store.Get(suite.ctx, "users", "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"uid":"u1","displayName":"Ann","lastLedgerId":"l1"}`, string(doc.Data))
	assert.Equal(t, int64(2), doc.Version)

	require.NoError(t, suite.store.Set(suite.ctx, "users", "u1", json.RawMessage(`{"uid":"u1"}`), false))
	doc, err = suite.store.Get(suite.ctx, "users", "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"uid":"u1"}`, string(doc.Data))
}

func (suite *DocumentStoreTestSuite) TestRunAtomicUpdate() {
	t := suite.T()
	doc, err := suite.store.RunAtomicUpdate(suite.ctx, "ledgers", "l1", func(current *docstore.Document) (json.RawMessage, error) {
		assert.Nil(t, current)
		return json.RawMessage(`{"count":1}`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)

	unchanged, err := suite.store.RunAtomicUpdate(suite.ctx, "ledgers", "l1", func(current *docstore.Document) (json.RawMessage, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), unchanged.Version)

	rejected := errors.New("rejected")
	_, err = suite.store.RunAtomicUpdate(suite.ctx, "ledgers", "l1", func(*docstore.Document) (json.RawMessage, error) {
		return nil, rejected
	})
	assert.Equal(t, rejected, err)
}

func (suite *DocumentStoreTestSuite) TestConcurrentIncrementsAreSerialized() {
	t := suite.T()
	type counter struct {
		Count int `json:"count"`
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := docstore.UpdateAs(suite.ctx, suite.store, "counters", "c", func(cur *counter) (*counter, error) {
				if cur == nil {
					cur = &counter{}
				}
				cur.Count++
				return cur, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := docstore.GetAs[counter](suite.ctx, suite.store, "counters", "c")
	require.NoError(t, err)
	assert.Equal(t, 20, got.Count)
}

func (suite *DocumentStoreTestSuite) TestDeleteLedgerCascades() {
	t := suite.T()
	require.NoError(t, suite.store.Set(suite.ctx, "ledgers", "l1", json.RawMessage(`{}`), false))
	require.NoError(t, suite.store.Set(suite.ctx, docstore.TransactionsCollection("l1"), "t1", json.RawMessage(`{}`), false))
	require.NoError(t, suite.store.Set(suite.ctx, docstore.TemplatesCollection("l1"), "r1", json.RawMessage(`{}`), false))
	require.NoError(t, suite.store.Set(suite.ctx, docstore.TransactionsCollection("l2"), "t2", json.RawMessage(`{}`), false))

	require.NoError(t, suite.store.Delete(suite.ctx, "ledgers", "l1"))

	txs, err := suite.store.List(suite.ctx, docstore.TransactionsCollection("l1"))
	require.NoError(t, err)
	assert.Empty(t, txs)
	templates, err := suite.store.List(suite.ctx, docstore.TemplatesCollection("l1"))
	require.NoError(t, err)
	assert.Empty(t, templates)
	other, err := suite.store.List(suite.ctx, docstore.TransactionsCollection("l2"))
	require.NoError(t, err)
	assert.Len(t, other, 1)

	assert.NoError(t, suite.store.Delete(suite.ctx, "ledgers", "l1"))
}

func (suite *DocumentStoreTestSuite) TestDeleteLedgerIsAllOrNothing() {
	t := suite.T()
	require.NoError(t, suite.store.Set(suite.ctx, "ledgers", "l1", json.RawMessage(`{"name":"Home"}`), false))
	require.NoError(t, suite.store.Set(suite.ctx, docstore.TemplatesCollection("l1"), "r1", json.RawMessage(`{}`), false))

	// Make the sub-collection delete fail after the ledger row is already gone.
	_, err := suite.store.conn.ExecContext(suite.ctx, `CREATE TRIGGER keep_templates BEFORE DELETE ON documents
		WHEN OLD.collection = 'ledgers/l1/recurringTemplates'
		BEGIN SELECT RAISE(ABORT, 'templates are locked'); END`)
	require.NoError(t, err)

	err = suite.store.Delete(suite.ctx, "ledgers", "l1")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrPersistenceUnavailable)

	doc, err := suite.store.Get(suite.ctx, "ledgers", "l1")
	require.NoError(t, err, "the ledger row is rolled back with the failed cascade")
	assert.JSONEq(t, `{"name":"Home"}`, string(doc.Data))
	templates, err := suite.store.List(suite.ctx, docstore.TemplatesCollection("l1"))
	require.NoError(t, err)
	assert.Len(t, templates, 1)

	_, err = suite.store.conn.ExecContext(suite.ctx, `DROP TRIGGER keep_templates`)
	require.NoError(t, err)
	require.NoError(t, suite.store.Delete(suite.ctx, "ledgers", "l1"))
	_, err = suite.store.Get(suite.ctx, "ledgers", "l1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func (suite *DocumentStoreTestSuite) TestSubscribeDeliversInitialStateAndChanges() {
	t := suite.T()
	require.NoError(t, suite.store.Set(suite.ctx, "ledgers", "l1", json.RawMessage(`{"name":"Home"}`), false))

	sub, err := suite.store.Subscribe(suite.ctx, docstore.Target{Collection: "ledgers", ID: "l1"})
	require.NoError(t, err)
	defer sub.Close()

	next := func() docstore.Snapshot {
		select {
		case snap := <-sub.C:
			return snap
		case <-time.After(time.Second):
			t.Fatal("no snapshot delivered")
			return docstore.Snapshot{}
		}
	}

	first := next()
	require.NotNil(t, first.Document)
	assert.JSONEq(t, `{"name":"Home"}`, string(first.Document.Data))

	require.NoError(t, suite.store.Set(suite.ctx, "ledgers", "l1", json.RawMessage(`{"name":"Trip"}`), true))
	second := next()
	assert.JSONEq(t, `{"name":"Trip"}`, string(second.Document.Data))

	require.NoError(t, suite.store.Delete(suite.ctx, "ledgers", "l1"))
	assert.True(t, next().Deleted)

	sub.Close()
	_, ok := <-sub.C
	assert.False(t, ok)
}

func (suite *DocumentStoreTestSuite) TestListIsOrdered() {
	t := suite.T()
	for _, id := range []string{"b", "c", "a"} {
		require.NoError(t, suite.store.Set(suite.ctx, "users", id, json.RawMessage(`{}`), false))
	}
	docs, err := suite.store.List(suite.ctx, "users")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})
}

func TestDocumentStoreTestSuite(t *testing.T) {
	suite.Run(t, new(DocumentStoreTestSuite))
}
