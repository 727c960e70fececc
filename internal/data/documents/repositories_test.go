package documents

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/household-ledger/internal/data/sqlite"
	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/profile"
	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/domain/schedule"
	"github.com/household-ledger/internal/domain/shared"
	"github.com/household-ledger/internal/platform/docstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPort(t *testing.T) (docstore.Port, *slog.Logger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := sqlite.NewDocumentStore(logger, ":memory:", docstore.NewHub(8))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, logger
}

var testNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func TestLedgerRepository(t *testing.T) {
	ctx := context.Background()
	port, logger := newTestPort(t)
	repo := NewLedgerRepository(logger, port)

	l := ledger.New("l1", "Home", ledger.Member{UID: "u1"}, []string{"餐飲"}, testNow)
	require.NoError(t, repo.Create(ctx, l))

	err := repo.Create(ctx, l)
	assert.ErrorIs(t, err, shared.ErrInvariantViolation)

	got, err := repo.Get(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "Home", got.Name)
	assert.True(t, got.HasMember("u1"))

	updated, err := repo.Update(ctx, "l1", func(l *ledger.Ledger) error {
		l.AddMember(ledger.Member{UID: "u2"})
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, updated.Members, 2)

	_, err = repo.Update(ctx, "missing", func(*ledger.Ledger) error { return nil })
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestLedgerRepository_Watch(t *testing.T) {
	ctx := context.Background()
	port, logger := newTestPort(t)
	repo := NewLedgerRepository(logger, port)
	require.NoError(t, repo.Create(ctx, ledger.New("l1", "Home", ledger.Member{UID: "u1"}, nil, testNow)))

	stream, err := repo.Watch(ctx, "l1")
	require.NoError(t, err)
	defer stream.Close()

	next := func() ledger.Event {
		select {
		case ev := <-stream.C:
			return ev
		case <-time.After(time.Second):
			t.Fatal("no event")
			return ledger.Event{}
		}
	}

	first := next()
	require.NotNil(t, first.Ledger)
	assert.Equal(t, "Home", first.Ledger.Name)

	_, err = repo.Update(ctx, "l1", func(l *ledger.Ledger) error {
		l.Name = "Trip Fund"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Trip Fund", next().Ledger.Name)

	require.NoError(t, port.Delete(ctx, docstore.LedgersCollection, "l1"))
	assert.True(t, next().Deleted)

	stream.Close()
	stream.Close()
}

func TestProfileRepository(t *testing.T) {
	ctx := context.Background()
	port, logger := newTestPort(t)
	repo := NewProfileRepository(logger, port)
	repo.now = func() time.Time { return testNow }

	_, err := repo.Get(ctx, "u1")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	p, err := repo.Update(ctx, "u1", func(p *profile.UserProfile) error {
		p.EnsureEntry("l1", "我的新帳本", testNow)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UID)
	assert.Equal(t, testNow, p.CreatedAt)
	require.Len(t, p.SavedLedgers, 1)

	_, err = repo.Update(ctx, "u1", func(p *profile.UserProfile) error {
		p.Activate("l1", testNow)
		return nil
	})
	require.NoError(t, err)
	p, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "l1", p.LastLedgerID)
	assert.Len(t, p.SavedLedgers, 1, "activating keeps the saved list")
}

func TestTemplateRepository(t *testing.T) {
	ctx := context.Background()
	port, logger := newTestPort(t)
	repo := NewTemplateRepository(logger, port)

	runs := 3
	tmpl, err := recurring.New("r1", "l1", "u1", recurring.Spec{
		Title:          "Rent",
		Amount:         decimal.NewFromInt(15000),
		Type:           shared.TransactionTypeExpense,
		Category:       "居住",
		IntervalMonths: 1,
		ExecuteDay:     5,
		StartDate:      schedule.New(2026, time.November, 5),
		TotalRuns:      &runs,
	}, schedule.New(2026, time.October, 18), testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tmpl))

	got, err := repo.Get(ctx, "l1", "r1")
	require.NoError(t, err)
	assert.Equal(t, schedule.New(2026, time.November, 5), got.NextRunAt)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(15000)))

	_, err = repo.Update(ctx, "l1", "r1", func(t *recurring.Template) error {
		t.Note = "landlord"
		return nil
	})
	require.NoError(t, err)

	list, err := repo.ListByLedger(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "landlord", list[0].Note)

	require.NoError(t, repo.Delete(ctx, "l1", "r1"))
	assert.ErrorIs(t, repo.Delete(ctx, "l1", "r1"), shared.ErrNotFound)
}

func TestTransactionRepository(t *testing.T) {
	ctx := context.Background()
	port, logger := newTestPort(t)
	repo := NewTransactionRepository(logger, port)

	mk := func(id string, day int) *ledger.Transaction {
		return &ledger.Transaction{
			ID:        id,
			LedgerID:  "l1",
			Amount:    decimal.NewFromInt(100),
			Type:      shared.TransactionTypeExpense,
			Category:  "餐飲",
			Date:      schedule.New(2026, time.October, day),
			CreatedAt: testNow,
		}
	}
	require.NoError(t, repo.Save(ctx, mk("a", 1)))
	require.NoError(t, repo.Save(ctx, mk("b", 15)))
	require.NoError(t, repo.Save(ctx, mk("c", 7)))
	// Saving the same id again replaces it.
	require.NoError(t, repo.Save(ctx, mk("c", 7)))

	txs, err := repo.ListByLedger(ctx, "l1", false)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{txs[0].ID, txs[1].ID, txs[2].ID})

	require.NoError(t, repo.SoftDelete(ctx, "l1", "c", testNow))
	assert.ErrorIs(t, repo.SoftDelete(ctx, "l1", "zzz", testNow), shared.ErrNotFound)

	txs, err = repo.ListByLedger(ctx, "l1", false)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	all, err := repo.ListByLedger(ctx, "l1", true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	n, err := repo.DeleteByLedger(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
