package documents

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/platform/docstore"
)

// TransactionRepository implements ledger.TransactionRepository on
// ledgers/{id}/transactions. It backs the local store; remote mode keeps the
// transaction log in MongoDB.
type TransactionRepository struct {
	port   docstore.Port
	logger *slog.Logger
}

func NewTransactionRepository(logger *slog.Logger, port docstore.Port) *TransactionRepository {
	return &TransactionRepository{port: port, logger: logger}
}

var _ ledger.TransactionRepository = (*TransactionRepository)(nil)

func (r *TransactionRepository) Save(ctx context.Context, tx *ledger.Transaction) error {
	return docstore.SetAs(ctx, r.port, docstore.TransactionsCollection(tx.LedgerID), tx.ID, tx, false)
}

func (r *TransactionRepository) Get(ctx context.Context, ledgerID, id string) (*ledger.Transaction, error) {
	return docstore.GetAs[ledger.Transaction](ctx, r.port, docstore.TransactionsCollection(ledgerID), id)
}

// ListByLedger returns the ledger's transactions, newest date first.
func (r *TransactionRepository) ListByLedger(ctx context.Context, ledgerID string, includeDeleted bool) ([]*ledger.Transaction, error) {
	all, err := docstore.ListAs[ledger.Transaction](ctx, r.port, docstore.TransactionsCollection(ledgerID))
	if err != nil {
		return nil, err
	}
	txs := all[:0]
	for _, tx := range all {
		if includeDeleted || !tx.Deleted {
			txs = append(txs, tx)
		}
	}
	slices.SortStableFunc(txs, func(a, b *ledger.Transaction) int {
		switch {
		case a.Date.After(b.Date):
			return -1
		case a.Date.Before(b.Date):
			return 1
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return txs, nil
}

func (r *TransactionRepository) SoftDelete(ctx context.Context, ledgerID, id string, at time.Time) error {
	collection := docstore.TransactionsCollection(ledgerID)
	_, err := docstore.UpdateAs(ctx, r.port, collection, id, func(current *ledger.Transaction) (*ledger.Transaction, error) {
		if current == nil {
			return nil, docstore.NotFound(collection, id)
		}
		current.SoftDelete(at)
		return current, nil
	})
	return err
}

func (r *TransactionRepository) DeleteByLedger(ctx context.Context, ledgerID string) (int64, error) {
	collection := docstore.TransactionsCollection(ledgerID)
	docs, err := r.port.List(ctx, collection)
	if err != nil {
		return 0, err
	}
	var deleted int64
	for _, doc := range docs {
		if err := r.port.Delete(ctx, collection, doc.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
