// Package documents maps the domain repositories onto the document port, so the
// same code runs against the remote and the local store.
package documents

import (
	"context"
	"log/slog"

	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/shared"
	"github.com/household-ledger/internal/platform/docstore"
)

// LedgerRepository implements ledger.Repository on ledgers/{id}.
type LedgerRepository struct {
	port   docstore.Port
	logger *slog.Logger
}

func NewLedgerRepository(logger *slog.Logger, port docstore.Port) *LedgerRepository {
	return &LedgerRepository{port: port, logger: logger}
}

var _ ledger.Repository = (*LedgerRepository)(nil)

func (r *LedgerRepository) Get(ctx context.Context, id string) (*ledger.Ledger, error) {
	return docstore.GetAs[ledger.Ledger](ctx, r.port, docstore.LedgersCollection, id)
}

// Create stores a new ledger. An existing document under the same id is never overwritten.
func (r *LedgerRepository) Create(ctx context.Context, l *ledger.Ledger) error {
	if err := l.Validate(); err != nil {
		return shared.InvariantViolationError{Op: "createLedger", Reason: "invalid ledger", Err: err}
	}
	_, err := docstore.UpdateAs(ctx, r.port, docstore.LedgersCollection, l.ID, func(current *ledger.Ledger) (*ledger.Ledger, error) {
		if current != nil {
			return nil, shared.InvariantViolationError{Op: "createLedger", Reason: "ledger " + l.ID + " already exists"}
		}
		return l, nil
	})
	if err != nil {
		r.logger.Error("Failed to create ledger", "ledger_id", l.ID, "error", err)
	}
	return err
}

// Update applies fn to the current ledger atomically. fn may run more than once.
func (r *LedgerRepository) Update(ctx context.Context, id string, fn func(l *ledger.Ledger) error) (*ledger.Ledger, error) {
	return docstore.UpdateAs(ctx, r.port, docstore.LedgersCollection, id, func(current *ledger.Ledger) (*ledger.Ledger, error) {
		if current == nil {
			return nil, docstore.NotFound(docstore.LedgersCollection, id)
		}
		if err := fn(current); err != nil {
			return nil, err
		}
		if err := current.Validate(); err != nil {
			return nil, shared.InvariantViolationError{Op: "updateLedger", Reason: "ledger " + id, Err: err}
		}
		return current, nil
	})
}

// Watch streams the ledger document: its current state first, then every change.
func (r *LedgerRepository) Watch(ctx context.Context, id string) (*ledger.Stream, error) {
	target := docstore.Target{Collection: docstore.LedgersCollection, ID: id}
	ch, stop, err := docstore.WatchFunc(ctx, r.port, target, func(snap docstore.Snapshot) ledger.Event {
		switch {
		case snap.Err != nil:
			return ledger.Event{Err: snap.Err}
		case snap.Deleted || snap.Document == nil:
			return ledger.Event{Deleted: true}
		}
		l, err := docstore.Decode[ledger.Ledger](snap.Document)
		if err != nil {
			r.logger.Warn("Dropping undecodable ledger snapshot", "ledger_id", id, "error", err)
			return ledger.Event{Err: err}
		}
		return ledger.Event{Ledger: l}
	})
	if err != nil {
		return nil, err
	}
	return ledger.NewStream(ch, stop), nil
}
