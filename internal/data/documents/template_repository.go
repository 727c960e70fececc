package documents

import (
	"context"
	"log/slog"

	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/domain/shared"
	"github.com/household-ledger/internal/platform/docstore"
)

// TemplateRepository implements recurring.Repository on ledgers/{id}/recurringTemplates.
type TemplateRepository struct {
	port   docstore.Port
	logger *slog.Logger
}

func NewTemplateRepository(logger *slog.Logger, port docstore.Port) *TemplateRepository {
	return &TemplateRepository{port: port, logger: logger}
}

var _ recurring.Repository = (*TemplateRepository)(nil)

func (r *TemplateRepository) Create(ctx context.Context, t *recurring.Template) error {
	collection := docstore.TemplatesCollection(t.LedgerID)
	_, err := docstore.UpdateAs(ctx, r.port, collection, t.ID, func(current *recurring.Template) (*recurring.Template, error) {
		if current != nil {
			return nil, shared.InvariantViolationError{Op: "createTemplate", Reason: "template " + t.ID + " already exists"}
		}
		return t, nil
	})
	return err
}

func (r *TemplateRepository) Get(ctx context.Context, ledgerID, id string) (*recurring.Template, error) {
	return docstore.GetAs[recurring.Template](ctx, r.port, docstore.TemplatesCollection(ledgerID), id)
}

func (r *TemplateRepository) Update(ctx context.Context, ledgerID, id string, fn func(t *recurring.Template) error) (*recurring.Template, error) {
	collection := docstore.TemplatesCollection(ledgerID)
	return docstore.UpdateAs(ctx, r.port, collection, id, func(current *recurring.Template) (*recurring.Template, error) {
		if current == nil {
			return nil, docstore.NotFound(collection, id)
		}
		if err := fn(current); err != nil {
			return nil, err
		}
		return current, nil
	})
}

func (r *TemplateRepository) ListByLedger(ctx context.Context, ledgerID string) ([]*recurring.Template, error) {
	return docstore.ListAs[recurring.Template](ctx, r.port, docstore.TemplatesCollection(ledgerID))
}

func (r *TemplateRepository) Delete(ctx context.Context, ledgerID, id string) error {
	collection := docstore.TemplatesCollection(ledgerID)
	if _, err := r.port.Get(ctx, collection, id); err != nil {
		return err
	}
	return r.port.Delete(ctx, collection, id)
}
