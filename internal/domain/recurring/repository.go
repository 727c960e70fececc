package recurring

import "context"

// Repository stores templates under their owning ledger. Update applies fn
// against a fresh snapshot inside an atomic read-modify-write.
type Repository interface {
	Create(ctx context.Context, t *Template) error
	Get(ctx context.Context, ledgerID, id string) (*Template, error)
	Update(ctx context.Context, ledgerID, id string, fn func(t *Template) error) (*Template, error)
	ListByLedger(ctx context.Context, ledgerID string) ([]*Template, error)
	Delete(ctx context.Context, ledgerID, id string) error
}
