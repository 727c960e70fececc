package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/household-ledger/internal/domain/schedule"
	"github.com/household-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("amount must not be zero")
	ErrInvalidRewards = errors.New("rewards cannot be negative")
	ErrMissingDate    = errors.New("transaction date is required")
)

// Transaction is a single income or expense recorded in a ledger.
type Transaction struct {
	ID          string                 `json:"id"`
	LedgerID    string                 `json:"ledgerId"`
	Amount      decimal.Decimal        `json:"amount"`
	Type        shared.TransactionType `json:"type"`
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
	Rewards     decimal.Decimal        `json:"rewards"`
	Date        schedule.Date          `json:"date"`
	CreatorUID  string                 `json:"creatorUid"`
	TemplateID  string                 `json:"templateId,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   *time.Time             `json:"updatedAt,omitempty"`
	Deleted     bool                   `json:"deleted,omitempty"`
	DeletedAt   *time.Time             `json:"deletedAt,omitempty"`
}

// TransactionInput carries the caller-supplied fields of a new transaction.
type TransactionInput struct {
	Amount      decimal.Decimal
	Type        shared.TransactionType
	Category    string
	Description string
	Rewards     decimal.Decimal
	Date        schedule.Date
}

// NewTransaction validates input against l and builds a transaction. The amount
// keeps whatever sign the caller gave it; Type decides how it is read. The category
// must exist in the ledger at this moment; later category removals do not touch it.
func NewTransaction(id string, l *Ledger, creatorUID string, input TransactionInput, now time.Time) (*Transaction, error) {
	if !input.Type.Valid() {
		return nil, shared.ErrInvalidTransactionType
	}
	if input.Amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if input.Rewards.IsNegative() {
		return nil, ErrInvalidRewards
	}
	if input.Date.IsZero() {
		return nil, ErrMissingDate
	}
	category := strings.TrimSpace(input.Category)
	if !l.HasCategory(category) {
		return nil, ErrUnknownCategory
	}

	return &Transaction{
		ID:          id,
		LedgerID:    l.ID,
		Amount:      input.Amount,
		Type:        input.Type,
		Category:    category,
		Description: strings.TrimSpace(input.Description),
		Rewards:     input.Rewards,
		Date:        input.Date,
		CreatorUID:  creatorUID,
		CreatedAt:   now.UTC(),
	}, nil
}

// SoftDelete marks the transaction deleted without removing it, so other devices
// can observe the deletion.
func (t *Transaction) SoftDelete(now time.Time) {
	at := now.UTC()
	t.Deleted = true
	t.DeletedAt = &at
	t.UpdatedAt = &at
}
