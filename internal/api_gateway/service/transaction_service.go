package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/recurring"
)

// TransactionServiceImpl implements the TransactionService interface
type TransactionServiceImpl struct {
	ledgers      LedgerReader
	transactions ledger.TransactionRepository
	templates    TemplateEngine
	logger       *slog.Logger
	now          func() time.Time
}

// NewTransactionService creates a new transaction service
func NewTransactionService(logger *slog.Logger, ledgers LedgerReader, transactions ledger.TransactionRepository, templates TemplateEngine) TransactionService {
	return &TransactionServiceImpl{
		ledgers:      ledgers,
		transactions: transactions,
		templates:    templates,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateTransaction validates input against the ledger's current categories and
// saves it. A recurrence failure after the save is returned together with the
// saved transaction so the caller knows the transaction exists.
func (s *TransactionServiceImpl) CreateTransaction(ctx context.Context, actor ledger.Member, ledgerID string, input ledger.TransactionInput, recurrence *RecurrenceInput) (*ledger.Transaction, *recurring.Template, error) {
	l, err := s.ledgers.GetLedger(ctx, actor, ledgerID)
	if err != nil {
		return nil, nil, err
	}

	tx, err := ledger.NewTransaction(uuid.NewString(), l, actor.UID, input, s.now())
	if err != nil {
		return nil, nil, err
	}
	if err := s.transactions.Save(ctx, tx); err != nil {
		s.logger.Error("Failed to save transaction",
			"ledger_id", ledgerID,
			"transaction_id", tx.ID,
			"error", err,
		)
		return nil, nil, err
	}

	s.logger.Info("Transaction saved",
		"ledger_id", ledgerID,
		"transaction_id", tx.ID,
		"type", string(tx.Type),
		"amount", tx.Amount.String(),
	)

	if recurrence == nil {
		return tx, nil, nil
	}

	t, err := s.templates.Create(ctx, actor, ledgerID, recurring.Spec{
		Title:          tx.Description,
		Amount:         tx.Amount,
		Type:           tx.Type,
		Category:       tx.Category,
		IntervalMonths: recurrence.IntervalMonths,
		ExecuteDay:     recurrence.ExecuteDay,
		StartDate:      tx.Date,
		TotalRuns:      recurrence.TotalRuns,
	})
	if err != nil {
		s.logger.Error("Failed to create template for transaction",
			"ledger_id", ledgerID,
			"transaction_id", tx.ID,
			"error", err,
		)
		return tx, nil, err
	}
	return tx, t, nil
}

// ListTransactions returns the ledger's log for a member.
func (s *TransactionServiceImpl) ListTransactions(ctx context.Context, actor ledger.Member, ledgerID string, includeDeleted bool) ([]*ledger.Transaction, error) {
	if _, err := s.ledgers.GetLedger(ctx, actor, ledgerID); err != nil {
		return nil, err
	}
	return s.transactions.ListByLedger(ctx, ledgerID, includeDeleted)
}

// DeleteTransaction soft-deletes a transaction so other devices observe it.
func (s *TransactionServiceImpl) DeleteTransaction(ctx context.Context, actor ledger.Member, ledgerID, transactionID string) error {
	if _, err := s.ledgers.GetLedger(ctx, actor, ledgerID); err != nil {
		return err
	}
	if err := s.transactions.SoftDelete(ctx, ledgerID, transactionID, s.now()); err != nil {
		s.logger.Error("Failed to delete transaction",
			"ledger_id", ledgerID,
			"transaction_id", transactionID,
			"error", err,
		)
		return err
	}
	return nil
}
