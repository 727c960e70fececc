// Package recurring runs recurring templates: creating them for a ledger and
// firing them into the transaction log.
package recurring

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/domain/schedule"
	"github.com/household-ledger/internal/domain/shared"
)

// fireNamespace scopes the deterministic ids of fired transactions.
var fireNamespace = uuid.MustParse("6f1d3c52-8a0e-4b7e-9d51-2c4a7e0b9f13")

// FiredTransactionID is the id of the transaction emitted by templateID for run.
// Firing the same run twice yields the same id, so the second write is an upsert.
func FiredTransactionID(templateID string, run schedule.Date) string {
	return uuid.NewSHA1(fireNamespace, []byte(templateID+"/"+run.String())).String()
}

// DueCheckResult summarises one pass over a ledger's templates.
type DueCheckResult struct {
	Checked int
	Fired   []*ledger.Transaction
	Failed  int
}

// Engine coordinates templates with their ledger and the transaction log.
type Engine struct {
	ledgers      ledger.Repository
	templates    recurring.Repository
	transactions ledger.TransactionRepository
	logger       *slog.Logger
	now          func() time.Time
	location     *time.Location
}

func NewEngine(logger *slog.Logger, ledgers ledger.Repository, templates recurring.Repository, transactions ledger.TransactionRepository) *Engine {
	return &Engine{
		ledgers:      ledgers,
		templates:    templates,
		transactions: transactions,
		logger:       logger,
		now:          time.Now,
		location:     time.Local,
	}
}

// Today is the calendar date used for scheduling decisions.
func (e *Engine) Today() schedule.Date {
	return schedule.DateOf(e.now().In(e.location))
}

func (e *Engine) memberLedger(ctx context.Context, actor ledger.Member, ledgerID string) (*ledger.Ledger, error) {
	l, err := e.ledgers.Get(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	if !l.HasMember(actor.UID) {
		return nil, shared.UnauthorizedError{UID: actor.UID, LedgerID: ledgerID}
	}
	return l, nil
}

// Create stores a new ACTIVE template on a ledger the actor belongs to. The
// template's category must exist in the ledger.
func (e *Engine) Create(ctx context.Context, actor ledger.Member, ledgerID string, spec recurring.Spec) (*recurring.Template, error) {
	l, err := e.memberLedger(ctx, actor, ledgerID)
	if err != nil {
		return nil, err
	}
	if !l.HasCategory(spec.Category) {
		return nil, ledger.ErrUnknownCategory
	}

	t, err := recurring.New(uuid.NewString(), ledgerID, actor.UID, spec, e.Today(), e.now())
	if err != nil {
		return nil, err
	}
	if err := e.templates.Create(ctx, t); err != nil {
		e.logger.Error("Failed to create template", "ledger_id", ledgerID, "error", err)
		return nil, err
	}

	e.logger.Info("Template created",
		"ledger_id", ledgerID,
		"template_id", t.ID,
		"next_run_at", t.NextRunAt.String(),
	)
	return t, nil
}

// List returns the ledger's templates for a member.
func (e *Engine) List(ctx context.Context, actor ledger.Member, ledgerID string) ([]*recurring.Template, error) {
	if _, err := e.memberLedger(ctx, actor, ledgerID); err != nil {
		return nil, err
	}
	return e.templates.ListByLedger(ctx, ledgerID)
}

// Delete removes a template. Transactions it already produced stay.
func (e *Engine) Delete(ctx context.Context, actor ledger.Member, ledgerID, templateID string) error {
	if _, err := e.memberLedger(ctx, actor, ledgerID); err != nil {
		return err
	}
	return e.templates.Delete(ctx, ledgerID, templateID)
}

// Fire emits the transaction for the template's current run and advances the
// template by one interval. When expectedRun is set and the template has
// already moved past it, ErrStaleFireRequest is returned and nothing is written.
//
// The transaction is written before the template advances. A failure between
// the two leaves the template on the same run, and firing again rewrites the
// same transaction id.
func (e *Engine) Fire(ctx context.Context, ledgerID, templateID string, expectedRun *schedule.Date) (*ledger.Transaction, error) {
	t, err := e.templates.Get(ctx, ledgerID, templateID)
	if err != nil {
		return nil, err
	}
	run := t.NextRunAt
	if expectedRun != nil && run != *expectedRun {
		return nil, recurring.ErrStaleFireRequest
	}

	now := e.now()
	txID := FiredTransactionID(t.ID, run)
	preview := *t
	tx, err := preview.Fire(txID, now)
	if err != nil {
		e.logger.Error("Invariant violation", "op", "fireTemplate", "template_id", templateID, "error", err)
		return nil, err
	}

	if err := e.transactions.Save(ctx, tx); err != nil {
		e.logger.Error("Failed to save fired transaction",
			"template_id", templateID,
			"transaction_id", txID,
			"error", err,
		)
		return nil, err
	}

	_, err = e.templates.Update(ctx, ledgerID, templateID, func(cur *recurring.Template) error {
		if cur.NextRunAt != run {
			return recurring.ErrStaleFireRequest
		}
		_, err := cur.Fire(txID, now)
		return err
	})
	if err != nil {
		if errors.Is(err, recurring.ErrStaleFireRequest) {
			e.logger.Info("Template advanced concurrently", "template_id", templateID, "run", run.String())
		}
		return nil, err
	}

	e.logger.Info("Template fired",
		"ledger_id", ledgerID,
		"template_id", templateID,
		"transaction_id", txID,
		"run", run.String(),
	)
	return tx, nil
}

// DueCheck fires every ACTIVE template of the ledger whose next run is on or
// before today, once each. Individual failures are logged and counted.
func (e *Engine) DueCheck(ctx context.Context, ledgerID string, today schedule.Date) (*DueCheckResult, error) {
	templates, err := e.templates.ListByLedger(ctx, ledgerID)
	if err != nil {
		return nil, err
	}

	result := &DueCheckResult{Fired: []*ledger.Transaction{}}
	for _, t := range templates {
		result.Checked++
		if !t.IsDue(today) {
			continue
		}
		run := t.NextRunAt
		tx, err := e.Fire(ctx, ledgerID, t.ID, &run)
		if err != nil {
			if errors.Is(err, recurring.ErrStaleFireRequest) {
				continue
			}
			result.Failed++
			e.logger.Error("Failed to fire due template", "ledger_id", ledgerID, "template_id", t.ID, "error", err)
			continue
		}
		result.Fired = append(result.Fired, tx)
	}
	return result, nil
}
