// Package recurring models templates that generate transactions on a monthly cadence.
package recurring

import (
	"errors"
	"strings"
	"time"

	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/schedule"
	"github.com/household-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var (
	ErrTemplateExhausted = errors.New("recurring template is exhausted")
	ErrMissingStartDate  = errors.New("start date is required")
	ErrStaleFireRequest  = errors.New("template already advanced past the requested run")
)

// Status is the lifecycle state of a template.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusExhausted Status = "EXHAUSTED"
)

// Spec describes a template to create. Invalid interval or day values are coerced
// rather than rejected; TotalRuns nil means the plan is open-ended.
type Spec struct {
	Title          string
	Amount         decimal.Decimal
	Type           shared.TransactionType
	Category       string
	Note           string
	IntervalMonths int
	ExecuteDay     int
	StartDate      schedule.Date
	TotalRuns      *int
}

// Template generates a transaction every IntervalMonths on ExecuteDay.
type Template struct {
	ID             string          `json:"id"`
	LedgerID       string          `json:"ledgerId"`
	Title          string          `json:"title"`
	Amount         decimal.Decimal `json:"amount"`
	Type           string          `json:"type"`
	Category       string          `json:"category"`
	Note           string          `json:"note"`
	IntervalMonths int             `json:"intervalMonths"`
	ExecuteDay     int             `json:"executeDay"`
	NextRunAt      schedule.Date   `json:"nextRunAt"`
	TotalRuns      *int            `json:"totalRuns,omitempty"`
	RemainingRuns  *int            `json:"remainingRuns,omitempty"`
	Status         Status          `json:"status"`
	CreatorUID     string          `json:"creatorUid"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	LastFiredAt    *time.Time      `json:"lastFiredAt,omitempty"`
}

// New builds an ACTIVE template from spec. The first run is computed from the
// start date relative to today.
func New(id, ledgerID, creatorUID string, spec Spec, today schedule.Date, now time.Time) (*Template, error) {
	if !spec.Type.Valid() {
		return nil, shared.ErrInvalidTransactionType
	}
	if spec.Amount.IsZero() {
		return nil, ledger.ErrInvalidAmount
	}
	if spec.StartDate.IsZero() {
		return nil, ErrMissingStartDate
	}

	interval := schedule.NormalizeInterval(spec.IntervalMonths)
	day := schedule.NormalizeExecuteDay(spec.ExecuteDay)
	category := strings.TrimSpace(spec.Category)
	title := strings.TrimSpace(spec.Title)
	if title == "" {
		title = category
	}

	t := &Template{
		ID:             id,
		LedgerID:       ledgerID,
		Title:          title,
		Amount:         spec.Amount,
		Type:           spec.Type.Lower(),
		Category:       category,
		Note:           spec.Note,
		IntervalMonths: interval,
		ExecuteDay:     day,
		NextRunAt:      schedule.ComputeNextRunAt(spec.StartDate, day, interval, today),
		Status:         StatusActive,
		CreatorUID:     creatorUID,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
	if spec.TotalRuns != nil {
		runs := max(*spec.TotalRuns, 1)
		total, remaining := runs, runs
		t.TotalRuns = &total
		t.RemainingRuns = &remaining
	}
	return t, nil
}

// Bounded reports whether the template has a fixed number of runs.
func (t *Template) Bounded() bool {
	return t.TotalRuns != nil
}

// Exhausted reports whether the template can no longer fire.
func (t *Template) Exhausted() bool {
	return t.Status == StatusExhausted
}

// IsDue reports whether the template should fire on or before today.
func (t *Template) IsDue(today schedule.Date) bool {
	return !t.Exhausted() && !t.NextRunAt.After(today)
}

// TransactionType returns the ledger transaction type the template emits.
func (t *Template) TransactionType() shared.TransactionType {
	tt, err := shared.ParseTransactionType(t.Type)
	if err != nil {
		return shared.TransactionTypeExpense
	}
	return tt
}

// Fire emits the transaction for the current NextRunAt and advances the template by
// one interval. A bounded template that reaches zero remaining runs becomes EXHAUSTED;
// firing an exhausted template is rejected.
func (t *Template) Fire(txID string, now time.Time) (*ledger.Transaction, error) {
	if t.Exhausted() {
		return nil, shared.InvariantViolationError{Op: "fireTemplate", Reason: "template " + t.ID, Err: ErrTemplateExhausted}
	}

	tx := &ledger.Transaction{
		ID:          txID,
		LedgerID:    t.LedgerID,
		Amount:      t.Amount,
		Type:        t.TransactionType(),
		Category:    t.Category,
		Description: t.Title,
		Rewards:     decimal.Zero,
		Date:        t.NextRunAt,
		CreatorUID:  t.CreatorUID,
		TemplateID:  t.ID,
		CreatedAt:   now.UTC(),
	}

	t.NextRunAt = schedule.AddMonthsClamped(t.NextRunAt, t.IntervalMonths, t.ExecuteDay)
	if t.RemainingRuns != nil {
		remaining := max(*t.RemainingRuns-1, 0)
		t.RemainingRuns = &remaining
		if remaining == 0 {
			t.Status = StatusExhausted
		}
	}
	fired := now.UTC()
	t.LastFiredAt = &fired
	t.UpdatedAt = fired
	return tx, nil
}
