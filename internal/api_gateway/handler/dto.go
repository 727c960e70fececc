package handler

import (
	"time"

	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/profile"
	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/domain/schedule"
	"github.com/shopspring/decimal"
)

// SwitchLedgerRequest selects the active ledger
type SwitchLedgerRequest struct {
	LedgerID string `json:"ledger_id" binding:"required"`
}

// CreateLedgerRequest creates a ledger owned by the caller. An empty name gets
// the configured placeholder.
type CreateLedgerRequest struct {
	Name string `json:"name" binding:"max=100"`
}

// AliasRequest renames the caller's saved entry for a ledger
type AliasRequest struct {
	Alias string `json:"alias" binding:"max=100"`
}

// CategoryRequest adds a category to a ledger
type CategoryRequest struct {
	Name string `json:"name" binding:"required,max=50"`
}

// RecurrenceRequest turns a new transaction into a recurring template
type RecurrenceRequest struct {
	IntervalMonths int  `json:"interval_months" binding:"min=0"`
	ExecuteDay     int  `json:"execute_day" binding:"min=0,max=31"`
	TotalRuns      *int `json:"total_runs,omitempty" binding:"omitempty,min=1"`
}

// CreateTransactionRequest records an income or expense
type CreateTransactionRequest struct {
	Amount      decimal.Decimal    `json:"amount"`
	Type        string             `json:"type" binding:"required"`
	Category    string             `json:"category" binding:"required"`
	Description string             `json:"description" binding:"max=200"`
	Rewards     decimal.Decimal    `json:"rewards"`
	Date        schedule.Date      `json:"date"`
	Recurrence  *RecurrenceRequest `json:"recurrence,omitempty"`
}

// CreateTemplateRequest creates a recurring template directly
type CreateTemplateRequest struct {
	Title          string          `json:"title" binding:"max=200"`
	Amount         decimal.Decimal `json:"amount"`
	Type           string          `json:"type" binding:"required"`
	Category       string          `json:"category" binding:"required"`
	Note           string          `json:"note" binding:"max=500"`
	IntervalMonths int             `json:"interval_months" binding:"min=0"`
	ExecuteDay     int             `json:"execute_day" binding:"min=0,max=31"`
	StartDate      schedule.Date   `json:"start_date"`
	TotalRuns      *int            `json:"total_runs,omitempty" binding:"omitempty,min=1"`
}

// FireTemplateRequest optionally pins the run the caller expects to fire
type FireTemplateRequest struct {
	ExpectedRun *schedule.Date `json:"expected_run,omitempty"`
}

// ParseRequest carries free text for the AI parser
type ParseRequest struct {
	Text string `json:"text" binding:"required,max=500"`
}

// TransactionListParams filters the transaction list
type TransactionListParams struct {
	IncludeDeleted bool `form:"include_deleted"`
}

// SessionResponse is the outcome of resolving a session
type SessionResponse struct {
	UID            string                `json:"uid"`
	ActiveLedgerID string                `json:"active_ledger_id"`
	SavedLedgers   []SavedLedgerResponse `json:"saved_ledgers"`
}

// SavedLedgerResponse represents one saved ledger entry
type SavedLedgerResponse struct {
	ID             string `json:"id"`
	Alias          string `json:"alias"`
	LastAccessedAt string `json:"last_accessed_at"`
}

// MemberResponse represents a ledger member
type MemberResponse struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Email       string `json:"email,omitempty"`
}

// LedgerResponse represents a ledger in API responses
type LedgerResponse struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	OwnerUID          string           `json:"owner_uid"`
	Members           []MemberResponse `json:"members"`
	Categories        []string         `json:"categories"`
	CreatedAt         string           `json:"created_at"`
	ScheduledDeleteAt string           `json:"scheduled_delete_at,omitempty"`
}

// LeaveResponse names the ledger that became active after leaving
type LeaveResponse struct {
	ActiveLedgerID string `json:"active_ledger_id"`
}

// TransactionResponse represents a transaction in API responses
type TransactionResponse struct {
	ID          string `json:"id"`
	LedgerID    string `json:"ledger_id"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Rewards     string `json:"rewards"`
	Date        string `json:"date"`
	CreatorUID  string `json:"creator_uid"`
	TemplateID  string `json:"template_id,omitempty"`
	CreatedAt   string `json:"created_at"`
	Deleted     bool   `json:"deleted"`
	DeletedAt   string `json:"deleted_at,omitempty"`
}

// CreateTransactionResponse carries the saved transaction and, for recurring
// input, the template it started
type CreateTransactionResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Template    *TemplateResponse   `json:"template,omitempty"`
}

// TemplateResponse represents a recurring template in API responses
type TemplateResponse struct {
	ID             string `json:"id"`
	LedgerID       string `json:"ledger_id"`
	Title          string `json:"title"`
	Amount         string `json:"amount"`
	Type           string `json:"type"`
	Category       string `json:"category"`
	Note           string `json:"note,omitempty"`
	IntervalMonths int    `json:"interval_months"`
	ExecuteDay     int    `json:"execute_day"`
	NextRunAt      string `json:"next_run_at"`
	TotalRuns      *int   `json:"total_runs,omitempty"`
	RemainingRuns  *int   `json:"remaining_runs,omitempty"`
	Status         string `json:"status"`
	CreatorUID     string `json:"creator_uid"`
	LastFiredAt    string `json:"last_fired_at,omitempty"`
}

// FireRequestResponse acknowledges a request handed to the worker
type FireRequestResponse struct {
	Kind          string `json:"kind"`
	LedgerID      string `json:"ledger_id"`
	TemplateID    string `json:"template_id,omitempty"`
	ExpectedRun   string `json:"expected_run,omitempty"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func mapSavedLedgers(entries []profile.SavedLedgerEntry) []SavedLedgerResponse {
	out := make([]SavedLedgerResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, SavedLedgerResponse{
			ID:             e.ID,
			Alias:          e.Alias,
			LastAccessedAt: formatTime(e.LastAccessedAt),
		})
	}
	return out
}

func mapLedgerToResponse(l *ledger.Ledger) LedgerResponse {
	members := make([]MemberResponse, 0, len(l.Members))
	for _, m := range l.Members {
		members = append(members, MemberResponse{
			UID:         m.UID,
			DisplayName: m.DisplayName,
			PhotoURL:    m.PhotoURL,
			Email:       m.Email,
		})
	}
	categories := make([]string, len(l.Categories))
	copy(categories, l.Categories)

	return LedgerResponse{
		ID:                l.ID,
		Name:              l.Name,
		OwnerUID:          l.OwnerUID,
		Members:           members,
		Categories:        categories,
		CreatedAt:         formatTime(l.CreatedAt),
		ScheduledDeleteAt: formatOptionalTime(l.ScheduledDeleteAt),
	}
}

func mapTransactionToResponse(tx *ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:          tx.ID,
		LedgerID:    tx.LedgerID,
		Amount:      tx.Amount.String(),
		Type:        string(tx.Type),
		Category:    tx.Category,
		Description: tx.Description,
		Rewards:     tx.Rewards.String(),
		Date:        tx.Date.String(),
		CreatorUID:  tx.CreatorUID,
		TemplateID:  tx.TemplateID,
		CreatedAt:   formatTime(tx.CreatedAt),
		Deleted:     tx.Deleted,
		DeletedAt:   formatOptionalTime(tx.DeletedAt),
	}
}

func mapTemplateToResponse(t *recurring.Template) TemplateResponse {
	return TemplateResponse{
		ID:             t.ID,
		LedgerID:       t.LedgerID,
		Title:          t.Title,
		Amount:         t.Amount.String(),
		Type:           t.Type,
		Category:       t.Category,
		Note:           t.Note,
		IntervalMonths: t.IntervalMonths,
		ExecuteDay:     t.ExecuteDay,
		NextRunAt:      t.NextRunAt.String(),
		TotalRuns:      t.TotalRuns,
		RemainingRuns:  t.RemainingRuns,
		Status:         string(t.Status),
		CreatorUID:     t.CreatorUID,
		LastFiredAt:    formatOptionalTime(t.LastFiredAt),
	}
}

func mapFireRequestToResponse(req *recurring.FireRequest) FireRequestResponse {
	resp := FireRequestResponse{
		Kind:          string(req.Kind),
		LedgerID:      req.LedgerID,
		TemplateID:    req.TemplateID,
		Status:        "QUEUED",
		CorrelationID: req.CorrelationID,
	}
	if req.ExpectedRun != nil {
		resp.ExpectedRun = req.ExpectedRun.String()
	}
	return resp
}
