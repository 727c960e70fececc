package service

import (
	"context"

	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/profile"
	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/domain/schedule"
	"github.com/household-ledger/internal/platform/aiparse"
)

// MembershipService covers ledger membership and the user's saved ledger list.
// *membership.Coordinator satisfies it.
type MembershipService interface {
	EnsureProfile(ctx context.Context, actor ledger.Member) (*profile.UserProfile, error)

	// ResolveActiveLedger returns the ledger the user should see, repairing
	// the profile and creating a personal ledger when nothing usable is left.
	ResolveActiveLedger(ctx context.Context, actor ledger.Member) (string, error)
	SwitchLedger(ctx context.Context, actor ledger.Member, ledgerID string) error

	CreateLedger(ctx context.Context, actor ledger.Member, name string) (*ledger.Ledger, error)
	GetLedger(ctx context.Context, actor ledger.Member, ledgerID string) (*ledger.Ledger, error)

	// JoinLedger returns false when the ledger does not exist.
	JoinLedger(ctx context.Context, actor ledger.Member, ledgerID string) (bool, error)

	// LeaveLedger returns the ledger that becomes active afterwards.
	LeaveLedger(ctx context.Context, actor ledger.Member, ledgerID string) (string, error)
	UpdateLedgerAlias(ctx context.Context, actor ledger.Member, ledgerID, alias string) error
	ListSavedLedgers(ctx context.Context, uid string) ([]profile.SavedLedgerEntry, error)

	AddCategory(ctx context.Context, actor ledger.Member, ledgerID, category string) (*ledger.Ledger, error)
	RemoveCategory(ctx context.Context, actor ledger.Member, ledgerID, category string) (*ledger.Ledger, error)
}

// RecurrenceInput turns a new transaction into the first run of a template.
type RecurrenceInput struct {
	IntervalMonths int
	ExecuteDay     int
	TotalRuns      *int
}

// TransactionService records and lists the transactions of a ledger.
type TransactionService interface {
	// CreateTransaction saves a transaction. With a recurrence it also creates a
	// template anchored on the transaction date; the template is nil otherwise.
	CreateTransaction(ctx context.Context, actor ledger.Member, ledgerID string, input ledger.TransactionInput, recurrence *RecurrenceInput) (*ledger.Transaction, *recurring.Template, error)
	ListTransactions(ctx context.Context, actor ledger.Member, ledgerID string, includeDeleted bool) ([]*ledger.Transaction, error)
	DeleteTransaction(ctx context.Context, actor ledger.Member, ledgerID, transactionID string) error
}

// TemplateService manages recurring templates. Firing is asynchronous: the
// request is handed to the worker and the caller gets the request back.
type TemplateService interface {
	CreateTemplate(ctx context.Context, actor ledger.Member, ledgerID string, spec recurring.Spec) (*recurring.Template, error)
	ListTemplates(ctx context.Context, actor ledger.Member, ledgerID string) ([]*recurring.Template, error)
	DeleteTemplate(ctx context.Context, actor ledger.Member, ledgerID, templateID string) error
	RequestFire(ctx context.Context, actor ledger.Member, ledgerID, templateID string, expectedRun *schedule.Date, correlationID string) (*recurring.FireRequest, error)
	RequestDueCheck(ctx context.Context, actor ledger.Member, ledgerID, correlationID string) (*recurring.FireRequest, error)
}

// ParseService turns free text into a transaction draft for a ledger. A nil
// draft with a nil error means the text could not be parsed.
type ParseService interface {
	ParseText(ctx context.Context, actor ledger.Member, ledgerID, text string) (*aiparse.ParsedTransaction, error)
}

// LedgerReader reads a ledger on behalf of a member.
type LedgerReader interface {
	GetLedger(ctx context.Context, actor ledger.Member, ledgerID string) (*ledger.Ledger, error)
}

// TemplateEngine is the part of the recurring engine used by the backend.
type TemplateEngine interface {
	Create(ctx context.Context, actor ledger.Member, ledgerID string, spec recurring.Spec) (*recurring.Template, error)
	List(ctx context.Context, actor ledger.Member, ledgerID string) ([]*recurring.Template, error)
	Delete(ctx context.Context, actor ledger.Member, ledgerID, templateID string) error
}

// FireRequestPublisher hands fire requests to the worker.
type FireRequestPublisher interface {
	PublishRequest(ctx context.Context, req *recurring.FireRequest) error
}
