package service

import (
	"context"

	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/domain/schedule"
	engine "github.com/household-ledger/internal/recurring"
)

// ProcessingService handles fire requests taken off the queue.
type ProcessingService interface {
	ProcessRequest(ctx context.Context, request *recurring.FireRequest) error
}

// TemplateFirer fires recurring templates
type TemplateFirer interface {
	Fire(ctx context.Context, ledgerID, templateID string, expectedRun *schedule.Date) (*ledger.Transaction, error)
	DueCheck(ctx context.Context, ledgerID string, today schedule.Date) (*engine.DueCheckResult, error)
	Today() schedule.Date
}

// FailureRecorder parks requests that can never succeed
type FailureRecorder interface {
	RecordFailure(ctx context.Context, request *recurring.FireRequest, failureReason string) error
}
