package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/domain/shared"
)

// Failure reasons recorded for requests that are acknowledged without effect.
const (
	FailureReasonInvalidRequest    = "INVALID_REQUEST"
	FailureReasonTemplateNotFound  = "TEMPLATE_NOT_FOUND"
	FailureReasonTemplateExhausted = "TEMPLATE_EXHAUSTED"
	FailureReasonInvariant         = "INVARIANT_VIOLATION"
)

type ProcessingServiceImpl struct {
	firer           TemplateFirer
	failureRecorder FailureRecorder
	logger          *slog.Logger
}

func NewProcessingService(
	firer TemplateFirer,
	failureRecorder FailureRecorder,
	logger *slog.Logger,
) ProcessingService {
	return &ProcessingServiceImpl{
		firer:           firer,
		failureRecorder: failureRecorder,
		logger:          logger,
	}
}

// ProcessRequest fires a template or runs a due check. Returning an error
// leaves the message uncommitted so it is retried; requests that can never
// succeed are recorded and acknowledged.
func (s *ProcessingServiceImpl) ProcessRequest(ctx context.Context, request *recurring.FireRequest) error {
	logger := s.logger.With("ledger_id", request.LedgerID, "kind", request.Kind)
	if request.CorrelationID != "" {
		logger = logger.With("correlation_id", request.CorrelationID)
	}

	if err := request.Validate(); err != nil {
		logger.Error("Fire request validation failed", "error", err)
		s.recordFailure(ctx, logger, request, FailureReasonInvalidRequest)
		return nil
	}

	switch request.Kind {
	case recurring.RequestDueCheck:
		return s.dueCheck(ctx, logger, request)
	default:
		return s.fire(ctx, logger, request)
	}
}

func (s *ProcessingServiceImpl) fire(ctx context.Context, logger *slog.Logger, request *recurring.FireRequest) error {
	logger = logger.With("template_id", request.TemplateID)

	tx, err := s.firer.Fire(ctx, request.LedgerID, request.TemplateID, request.ExpectedRun)
	switch {
	case err == nil:
		logger.Info("Template fired", "transaction_id", tx.ID, "date", tx.Date.String())
		return nil
	case errors.Is(err, recurring.ErrStaleFireRequest):
		logger.Info("Run already fired, acknowledging request")
		return nil
	case errors.Is(err, recurring.ErrTemplateExhausted):
		s.recordFailure(ctx, logger, request, FailureReasonTemplateExhausted)
		return nil
	case errors.Is(err, shared.ErrNotFound):
		s.recordFailure(ctx, logger, request, FailureReasonTemplateNotFound)
		return nil
	case errors.Is(err, shared.ErrInvariantViolation):
		s.recordFailure(ctx, logger, request, FailureReasonInvariant)
		return nil
	default:
		logger.Error("Failed to fire template", "error", err)
		return fmt.Errorf("firing template %s failed: %w", request.TemplateID, err)
	}
}

func (s *ProcessingServiceImpl) dueCheck(ctx context.Context, logger *slog.Logger, request *recurring.FireRequest) error {
	result, err := s.firer.DueCheck(ctx, request.LedgerID, s.firer.Today())
	if err != nil {
		logger.Error("Due check failed", "error", err)
		return fmt.Errorf("due check for ledger %s failed: %w", request.LedgerID, err)
	}

	logger.Info("Due check finished",
		"checked", result.Checked,
		"fired", len(result.Fired),
		"failed", result.Failed,
	)
	if result.Failed > 0 {
		// Redelivery is safe: runs that already fired are skipped as stale.
		return fmt.Errorf("due check for ledger %s left %d templates unfired", request.LedgerID, result.Failed)
	}
	return nil
}

func (s *ProcessingServiceImpl) recordFailure(ctx context.Context, logger *slog.Logger, request *recurring.FireRequest, reason string) {
	logger.Warn("Fire request cannot succeed", "reason", reason)
	if s.failureRecorder == nil {
		return
	}
	if err := s.failureRecorder.RecordFailure(ctx, request, reason); err != nil {
		logger.Error("Failed to record fire request failure", "reason", reason, "error", err)
	}
}
