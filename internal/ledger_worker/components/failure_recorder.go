package components

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/platform/messaging/producers"
)

// FailureRecorderImpl parks unprocessable fire requests on the dead letter queue.
type FailureRecorderImpl struct {
	dlq    producers.DeadLetterPublisher
	logger *slog.Logger
}

func NewFailureRecorder(dlq producers.DeadLetterPublisher, logger *slog.Logger) *FailureRecorderImpl {
	return &FailureRecorderImpl{
		dlq:    dlq,
		logger: logger,
	}
}

// RecordFailure writes the request to the DLQ, or only logs it when the DLQ is disabled.
func (r *FailureRecorderImpl) RecordFailure(ctx context.Context, request *recurring.FireRequest, failureReason string) error {
	if r.dlq == nil {
		r.logger.Warn("DLQ disabled, dropping failed fire request",
			"ledger_id", request.LedgerID,
			"template_id", request.TemplateID,
			"reason", failureReason,
		)
		return nil
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal fire request: %w", err)
	}
	if err := r.dlq.PublishToDLQ(ctx, request.Key(), payload, failureReason); err != nil {
		return fmt.Errorf("failed to record failure for ledger %s: %w", request.LedgerID, err)
	}
	return nil
}
