package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/ledger_worker/service"
	"github.com/household-ledger/internal/platform/messaging/producers"
)

// FireRequestHandler handles fire requests from Kafka
type FireRequestHandler struct {
	processingService service.ProcessingService
	producer          producers.DeadLetterPublisher
	logger            *slog.Logger
}

func NewFireRequestHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	producer producers.DeadLetterPublisher,
) *FireRequestHandler {
	return &FireRequestHandler{
		processingService: processingService,
		producer:          producer,
		logger:            logger,
	}
}

// HandleMessage decodes and processes one message. A nil return commits the offset.
func (h *FireRequestHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var request recurring.FireRequest
	if err := json.Unmarshal(value, &request); err != nil {
		h.logger.Error("Failed to unmarshal fire request from Kafka message",
			"error", err,
			"message_key", string(key),
		)
		if h.producer != nil {
			reason := fmt.Sprintf("unmarshal fire request: %s", err.Error())
			dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, reason)
			if dlqErr == nil {
				return nil
			}
			h.logger.Error("Failed to publish message to DLQ after unmarshal error",
				"dlq_error", dlqErr,
				"message_key", string(key),
			)
		}
		return fmt.Errorf("failed to unmarshal message value: %w", err)
	}

	logger := h.logger
	if request.CorrelationID != "" {
		logger = h.logger.With("correlation_id", request.CorrelationID)
	}
	logger.Info("Received fire request",
		"kind", request.Kind,
		"ledger_id", request.LedgerID,
		"template_id", request.TemplateID,
		"requested_by", request.RequestedBy,
	)

	if err := h.processingService.ProcessRequest(ctx, &request); err != nil {
		return fmt.Errorf("processing fire request for ledger %s failed: %w", request.LedgerID, err)
	}
	return nil
}
