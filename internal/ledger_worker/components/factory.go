package components

import (
	"log/slog"

	"github.com/household-ledger/internal/config"
	"github.com/household-ledger/internal/ledger_worker/service"
	"github.com/household-ledger/internal/platform/messaging/producers"
)

// CreateProcessingService wires the processing service behind the worker pool.
// When the pool cannot be created the base service is used directly.
func CreateProcessingService(
	firer service.TemplateFirer,
	dlq producers.DeadLetterPublisher,
	logger *slog.Logger,
	cfg *config.Config,
) service.ProcessingService {
	failureRecorder := NewFailureRecorder(dlq, logger.With("component", "failure_recorder"))
	baseService := service.NewProcessingService(firer, failureRecorder, logger)

	workerPoolService, err := service.NewWorkerPoolProcessingService(
		baseService,
		service.WorkerPoolConfig{
			Size: cfg.WorkerPool.Size,
		},
		logger.With("component", "worker_pool"),
	)
	if err != nil {
		logger.Error("Failed to create worker pool service, falling back to base service", "error", err)
		return baseService
	}

	logger.Info("Created worker pool processing service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService
}
