package service

import (
	"context"
	"log/slog"

	"github.com/household-ledger/internal/domain/recurring"
	"github.com/panjf2000/ants/v2"
)

// WorkerPoolProcessingService runs requests on a bounded pool so a burst of
// due checks cannot exhaust store connections.
type WorkerPoolProcessingService struct {
	baseService ProcessingService
	pool        *ants.Pool
	logger      *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolProcessingService(
	baseService ProcessingService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolProcessingService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolProcessingService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
	}, nil
}

// ProcessRequest submits the request to the pool and waits for its result.
func (s *WorkerPoolProcessingService) ProcessRequest(ctx context.Context, request *recurring.FireRequest) error {
	logger := s.logger
	if request.CorrelationID != "" {
		logger = s.logger.With("correlation_id", request.CorrelationID)
	}
	logger.Debug("Submitting fire request to worker pool",
		"ledger_id", request.LedgerID,
		"template_id", request.TemplateID,
	)

	resultChan := make(chan error, 1)
	requestCopy := *request

	err := s.pool.Submit(func() {
		resultChan <- s.baseService.ProcessRequest(ctx, &requestCopy)
	})
	if err != nil {
		logger.Error("Failed to submit fire request to worker pool",
			"ledger_id", request.LedgerID,
			"error", err,
		)
		return err
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolProcessingService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolProcessingService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolProcessingService) Capacity() int {
	return s.pool.Cap()
}
