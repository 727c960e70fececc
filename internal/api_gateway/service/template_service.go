package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/domain/schedule"
)

// TemplateServiceImpl implements the TemplateService interface
type TemplateServiceImpl struct {
	engine    TemplateEngine
	ledgers   LedgerReader
	publisher FireRequestPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewTemplateService creates a new template service
func NewTemplateService(logger *slog.Logger, engine TemplateEngine, ledgers LedgerReader, publisher FireRequestPublisher) TemplateService {
	return &TemplateServiceImpl{
		engine:    engine,
		ledgers:   ledgers,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *TemplateServiceImpl) CreateTemplate(ctx context.Context, actor ledger.Member, ledgerID string, spec recurring.Spec) (*recurring.Template, error) {
	return s.engine.Create(ctx, actor, ledgerID, spec)
}

func (s *TemplateServiceImpl) ListTemplates(ctx context.Context, actor ledger.Member, ledgerID string) ([]*recurring.Template, error) {
	return s.engine.List(ctx, actor, ledgerID)
}

func (s *TemplateServiceImpl) DeleteTemplate(ctx context.Context, actor ledger.Member, ledgerID, templateID string) error {
	return s.engine.Delete(ctx, actor, ledgerID, templateID)
}

// RequestFire asks the worker to fire one template. expectedRun pins the run
// the caller saw, so a request that arrives after the template moved on is
// dropped by the worker.
func (s *TemplateServiceImpl) RequestFire(ctx context.Context, actor ledger.Member, ledgerID, templateID string, expectedRun *schedule.Date, correlationID string) (*recurring.FireRequest, error) {
	return s.publish(ctx, actor, &recurring.FireRequest{
		Kind:          recurring.RequestFire,
		LedgerID:      ledgerID,
		TemplateID:    templateID,
		ExpectedRun:   expectedRun,
		RequestedBy:   actor.UID,
		CorrelationID: correlationID,
	})
}

// RequestDueCheck asks the worker to fire every due template of the ledger.
func (s *TemplateServiceImpl) RequestDueCheck(ctx context.Context, actor ledger.Member, ledgerID, correlationID string) (*recurring.FireRequest, error) {
	return s.publish(ctx, actor, &recurring.FireRequest{
		Kind:          recurring.RequestDueCheck,
		LedgerID:      ledgerID,
		RequestedBy:   actor.UID,
		CorrelationID: correlationID,
	})
}

func (s *TemplateServiceImpl) publish(ctx context.Context, actor ledger.Member, req *recurring.FireRequest) (*recurring.FireRequest, error) {
	if _, err := s.ledgers.GetLedger(ctx, actor, req.LedgerID); err != nil {
		return nil, err
	}
	req.RequestedAt = s.now().UTC()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := s.publisher.PublishRequest(ctx, req); err != nil {
		s.logger.Error("Failed to publish fire request",
			"kind", string(req.Kind),
			"ledger_id", req.LedgerID,
			"template_id", req.TemplateID,
			"correlation_id", req.CorrelationID,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Fire request published",
		"kind", string(req.Kind),
		"ledger_id", req.LedgerID,
		"template_id", req.TemplateID,
		"correlation_id", req.CorrelationID,
	)
	return req, nil
}
