package service

import (
	"context"
	"time"

	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/platform/aiparse"
	"github.com/stretchr/testify/mock"
)

type MockLedgerReader struct {
	mock.Mock
}

func (m *MockLedgerReader) GetLedger(ctx context.Context, actor ledger.Member, ledgerID string) (*ledger.Ledger, error) {
	args := m.Called(ctx, actor, ledgerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Ledger), args.Error(1)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Save(ctx context.Context, tx *ledger.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *MockTransactionRepository) Get(ctx context.Context, ledgerID, id string) (*ledger.Transaction, error) {
	args := m.Called(ctx, ledgerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListByLedger(ctx context.Context, ledgerID string, includeDeleted bool) ([]*ledger.Transaction, error) {
	args := m.Called(ctx, ledgerID, includeDeleted)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) SoftDelete(ctx context.Context, ledgerID, id string, at time.Time) error {
	return m.Called(ctx, ledgerID, id, at).Error(0)
}

func (m *MockTransactionRepository) DeleteByLedger(ctx context.Context, ledgerID string) (int64, error) {
	args := m.Called(ctx, ledgerID)
	return args.Get(0).(int64), args.Error(1)
}

type MockTemplateEngine struct {
	mock.Mock
}

func (m *MockTemplateEngine) Create(ctx context.Context, actor ledger.Member, ledgerID string, spec recurring.Spec) (*recurring.Template, error) {
	args := m.Called(ctx, actor, ledgerID, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*recurring.Template), args.Error(1)
}

func (m *MockTemplateEngine) List(ctx context.Context, actor ledger.Member, ledgerID string) ([]*recurring.Template, error) {
	args := m.Called(ctx, actor, ledgerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*recurring.Template), args.Error(1)
}

func (m *MockTemplateEngine) Delete(ctx context.Context, actor ledger.Member, ledgerID, templateID string) error {
	return m.Called(ctx, actor, ledgerID, templateID).Error(0)
}

type MockFireRequestPublisher struct {
	mock.Mock
}

func (m *MockFireRequestPublisher) PublishRequest(ctx context.Context, req *recurring.FireRequest) error {
	return m.Called(ctx, req).Error(0)
}

type MockParser struct {
	mock.Mock
}

func (m *MockParser) Parse(ctx context.Context, text string, categories []string) (*aiparse.ParsedTransaction, error) {
	args := m.Called(ctx, text, categories)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aiparse.ParsedTransaction), args.Error(1)
}
