package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/household-ledger/internal/api_gateway/middleware"
	"github.com/household-ledger/internal/api_gateway/service"
	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/profile"
	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/domain/schedule"
	"github.com/household-ledger/internal/platform/aiparse"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var alice = ledger.Member{UID: "alice"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestRouter authenticates every request as alice unless X-Anonymous is set.
func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(func(c *gin.Context) {
		if c.GetHeader("X-Anonymous") == "" {
			c.Set(middleware.ActorKey, alice)
		}
		c.Next()
	})
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return doJSONWith(t, router, method, path, body, false)
}

func doJSONWith(t *testing.T, router http.Handler, method, path string, body interface{}, anonymous bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if anonymous {
		req.Header.Set("X-Anonymous", "1")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Data          json.RawMessage `json:"data"`
	Error         *ErrorInfo      `json:"error"`
	CorrelationID string          `json:"correlation_id"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

type MockMembershipService struct {
	mock.Mock
}

var _ service.MembershipService = (*MockMembershipService)(nil)

func (m *MockMembershipService) EnsureProfile(ctx context.Context, actor ledger.Member) (*profile.UserProfile, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*profile.UserProfile), args.Error(1)
}

func (m *MockMembershipService) ResolveActiveLedger(ctx context.Context, actor ledger.Member) (string, error) {
	args := m.Called(ctx, actor)
	return args.String(0), args.Error(1)
}

func (m *MockMembershipService) SwitchLedger(ctx context.Context, actor ledger.Member, ledgerID string) error {
	return m.Called(ctx, actor, ledgerID).Error(0)
}

func (m *MockMembershipService) CreateLedger(ctx context.Context, actor ledger.Member, name string) (*ledger.Ledger, error) {
	args := m.Called(ctx, actor, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Ledger), args.Error(1)
}

func (m *MockMembershipService) GetLedger(ctx context.Context, actor ledger.Member, ledgerID string) (*ledger.Ledger, error) {
	args := m.Called(ctx, actor, ledgerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Ledger), args.Error(1)
}

func (m *MockMembershipService) JoinLedger(ctx context.Context, actor ledger.Member, ledgerID string) (bool, error) {
	args := m.Called(ctx, actor, ledgerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMembershipService) LeaveLedger(ctx context.Context, actor ledger.Member, ledgerID string) (string, error) {
	args := m.Called(ctx, actor, ledgerID)
	return args.String(0), args.Error(1)
}

func (m *MockMembershipService) UpdateLedgerAlias(ctx context.Context, actor ledger.Member, ledgerID, alias string) error {
	return m.Called(ctx, actor, ledgerID, alias).Error(0)
}

func (m *MockMembershipService) ListSavedLedgers(ctx context.Context, uid string) ([]profile.SavedLedgerEntry, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]profile.SavedLedgerEntry), args.Error(1)
}

func (m *MockMembershipService) AddCategory(ctx context.Context, actor ledger.Member, ledgerID, category string) (*ledger.Ledger, error) {
	args := m.Called(ctx, actor, ledgerID, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Ledger), args.Error(1)
}

func (m *MockMembershipService) RemoveCategory(ctx context.Context, actor ledger.Member, ledgerID, category string) (*ledger.Ledger, error) {
	args := m.Called(ctx, actor, ledgerID, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Ledger), args.Error(1)
}

type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) CreateTransaction(ctx context.Context, actor ledger.Member, ledgerID string, input ledger.TransactionInput, recurrence *service.RecurrenceInput) (*ledger.Transaction, *recurring.Template, error) {
	args := m.Called(ctx, actor, ledgerID, input, recurrence)
	var tx *ledger.Transaction
	if args.Get(0) != nil {
		tx = args.Get(0).(*ledger.Transaction)
	}
	var tpl *recurring.Template
	if args.Get(1) != nil {
		tpl = args.Get(1).(*recurring.Template)
	}
	return tx, tpl, args.Error(2)
}

func (m *MockTransactionService) ListTransactions(ctx context.Context, actor ledger.Member, ledgerID string, includeDeleted bool) ([]*ledger.Transaction, error) {
	args := m.Called(ctx, actor, ledgerID, includeDeleted)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Transaction), args.Error(1)
}

func (m *MockTransactionService) DeleteTransaction(ctx context.Context, actor ledger.Member, ledgerID, transactionID string) error {
	return m.Called(ctx, actor, ledgerID, transactionID).Error(0)
}

type MockTemplateService struct {
	mock.Mock
}

func (m *MockTemplateService) CreateTemplate(ctx context.Context, actor ledger.Member, ledgerID string, spec recurring.Spec) (*recurring.Template, error) {
	args := m.Called(ctx, actor, ledgerID, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*recurring.Template), args.Error(1)
}

func (m *MockTemplateService) ListTemplates(ctx context.Context, actor ledger.Member, ledgerID string) ([]*recurring.Template, error) {
	args := m.Called(ctx, actor, ledgerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*recurring.Template), args.Error(1)
}

func (m *MockTemplateService) DeleteTemplate(ctx context.Context, actor ledger.Member, ledgerID, templateID string) error {
	return m.Called(ctx, actor, ledgerID, templateID).Error(0)
}

func (m *MockTemplateService) RequestFire(ctx context.Context, actor ledger.Member, ledgerID, templateID string, expectedRun *schedule.Date, correlationID string) (*recurring.FireRequest, error) {
	args := m.Called(ctx, actor, ledgerID, templateID, expectedRun, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*recurring.FireRequest), args.Error(1)
}

func (m *MockTemplateService) RequestDueCheck(ctx context.Context, actor ledger.Member, ledgerID, correlationID string) (*recurring.FireRequest, error) {
	args := m.Called(ctx, actor, ledgerID, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*recurring.FireRequest), args.Error(1)
}

type MockParseService struct {
	mock.Mock
}

func (m *MockParseService) ParseText(ctx context.Context, actor ledger.Member, ledgerID, text string) (*aiparse.ParsedTransaction, error) {
	args := m.Called(ctx, actor, ledgerID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aiparse.ParsedTransaction), args.Error(1)
}
