package api_gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/household-ledger/internal/api_gateway/middleware"
	"github.com/household-ledger/internal/api_gateway/service"
	"github.com/household-ledger/internal/config"
	"github.com/household-ledger/internal/data/sqlite"
	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/membership"
	"github.com/household-ledger/internal/platform/docstore"
	engine "github.com/household-ledger/internal/recurring"
	"github.com/household-ledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type recordingPublisher struct {
	mu       sync.Mutex
	requests []*recurring.FireRequest
}

func (p *recordingPublisher) PublishRequest(_ context.Context, req *recurring.FireRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return nil
}

// ServerTestSuite drives the whole backend over HTTP against an in-memory store.
type ServerTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    *store.Stores
	publisher *recordingPublisher
	handler   http.Handler
}

func (s *ServerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	port, err := sqlite.NewDocumentStore(logger, ":memory:", docstore.NewHub(8))
	require.NoError(s.T(), err)

	s.ctx = context.Background()
	s.stores = store.FromPort(logger, port)
	s.publisher = &recordingPublisher{}

	coordinator := membership.NewCoordinator(logger, s.stores.Ledgers, s.stores.Profiles, nil, config.StoreModeRemote, membership.Options{
		DefaultLedgerName: "我的帳本",
		JoinedLedgerName:  "共享帳本",
		UnnamedLedgerName: "未命名帳本",
		DeleteGracePeriod: 7 * 24 * time.Hour,
		Categories:        []string{"餐飲", "居住", "薪資"},
	})
	eng := engine.NewEngine(logger, s.stores.Ledgers, s.stores.Templates, s.stores.Transactions)

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 0},
		Auth:   config.AuthConfig{JWTSecret: "secret", AllowDevHeader: true},
	}
	srv := NewServer(logger, cfg, Services{
		Membership:   coordinator,
		Transactions: service.NewTransactionService(logger, coordinator, s.stores.Transactions, eng),
		Templates:    service.NewTemplateService(logger, eng, coordinator, s.publisher),
		Parse:        service.NewParseService(logger, coordinator, nil),
	})
	s.handler = srv.Handler()
}

func (s *ServerTestSuite) TearDownTest() {
	_ = s.stores.Close(s.ctx)
}

func (s *ServerTestSuite) call(method, path, uid string, body interface{}) (int, json.RawMessage) {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(s.T(), err)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set(middleware.DevUserHeader, uid)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &env)
	}
	return rr.Code, env.Data
}

func (s *ServerTestSuite) TestHealthNeedsNoIdentity() {
	code, _ := s.call(http.MethodGet, "/health", "", nil)
	assert.Equal(s.T(), http.StatusOK, code)
}

func (s *ServerTestSuite) TestRequestsWithoutIdentityAreRejected() {
	code, _ := s.call(http.MethodPost, "/api/v1/session/resolve", "", nil)
	assert.Equal(s.T(), http.StatusUnauthorized, code)
}

func (s *ServerTestSuite) TestSharedLedgerFlow() {
	t := s.T()

	code, data := s.call(http.MethodPost, "/api/v1/session/resolve", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var session struct {
		ActiveLedgerID string `json:"active_ledger_id"`
	}
	require.NoError(t, json.Unmarshal(data, &session))
	home := session.ActiveLedgerID
	require.NotEmpty(t, home)

	code, data = s.call(http.MethodPost, "/api/v1/ledgers", "alice", map[string]string{"name": "Trip Fund"})
	require.Equal(t, http.StatusCreated, code)
	var trip struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(data, &trip))

	code, _ = s.call(http.MethodGet, "/api/v1/ledgers/"+trip.ID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.call(http.MethodPost, "/api/v1/ledgers/"+trip.ID+"/join", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.call(http.MethodPost, "/api/v1/ledgers/does-not-exist/join", "bob", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.call(http.MethodPost, "/api/v1/ledgers/"+trip.ID+"/transactions", "bob", map[string]interface{}{
		"amount": "320", "type": "expense", "category": "餐飲", "date": "2026-10-18",
	})
	require.Equal(t, http.StatusCreated, code)

	code, data = s.call(http.MethodGet, "/api/v1/ledgers/"+trip.ID+"/transactions", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var txs []struct {
		CreatorUID string `json:"creator_uid"`
	}
	require.NoError(t, json.Unmarshal(data, &txs))
	require.Len(t, txs, 1)
	assert.Equal(t, "bob", txs[0].CreatorUID)

	code, _ = s.call(http.MethodPost, "/api/v1/ledgers/"+trip.ID+"/leave", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.call(http.MethodPost, "/api/v1/ledgers/"+trip.ID+"/leave", "alice", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func (s *ServerTestSuite) TestTemplatesQueueFireRequests() {
	t := s.T()

	code, data := s.call(http.MethodPost, "/api/v1/session/resolve", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var session struct {
		ActiveLedgerID string `json:"active_ledger_id"`
	}
	require.NoError(t, json.Unmarshal(data, &session))
	base := "/api/v1/ledgers/" + session.ActiveLedgerID

	code, data = s.call(http.MethodPost, base+"/templates", "alice", map[string]interface{}{
		"title": "Rent", "amount": 15000, "type": "expense", "category": "居住",
		"interval_months": 1, "execute_day": 5, "start_date": "2026-11-05", "total_runs": 3,
	})
	require.Equal(t, http.StatusCreated, code)
	var tpl struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(data, &tpl))

	code, _ = s.call(http.MethodPost, base+"/templates/"+tpl.ID+"/fire", "alice", map[string]string{"expected_run": "2026-11-05"})
	assert.Equal(t, http.StatusAccepted, code)
	code, _ = s.call(http.MethodPost, base+"/templates/due-check", "alice", nil)
	assert.Equal(t, http.StatusAccepted, code)

	require.Len(t, s.publisher.requests, 2)
	assert.Equal(t, recurring.RequestFire, s.publisher.requests[0].Kind)
	assert.Equal(t, tpl.ID, s.publisher.requests[0].TemplateID)
	assert.NotEmpty(t, s.publisher.requests[0].CorrelationID)
	assert.Equal(t, recurring.RequestDueCheck, s.publisher.requests[1].Kind)

	code, data = s.call(http.MethodPost, base+"/parse", "alice", map[string]string{"text": "午餐 120"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "null", string(data))
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
