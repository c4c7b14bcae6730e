package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/camuig/smartapi-proxy/internal/config"
	"github.com/camuig/smartapi-proxy/internal/logger"
	"github.com/camuig/smartapi-proxy/internal/metrics"
	"github.com/camuig/smartapi-proxy/internal/quotes"
	"github.com/camuig/smartapi-proxy/internal/service"
	"github.com/camuig/smartapi-proxy/internal/session"
	"github.com/camuig/smartapi-proxy/internal/symbols"
	"github.com/camuig/smartapi-proxy/internal/web"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Login(ctx context.Context, creds session.Credentials) (*session.Session, error) {
	args := m.Called(ctx, creds)
	s, _ := args.Get(0).(*session.Session)
	return s, args.Error(1)
}

func (m *MockService) Quotes(ctx context.Context, accountID string, syms []string) ([]quotes.Result, error) {
	args := m.Called(ctx, accountID, syms)
	r, _ := args.Get(0).([]quotes.Result)
	return r, args.Error(1)
}

func (m *MockService) OptionChain(ctx context.Context, accountID, symbol string) error {
	return m.Called(ctx, accountID, symbol).Error(0)
}

func (m *MockService) Health() service.Health {
	return m.Called().Get(0).(service.Health)
}

func (m *MockService) Status(ctx context.Context, accountID string) (service.Status, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(service.Status), args.Error(1)
}

func newServer(t *testing.T, svc web.Service) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Port = 5000
	cfg.Server.RequestTimeoutSeconds = 30
	cfg.Server.AllowedOrigins = []string{"*"}
	return web.NewServer(svc, metrics.New(), cfg, logger.Discard()).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

const loginBody = `{"apiKey":"k","clientId":"A1","password":"p","totp":"JBSWY3DPEHPK3PXP"}`

func TestLogin_Success(t *testing.T) {
	svc := new(MockService)
	svc.On("Login", mock.Anything, session.Credentials{APIKey: "k", ClientID: "A1", Password: "p", TOTPSecret: "JBSWY3DPEHPK3PXP"}).
		Return(&session.Session{AccountID: "A1", AuthToken: "jwt", FeedToken: "feed"}, nil).Once()

	w, body := do(t, newServer(t, svc), http.MethodPost, "/api/login", loginBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"success": true, "authToken": "jwt", "feedToken": "feed"}, body)
	svc.AssertExpectations(t)
}

func TestLogin_Rejected(t *testing.T) {
	svc := new(MockService)
	svc.On("Login", mock.Anything, mock.Anything).
		Return(nil, &session.AuthError{AccountID: "A1", Reason: "Invalid totp"}).Once()

	w, body := do(t, newServer(t, svc), http.MethodPost, "/api/login", loginBody)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "Invalid totp")
}

func TestLogin_UnexpectedFault(t *testing.T) {
	svc := new(MockService)
	svc.On("Login", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: connection refused")).Once()

	w, body := do(t, newServer(t, svc), http.MethodPost, "/api/login", loginBody)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "dial tcp: connection refused", body["error"])
}

func TestLogin_MissingField(t *testing.T) {
	svc := new(MockService)

	w, body := do(t, newServer(t, svc), http.MethodPost, "/api/login", `{"apiKey":"k","clientId":"A1","password":"p"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
	fields, ok := body["error"].([]any)
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "TOTP", fields[0].(map[string]any)["field"])
	svc.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
}

func TestLogin_MalformedJSON(t *testing.T) {
	w, body := do(t, newServer(t, new(MockService)), http.MethodPost, "/api/login", `{"apiKey":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request body", body["error"])
}

func TestQuotes(t *testing.T) {
	svc := new(MockService)
	results := []quotes.Result{
		{Symbol: "RELIANCE", Quote: &quotes.Quote{LTP: 2950.5, Change: 40.5, PChange: 1.39, Open: 2900, High: 2960, Low: 2890, Close: 2910}},
		{Symbol: "NOSUCHSTOCK", Err: symbols.ErrUnresolved},
	}
	svc.On("Quotes", mock.Anything, "A1", []string{"RELIANCE", "NOSUCHSTOCK"}).Return(results, nil).Once()

	w, body := do(t, newServer(t, svc), http.MethodGet, "/api/quotes?clientId=A1&symbols=RELIANCE,%20NOSUCHSTOCK,,", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	data := body["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, map[string]any{
		"symbol": "RELIANCE", "ltp": 2950.5, "change": 40.5, "pChange": 1.39,
		"open": 2900.0, "high": 2960.0, "low": 2890.0, "close": 2910.0,
	}, data[0])
	assert.Equal(t, map[string]any{"symbol": "NOSUCHSTOCK", "error": "symbol token not found"}, data[1])
}

func TestQuotes_NotAuthenticated(t *testing.T) {
	svc := new(MockService)
	svc.On("Quotes", mock.Anything, "ZZ", []string{"TCS"}).Return(nil, session.ErrNotAuthenticated).Once()

	w, body := do(t, newServer(t, svc), http.MethodGet, "/api/quotes?clientId=ZZ&symbols=TCS", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, map[string]any{"success": false, "error": "Not authenticated"}, body)
}

func TestQuotes_TooMany(t *testing.T) {
	svc := new(MockService)
	svc.On("Quotes", mock.Anything, "A1", mock.Anything).
		Return(nil, errors.Join(service.ErrInvalidRequest, errors.New("at most 1 symbols per request"))).Once()

	w, _ := do(t, newServer(t, svc), http.MethodGet, "/api/quotes?clientId=A1&symbols=TCS,INFY", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuotes_Timeout(t *testing.T) {
	svc := new(MockService)
	svc.On("Quotes", mock.Anything, "A1", mock.Anything).
		Return(nil, context.DeadlineExceeded).Once()

	w, body := do(t, newServer(t, svc), http.MethodGet, "/api/quotes?clientId=A1&symbols=TCS", "")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "request timed out", body["error"])
}

func TestHealth(t *testing.T) {
	svc := new(MockService)
	svc.On("Health").Return(service.Health{Status: "ok", Service: "smartapi-proxy"})

	w, body := do(t, newServer(t, svc), http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "ok", "service": "smartapi-proxy"}, body)
}

func TestOptionChain(t *testing.T) {
	svc := new(MockService)
	svc.On("OptionChain", mock.Anything, "", "NIFTY").Return(service.ErrNotImplemented)

	w, body := do(t, newServer(t, svc), http.MethodGet, "/api/option-chain?symbol=NIFTY", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"success": true, "message": "not implemented"}, body)
}

func TestStatus(t *testing.T) {
	svc := new(MockService)
	svc.On("Status", mock.Anything, "A1").Return(service.Status{AccountID: "A1", Authenticated: true, SessionAge: 12}, nil)

	w, body := do(t, newServer(t, svc), http.MethodGet, "/api/status?clientId=A1", "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["authenticated"])
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/quotes", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()

	newServer(t, new(MockService)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTimeoutMiddleware(t *testing.T) {
	svc := new(MockService)
	svc.On("Status", mock.Anything, "A1").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, ok := ctx.Deadline()
			assert.True(t, ok)
		}).
		Return(service.Status{AccountID: "A1"}, nil)

	_, _ = do(t, newServer(t, svc), http.MethodGet, "/api/status?clientId=A1", "")
	svc.AssertExpectations(t)
}
