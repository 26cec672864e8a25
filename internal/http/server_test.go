package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"butce/internal/auth"
	"butce/internal/config"
	"butce/internal/middleware/trace"
	"butce/internal/services"
	"butce/internal/storage/memory"
)

const testOrigin = "https://example.com"

type testServer struct {
	srv    *Server
	tokens *auth.TokenService
	store  *memory.Store
}

func newTestServer(t *testing.T, writeLimit int) *testServer {
	t.Helper()

	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	reports := services.NewReportService(store, 100, time.Minute, nil)
	tokens := auth.NewTokenService(strings.Repeat("s", 32), time.Hour)
	cfg := &config.Config{
		Port:                 "8081",
		RateLimitWrite:       writeLimit,
		RateLimitWriteWindow: time.Minute,
		RateLimitRead:        100,
		RateLimitReadWindow:  time.Minute,
	}

	srv := NewServer(cfg, Dependencies{
		Transactions: services.NewTransactionService(store, nil, reports, nil),
		Reports:      reports,
		Budget:       services.NewBudgetService(store, store, reports, nil),
		Tokens:       tokens,
		Counter:      store,
		Store:        store,
	})
	srv.now = func() time.Time { return time.Date(2025, 12, 21, 10, 0, 0, 0, time.UTC) }

	return &testServer{srv: srv, tokens: tokens, store: store}
}

func (ts *testServer) do(t *testing.T, userID uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		if strings.HasPrefix(body, "{") {
			req.Header.Set("Content-Type", "application/json")
		} else {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	req.Header.Set("Origin", testOrigin)
	if userID != uuid.Nil {
		token, err := ts.tokens.IssueToken(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, 30)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := ts.do(t, uuid.Nil, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.NotEmpty(t, rr.Header().Get(trace.HeaderRequestID), path)
	}

	rr := ts.do(t, uuid.Nil, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total")
	assert.Contains(t, rr.Body.String(), `cache_entries{type="dashboard"}`)
}

func TestNotFoundIsJSON(t *testing.T) {
	ts := newTestServer(t, 30)

	rr := ts.do(t, uuid.Nil, http.MethodGet, "/nope", "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, CodeNotFound, body.Code)
	assert.Equal(t, rr.Header().Get(trace.HeaderRequestID), body.RequestID)
}

func TestMethodNotAllowedIsJSON(t *testing.T) {
	ts := newTestServer(t, 30)

	rr := ts.do(t, uuid.Nil, http.MethodPut, "/api/wallets", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "GET, POST", rr.Header().Get("Allow"))
	assert.Equal(t, CodeMethodNotAllowed, decodeError(t, rr).Code)

	rr = ts.do(t, uuid.Nil, http.MethodGet, "/api/transactions/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "DELETE", rr.Header().Get("Allow"))
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, 30)

	rr := ts.do(t, uuid.Nil, http.MethodGet, "/healthz", "")

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Contains(t, rr.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestAPIRequiresSession(t *testing.T) {
	ts := newTestServer(t, 30)

	rr := ts.do(t, uuid.Nil, http.MethodGet, "/api/dashboard", "")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, CodeUnauthorized, decodeError(t, rr).Code)
}

func TestCrossOriginWriteIsForbidden(t *testing.T) {
	ts := newTestServer(t, 30)
	token, err := ts.tokens.IssueToken(uuid.New())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/wallets", strings.NewReader(`{"name":"Nakit","balance":"10"}`))
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, CodeForbidden, decodeError(t, rr).Code)
}

func TestTransactionLifecycle(t *testing.T) {
	ts := newTestServer(t, 30)
	user := uuid.New()

	rr := ts.do(t, user, http.MethodPost, "/api/transactions",
		`{"amount":"1200","type":"expense","category":"Kira","date":"2025-12-01"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created struct {
		ID       uuid.UUID `json:"id"`
		Amount   string    `json:"amount"`
		Category string    `json:"category"`
		Date     string    `json:"date"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "1200", created.Amount)
	assert.Equal(t, "2025-12-01", created.Date)

	rr = ts.do(t, user, http.MethodPost, "/api/transactions", "amount=50%2C25&type=income&category=Ek+gelir")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = ts.do(t, user, http.MethodGet, "/api/transactions?month=2025-12&limit=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var page struct {
		Items      []json.RawMessage `json:"items"`
		NextCursor string            `json:"nextCursor"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Len(t, page.Items, 1)
	require.NotEmpty(t, page.NextCursor)

	rr = ts.do(t, user, http.MethodGet, "/api/transactions?month=2025-12&limit=1&cursor="+page.NextCursor, "")
	require.Equal(t, http.StatusOK, rr.Code)
	page.NextCursor = ""
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Len(t, page.Items, 1)
	assert.Empty(t, page.NextCursor)

	// Another user cannot delete it.
	rr = ts.do(t, uuid.New(), http.MethodDelete, "/api/transactions/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(t, user, http.MethodDelete, "/api/transactions/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.do(t, user, http.MethodDelete, "/api/transactions/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(t, user, http.MethodDelete, "/api/transactions/not-a-uuid", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateTransactionValidation(t *testing.T) {
	ts := newTestServer(t, 30)
	user := uuid.New()

	rr := ts.do(t, user, http.MethodPost, "/api/transactions", `{"amount":"-3","type":"gift"}`)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, CodeValidation, body.Code)
	assert.Len(t, body.Issues, 3)
	for _, field := range []string{"amount", "type", "category"} {
		assert.NotEmpty(t, body.Issues[field], field)
	}

	rr = ts.do(t, user, http.MethodPost, "/api/transactions", `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, CodeBadRequest, decodeError(t, rr).Code)
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t, 30)
	user := uuid.New()

	for _, body := range []string{
		`{"name":"Banka","balance":"5000"}`,
	} {
		rr := ts.do(t, user, http.MethodPost, "/api/wallets", body)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	for _, body := range []string{
		`{"amount":"2280","type":"expense","category":"Sosyal/Keyif","date":"2025-12-05"}`,
		`{"amount":"1520","type":"expense","category":"Beslenme","date":"2025-12-06"}`,
	} {
		rr := ts.do(t, user, http.MethodPost, "/api/transactions", body)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := ts.do(t, user, http.MethodGet, "/api/dashboard?month=2025-12", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var dash struct {
		Month struct {
			Label string `json:"label"`
		} `json:"month"`
		Summary struct {
			ExpenseTotal float64 `json:"expenseTotal"`
		} `json:"summary"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dash))
	assert.Equal(t, "2025-12", dash.Month.Label)
	assert.InDelta(t, 3800, dash.Summary.ExpenseTotal, 0.001)
	assert.Contains(t, dash.Message, "%60")

	// Malformed month falls back to the current one.
	rr = ts.do(t, user, http.MethodGet, "/api/dashboard?month=garbage", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dash))
	assert.Equal(t, "2025-12", dash.Month.Label)
}

func TestWalletsAndFixedExpenses(t *testing.T) {
	ts := newTestServer(t, 30)
	user := uuid.New()

	rr := ts.do(t, user, http.MethodPost, "/api/wallets", "name=Kredi+kart%C4%B1&balance=-250%2C5")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = ts.do(t, user, http.MethodGet, "/api/wallets", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"balance":"-250.5"`)

	rr = ts.do(t, user, http.MethodPost, "/api/fixed-expenses",
		`{"name":"Kira","amount":"1200","category":"Kira","frequency":"monthly","startDate":"2025-01-01"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var fe struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fe))

	rr = ts.do(t, user, http.MethodPost, "/api/fixed-expenses",
		`{"name":"Kira","amount":"1200","category":"Kira","frequency":"daily","startDate":"2025-01-01"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	for i := 0; i < 2; i++ {
		rr = ts.do(t, user, http.MethodPost, "/api/fixed-expenses/"+fe.ID.String()+"/pay?month=2025-12", "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}

	rr = ts.do(t, user, http.MethodGet, "/api/fixed-expenses?month=2025-12", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Month string `json:"month"`
		Items []struct {
			Paid bool `json:"paid"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Equal(t, "2025-12", list.Month)
	require.Len(t, list.Items, 1)
	assert.True(t, list.Items[0].Paid)

	rr = ts.do(t, uuid.New(), http.MethodPost, "/api/fixed-expenses/"+fe.ID.String()+"/pay", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMonthlyReport(t *testing.T) {
	ts := newTestServer(t, 30)
	user := uuid.New()

	rr := ts.do(t, user, http.MethodGet, "/api/reports/2025-13", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, decodeError(t, rr).Issues, "month")

	rr = ts.do(t, user, http.MethodGet, "/api/reports/2025-12", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWriteRateLimit(t *testing.T) {
	ts := newTestServer(t, 2)
	user := uuid.New()

	for i := 0; i < 2; i++ {
		rr := ts.do(t, user, http.MethodPost, "/api/wallets", `{"name":"Nakit","balance":"1"}`)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := ts.do(t, user, http.MethodPost, "/api/wallets", `{"name":"Nakit","balance":"1"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, CodeRateLimited, decodeError(t, rr).Code)

	// Reads have their own budget.
	rr = ts.do(t, user, http.MethodGet, "/api/wallets", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}
