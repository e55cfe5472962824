package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cashflow/internal/services"
	"cashflow/internal/storage"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	svc := services.NewExpenseService(repo, nil)
	srv := NewServer(":0", repo, svc, time.Hour, bcrypt.MinCost)
	t.Cleanup(func() { srv.rateLimiter.stop(); srv.cacheManager.Stop() })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	var env envelope
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), "body: %s", rr.Body.String())
	}
	return rr, env
}

func registerAndLogin(t *testing.T, srv *Server, email string) string {
	t.Helper()
	rr, env := doJSON(t, srv, http.MethodPost, "/auth/register", "",
		`{"email":"`+email+`","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, rr.Code, "register body: %s", rr.Body.String())

	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	require.NotEmpty(t, session.Token)
	return session.Token
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	rr, env := doJSON(t, srv, http.MethodPost, "/auth/register", "", `{"email":"","password":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Email and password required", env.Error)

	rr, env = doJSON(t, srv, http.MethodPost, "/auth/register", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request body", env.Error)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "dup@example.com")

	rr, env := doJSON(t, srv, http.MethodPost, "/auth/register", "",
		`{"email":"dup@example.com","password":"other"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "User already exists", env.Error)
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "login@example.com")

	// Bad credentials come back as a plain 400, same as an unknown email.
	rr, env := doJSON(t, srv, http.MethodPost, "/auth/login", "",
		`{"email":"login@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid credentials", env.Error)

	rr, env = doJSON(t, srv, http.MethodPost, "/auth/login", "",
		`{"email":"nobody@example.com","password":"hunter22"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid credentials", env.Error)

	rr, env = doJSON(t, srv, http.MethodPost, "/auth/login", "",
		`{"email":"login@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.NotEmpty(t, session.Token)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	rr, env := doJSON(t, srv, http.MethodGet, "/expenses", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Missing authorization token", env.Error)

	rr, env = doJSON(t, srv, http.MethodGet, "/expenses", "bogus-token", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Invalid or expired token", env.Error)
}

func TestSessionExpiryHonoredDespiteCache(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "expiry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	svc := services.NewExpenseService(repo, nil)
	srv := NewServer(":0", repo, svc, 500*time.Millisecond, bcrypt.MinCost)
	t.Cleanup(func() { srv.rateLimiter.stop(); srv.cacheManager.Stop() })

	token := registerAndLogin(t, srv, "shortlived@example.com")

	// Warm the session cache while the session is still valid.
	rr, _ := doJSON(t, srv, http.MethodGet, "/expenses", token, "")
	require.Equal(t, http.StatusOK, rr.Code)

	time.Sleep(600 * time.Millisecond)

	// The cache entry is still resident, but the session itself has expired.
	rr, env := doJSON(t, srv, http.MethodGet, "/expenses", token, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Invalid or expired token", env.Error)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "logout@example.com")

	rr, _ := doJSON(t, srv, http.MethodPost, "/auth/logout", token, "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr, env := doJSON(t, srv, http.MethodGet, "/expenses", token, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Invalid or expired token", env.Error)
}

func TestCreateAndListExpenses(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "spender@example.com")

	rr, env := doJSON(t, srv, http.MethodPost, "/expenses", token,
		`{"amount":12.50,"categoryId":1,"note":"lunch","createdAt":"2024-03-05"}`)
	require.Equal(t, http.StatusCreated, rr.Code, "body: %s", rr.Body.String())

	var created expenseResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.NotZero(t, created.ID)
	assert.InDelta(t, 12.5, created.Amount, 1e-9)
	require.NotNil(t, created.CategoryID)
	assert.Equal(t, int64(1), *created.CategoryID)

	rr, env = doJSON(t, srv, http.MethodGet, "/expenses", token, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var listed []expenseResponse
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "lunch", listed[0].Note)
}

func TestCreateExpenseRejectsBadAmount(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "badamount@example.com")

	rr, env := doJSON(t, srv, http.MethodPost, "/expenses", token, `{"amount":0,"note":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid amount", env.Error)

	rr, env = doJSON(t, srv, http.MethodPost, "/expenses", token,
		`{"amount":1.00,"createdAt":"05/03/2024"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid date format", env.Error)
}

func TestExpensesAreScopedToUser(t *testing.T) {
	srv := newTestServer(t)
	alice := registerAndLogin(t, srv, "alice@example.com")
	bob := registerAndLogin(t, srv, "bob@example.com")

	rr, _ := doJSON(t, srv, http.MethodPost, "/expenses", alice, `{"amount":5.00}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	_, env := doJSON(t, srv, http.MethodGet, "/expenses", bob, "")
	var listed []expenseResponse
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.Empty(t, listed)
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "cats@example.com")

	rr, env := doJSON(t, srv, http.MethodGet, "/categories", token, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var cats []categoryResponse
	require.NoError(t, json.Unmarshal(env.Data, &cats))
	require.NotEmpty(t, cats)
	assert.Equal(t, "Food", cats[0].Name)
}

func TestAnalyticsValidation(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "analytics@example.com")

	tests := []struct {
		name    string
		query   string
		status  int
		message string
	}{
		{"missing params", "", http.StatusBadRequest, "Missing from, to or groupBy"},
		{"missing to", "?from=2024-01-01&groupBy=day", http.StatusBadRequest, "Missing from, to or groupBy"},
		{"bad date", "?from=01/01/2024&to=2024-12-31&groupBy=day", http.StatusBadRequest, "Invalid date format"},
		{"bad groupBy", "?from=2024-01-01&to=2024-12-31&groupBy=year", http.StatusBadRequest, "Invalid groupBy value"},
		{"uppercase groupBy", "?from=2024-01-01&to=2024-12-31&groupBy=DAY", http.StatusBadRequest, "Invalid groupBy value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, env := doJSON(t, srv, http.MethodGet, "/analytics/expenses"+tt.query, token, "")
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.message, env.Error)
		})
	}
}

func TestAnalyticsEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "sums@example.com")

	for _, body := range []string{
		`{"amount":10.00,"categoryId":1,"createdAt":"2024-01-10T08:00:00Z"}`,
		`{"amount":5.00,"categoryId":1,"createdAt":"2024-01-20T08:00:00Z"}`,
		`{"amount":7.00,"categoryId":2,"createdAt":"2024-02-01T08:00:00Z"}`,
	} {
		rr, _ := doJSON(t, srv, http.MethodPost, "/expenses", token, body)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	type row struct {
		Key   any     `json:"key"`
		Label string  `json:"label"`
		Total float64 `json:"total"`
	}

	rr, env := doJSON(t, srv, http.MethodGet,
		"/analytics/expenses?from=2024-01-01&to=2024-12-31&groupBy=month", token, "")
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	var rows []row
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01", rows[0].Label)
	assert.InDelta(t, 15.0, rows[0].Total, 1e-9)
	assert.Equal(t, "2024-02", rows[1].Label)
	assert.InDelta(t, 7.0, rows[1].Total, 1e-9)

	// Category grouping resolves display names.
	rr, env = doJSON(t, srv, http.MethodGet,
		"/analytics/expenses?from=2024-01-01&to=2024-12-31&groupBy=category", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 2)
	labels := []string{rows[0].Label, rows[1].Label}
	assert.Contains(t, labels, "Food")
	assert.Contains(t, labels, "Transport")

	// A window before any expense yields an empty array, not null.
	rr, env = doJSON(t, srv, http.MethodGet,
		"/analytics/expenses?from=2020-01-01&to=2020-12-31&groupBy=day", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(string(env.Data)))
}

func TestAnalyticsCategoryFilter(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "filter@example.com")

	for _, body := range []string{
		`{"amount":10.00,"categoryId":1,"createdAt":"2024-01-10"}`,
		`{"amount":7.00,"categoryId":2,"createdAt":"2024-01-11"}`,
	} {
		rr, _ := doJSON(t, srv, http.MethodPost, "/expenses", token, body)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	type row struct {
		Total float64 `json:"total"`
	}

	// Non-numeric filter entries are dropped, valid ones restrict the result.
	rr, env := doJSON(t, srv, http.MethodGet,
		"/analytics/expenses?from=2024-01-01&to=2024-12-31&groupBy=day&categories=abc&categories=2", token, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var rows []row
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	assert.InDelta(t, 7.0, rows[0].Total, 1e-9)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "methods@example.com")

	rr, _ := doJSON(t, srv, http.MethodDelete, "/expenses", token, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "GET, POST", rr.Header().Get("Allow"))

	rr, _ = doJSON(t, srv, http.MethodGet, "/auth/register", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
