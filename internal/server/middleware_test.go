package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursehub/internal/access"
	"coursehub/internal/auth"
	"coursehub/internal/billing"
	"coursehub/internal/booking"
	"coursehub/internal/config"
	"coursehub/internal/course"
	"coursehub/internal/ledger"
	"coursehub/internal/subscription"
	"coursehub/internal/user"
)

const testSecret = "test-secret"

type stubEntitlements struct {
	state subscription.EntitlementState
}

func (s stubEntitlements) Entitlement(context.Context, int) (subscription.Entitlement, error) {
	return subscription.Entitlement{State: s.state}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Port:      "0",
		JWTSecret: testSecret,
		RateLimit: config.RateLimit{RPS: 100, Burst: 100},
	}
}

// newTestServer mounts every route. Only the middleware in front of the
// handlers runs in these tests, so the services behind them are nil.
func newTestServer(t *testing.T, cfg *config.Config, checks map[string]Check) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gate := access.NewGate(stubEntitlements{state: subscription.EntitlementNone})
	s := New(cfg, Handlers{
		User:         user.NewHandler(nil),
		Course:       course.NewHandler(nil),
		Booking:      booking.NewHandler(nil),
		Ledger:       ledger.NewHandler(nil),
		Subscription: subscription.NewHandler(nil),
		Access:       access.NewHandler(gate),
		Billing: billing.NewHandler(
			billing.NewVerifier("whsec_test", 5*time.Minute, time.Second),
			billing.NewReconciler(nil, billing.RetryConfig{}),
			"",
		),
		Gate: gate,
	}, checks)
	t.Cleanup(s.limiter.Stop)
	return s
}

func bearer(t *testing.T, userID int, role auth.Role) string {
	t.Helper()
	token, err := auth.GenerateAccessToken(userID, "u@example.com", role, testSecret)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(s *Server, method, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig(), map[string]Check{
		"postgres": func(context.Context) error { return nil },
	})
	w := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"postgres":"ok"}}`, w.Body.String())

	s = newTestServer(t, testConfig(), map[string]Check{
		"redis": func(context.Context) error { return errors.New("dial tcp: connection refused") },
	})
	w = do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	do(s, http.MethodGet, "/health", "")

	w := do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestRequestIDMiddleware(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := do(s, http.MethodGet, "/health", "")
	_, err := uuid.Parse(w.Header().Get("X-Request-ID"))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestCorsMiddleware(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = do(s, http.MethodOptions, "/courses", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimit{RPS: 0.001, Burst: 2}
	s := newTestServer(t, cfg, nil)

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/me", "").Code)

	w := do(s, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limited")

	// Health and webhooks are outside the limited group.
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", "").Code)
}

func TestWebhookNeedsNoSession(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := do(s, http.MethodPost, "/webhooks/payments", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing_signature")
}

func TestRouteGuards(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	tests := []struct {
		name   string
		method string
		path   string
		authz  string
		want   int
		code   string
	}{
		{"no token", http.MethodGet, "/ledger/summary", "", http.StatusUnauthorized, "unauthenticated"},
		{"bad token", http.MethodGet, "/ledger/summary", "Bearer nope", http.StatusUnauthorized, "unauthenticated"},
		{"participant cannot view ledger", http.MethodGet, "/ledger/summary", bearer(t, 12, auth.RoleParticipant), http.StatusForbidden, "forbidden"},
		{"participant cannot create course", http.MethodPost, "/courses", bearer(t, 12, auth.RoleParticipant), http.StatusForbidden, "forbidden"},
		{"organizer without subscription", http.MethodPost, "/courses", bearer(t, 3, auth.RoleOrganizer), http.StatusForbidden, "no_subscription"},
		{"participant cannot confirm", http.MethodPost, "/enrollments/1/confirm", bearer(t, 12, auth.RoleParticipant), http.StatusForbidden, "forbidden"},
		{"admin cannot enroll", http.MethodPost, "/courses/1/enroll", bearer(t, 1, auth.RoleAdmin), http.StatusForbidden, "forbidden"},
		{"organizer is not admin", http.MethodPost, "/admin/ledger/company-packages", bearer(t, 3, auth.RoleOrganizer), http.StatusForbidden, "forbidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, tt.method, tt.path, tt.authz)
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
		})
	}
}

func TestCreationAccessRoute(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := do(s, http.MethodGet, "/courses/creation-access", bearer(t, 3, auth.RoleOrganizer))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"allowed":false,"reason":"no_subscription"}`, w.Body.String())
}

func TestStatusLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, statusLevel(http.StatusCreated))
	assert.Equal(t, slog.LevelWarn, statusLevel(http.StatusConflict))
	assert.Equal(t, slog.LevelError, statusLevel(http.StatusServiceUnavailable))
}
