package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/housefun/internal/fairness"
	"github.com/alanyoungcy/housefun/internal/server/handler"
)

type fixedLimiter struct {
	mu    sync.Mutex
	left  int
	calls int
}

func (l *fixedLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.left <= 0 {
		return false, nil
	}
	l.left--
	return true, nil
}

type verifyFunc func(serverSeed, clientSeed string, nonce uint64, expected int, rules fairness.Rules) (fairness.Verification, error)

func (f verifyFunc) Verify(serverSeed, clientSeed string, nonce uint64, expected int, rules fairness.Rules) (fairness.Verification, error) {
	return f(serverSeed, clientSeed, nonce, expected, rules)
}

func testRoutes(t *testing.T, limiter *fixedLimiter) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return Routes(Config{APIKey: "secret", CORSOrigins: []string{"*"}}, Handlers{
		Health: handler.NewHealthHandler("server", "legacy", nil, logger),
		Verify: handler.NewVerifyHandler(verifyFunc(fairness.Verify), logger),
	}, nil, limiter, logger)
}

func TestPublicRoutesSkipAuth(t *testing.T) {
	h := testRoutes(t, &fixedLimiter{left: 10})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/verify",
		strings.NewReader(`{"server_seed":"s","client_seed":"c","nonce":0,"expected":"0"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPrivateRoutesRequireKey(t *testing.T) {
	h := testRoutes(t, &fixedLimiter{left: 10})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fairness/seed?bettor=alice", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Authenticated but unregistered since Games is nil.
	req := httptest.NewRequest(http.MethodGet, "/api/games/g1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyIsRateLimited(t *testing.T) {
	limiter := &fixedLimiter{left: 1}
	h := testRoutes(t, limiter)
	target := "/api/verify?server_seed=s&client_seed=c&nonce=0&expected=1"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
	require.Equal(t, 2, limiter.calls)
}
