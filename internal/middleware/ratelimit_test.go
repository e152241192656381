package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qcom/authgate/internal/config"
	"github.com/stretchr/testify/require"
)

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		require.Equal(t, "192.168.1.1", IPKeyExtractor(req))
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		require.Equal(t, "203.0.113.1", IPKeyExtractor(req))
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", IPKeyExtractor(req))
	})
}

func TestRateLimit(t *testing.T) {
	cfg := config.RateLimitConfig{LoginRequests: 2, LoginWindow: time.Minute, LoginBurst: 2}
	handler := RateLimit(cfg, IPKeyExtractor, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, call("10.0.0.1:1").Code)
	require.Equal(t, http.StatusOK, call("10.0.0.1:2").Code)

	rec := call("10.0.0.1:3")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "rate_limit_exceeded", decodeError(t, rec).Code)

	// Other clients have their own bucket.
	require.Equal(t, http.StatusOK, call("10.0.0.2:1").Code)
}

func TestRateLimitWithoutKeyAllows(t *testing.T) {
	cfg := config.RateLimitConfig{LoginRequests: 1, LoginWindow: time.Minute, LoginBurst: 1}
	handler := RateLimit(cfg, func(*http.Request) string { return "" }, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
