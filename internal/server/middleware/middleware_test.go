package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuth(t *testing.T) {
	h := Auth("key", "/api/health")(okHandler)

	cases := []struct {
		name   string
		method string
		target string
		header map[string]string
		want   int
	}{
		{"missing", http.MethodGet, "/api/transfers", nil, http.StatusUnauthorized},
		{"wrong", http.MethodGet, "/api/transfers", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"api key header", http.MethodGet, "/api/transfers", map[string]string{"X-API-Key": "key"}, http.StatusOK},
		{"bearer", http.MethodGet, "/api/transfers", map[string]string{"Authorization": "bearer key"}, http.StatusOK},
		{"public path", http.MethodGet, "/api/health", nil, http.StatusOK},
		{"preflight", http.MethodOptions, "/api/transfers", nil, http.StatusOK},
		{"ws query token", http.MethodGet, "/ws?token=key", nil, http.StatusOK},
		{"query token elsewhere", http.MethodGet, "/api/transfers?token=key", nil, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAuth_DisabledWithoutKey(t *testing.T) {
	rec := httptest.NewRecorder()
	Auth("")(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transfers", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://lvz.example/"})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/transfers", nil)
	req.Header.Set("Origin", "https://lvz.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://lvz.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/transfers", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLocalLimiter(t *testing.T) {
	l := NewLocalLimiter(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "a", 3, time.Minute)
	assert.False(t, ok, "burst exhausted")

	ok, _ = l.Allow(ctx, "b", 3, time.Minute)
	assert.True(t, ok, "keys are independent")

	now = now.Add(20 * time.Second)
	ok, _ = l.Allow(ctx, "a", 3, time.Minute)
	assert.True(t, ok, "one token refilled")
}

func TestRateLimit_FailsOpenOnLimiterError(t *testing.T) {
	h := RateLimit(errLimiter{}, 1, time.Minute, discard())(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", extractClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", extractClientIP(req))
}

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, context.DeadlineExceeded
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
