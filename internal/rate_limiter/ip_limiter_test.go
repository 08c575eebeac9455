package ratelimiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(requests int) *IPRateLimiter {
	return NewIPRateLimiter(requests, time.Minute, CleanupOpts{
		TTL:      time.Minute,
		Interval: time.Minute,
	})
}

func TestAllow(t *testing.T) {
	rl := newTestLimiter(3)
	defer rl.Cancel()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d should pass", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"), "burst exhausted")

	// Another address has its own bucket.
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestMiddleware(t *testing.T) {
	rl := newTestLimiter(1)
	defer rl.Cancel()

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "192.168.1.5:51000"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetClientIP(t *testing.T) {
	rl := newTestLimiter(1)
	defer rl.Cancel()

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       ipAddr
	}{
		{name: "host port", remoteAddr: "192.168.1.5:51000", want: "192.168.1.5"},
		{name: "forwarded", remoteAddr: "10.0.0.1:80", xff: "203.0.113.7", want: "203.0.113.7"},
		{name: "forwarded chain", remoteAddr: "10.0.0.1:80", xff: "203.0.113.7, 198.51.100.2", want: "198.51.100.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, rl.GetClientIP(req))
		})
	}
}
