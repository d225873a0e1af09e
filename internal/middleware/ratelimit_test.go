package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRateLimiter_PerSession(t *testing.T) {
	l := NewRateLimiter(2, zap.NewNop())
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(sessionID string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/booking/submit", nil)
		r = r.WithContext(WithSessionID(r.Context(), sessionID))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, do("a").Code)
	assert.Equal(t, http.StatusOK, do("a").Code)

	limited := do("a")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do("b").Code)
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := NewRateLimiter(0, zap.NewNop())
	assert.Nil(t, l)

	called := 0
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
	}))

	for i := 0; i < 10; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	}
	assert.Equal(t, 10, called)
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		delay time.Duration
		want  string
	}{
		{delay: 0, want: "1"},
		{delay: 300 * time.Millisecond, want: "1"},
		{delay: time.Second, want: "1"},
		{delay: 1500 * time.Millisecond, want: "2"},
		{delay: 10 * time.Second, want: "10"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryAfter(tt.delay), tt.delay.String())
	}
}
