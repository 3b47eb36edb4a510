package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := serve(handler, "192.168.1.1:12345", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "", w.Header().Get("Retry-After"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serve(handler, "10.0.0.1:9999", nil).Code)
	}

	w := serve(handler, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var (
		code    int
		message string
	)
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Int()
		case "message":
			message, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}))
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", message)
}

func TestRateLimit_RejectedRequestsDoNotConsume(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Second})
	now := time.Now()

	_, delay := rl.reserve("k", now)
	require.Zero(t, delay)
	for range 5 {
		_, delay = rl.reserve("k", now)
		require.Positive(t, delay)
	}

	// One token refills after a full window regardless of rejections.
	_, delay = rl.reserve("k", now.Add(time.Second))
	assert.Zero(t, delay)
}

func TestRateLimit_Keys(t *testing.T) {
	tests := []struct {
		name   string
		cfg    RateLimitConfig
		first  func(http.Handler) *httptest.ResponseRecorder
		second func(http.Handler) *httptest.ResponseRecorder
		want   int
	}{
		{
			name:   "different ips are independent",
			cfg:    RateLimitConfig{Max: 1, Window: time.Minute},
			first:  func(h http.Handler) *httptest.ResponseRecorder { return serve(h, "10.0.0.1:1234", nil) },
			second: func(h http.Handler) *httptest.ResponseRecorder { return serve(h, "10.0.0.2:1234", nil) },
			want:   http.StatusOK,
		},
		{
			name:   "same ip different port shares a bucket",
			cfg:    RateLimitConfig{Max: 1, Window: time.Minute},
			first:  func(h http.Handler) *httptest.ResponseRecorder { return serve(h, "10.0.0.1:1234", nil) },
			second: func(h http.Handler) *httptest.ResponseRecorder { return serve(h, "10.0.0.1:5678", nil) },
			want:   http.StatusTooManyRequests,
		},
		{
			name: "forwarded for first hop",
			cfg:  RateLimitConfig{Max: 1, Window: time.Minute},
			first: func(h http.Handler) *httptest.ResponseRecorder {
				return serve(h, "192.168.1.1:4444", map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"})
			},
			second: func(h http.Handler) *httptest.ResponseRecorder {
				return serve(h, "192.168.1.2:5555", map[string]string{"X-Forwarded-For": "203.0.113.50"})
			},
			want: http.StatusTooManyRequests,
		},
		{
			name: "custom key func",
			cfg: RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: func(r *http.Request) string {
				return r.Header.Get("X-API-Key")
			}},
			first: func(h http.Handler) *httptest.ResponseRecorder {
				return serve(h, "", map[string]string{"X-API-Key": "key-a"})
			},
			second: func(h http.Handler) *httptest.ResponseRecorder {
				return serve(h, "", map[string]string{"X-API-Key": "key-b"})
			},
			want: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(tt.cfg)(okHandler())
			require.Equal(t, http.StatusOK, tt.first(h).Code)
			assert.Equal(t, tt.want, tt.second(h).Code)
		})
	}
}

func TestRateLimit_Cleanup(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Now()

	rl.reserve("old", now)
	rl.reserve("fresh", now.Add(50*time.Second))
	rl.cleanup(now.Add(90 * time.Second))

	assert.NotContains(t, rl.entries, "old")
	assert.Contains(t, rl.entries, "fresh")
}
