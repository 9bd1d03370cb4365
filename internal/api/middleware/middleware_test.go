package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mw "github.com/kiranshivaraju/trialscope/internal/api/middleware"
	"github.com/kiranshivaraju/trialscope/pkg/models"
)

// --- mock cache ---

type mockCache struct {
	mu      sync.Mutex
	counter int64
	keys    []string
	err     error
}

func (m *mockCache) Ping(_ context.Context) error { return nil }
func (m *mockCache) SetSnapshot(_ context.Context, _ *models.StatusResponse, _ time.Duration) error {
	return nil
}
func (m *mockCache) GetSnapshot(_ context.Context, _ string) (*models.StatusResponse, bool, error) {
	return nil, false, nil
}
func (m *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.counter++
	m.keys = append(m.keys, key)
	return m.counter, nil
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "response has no error object: %s", w.Body.String())
	return errObj
}

// ========================================
// Request ID Middleware Tests
// ========================================

func TestRequestID_Generated(t *testing.T) {
	var seen string
	handler := mw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = mw.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, w.Header().Get(mw.RequestIDHeader))
}

func TestRequestID_Propagated(t *testing.T) {
	var seen string
	handler := mw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = mw.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(mw.RequestIDHeader, "upstream-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "upstream-123", seen)
	assert.Equal(t, "upstream-123", w.Header().Get(mw.RequestIDHeader))
}

func TestRequestID_OversizedReplaced(t *testing.T) {
	var seen string
	handler := mw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = mw.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(mw.RequestIDHeader, strings.Repeat("x", 500))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestGetRequestID_Missing(t *testing.T) {
	assert.Empty(t, mw.GetRequestID(context.Background()))
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCache{}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	require.Len(t, mc.keys, 1)
	assert.True(t, strings.HasPrefix(mc.keys[0], "ratelimit:10.1.2.3:"), mc.keys[0])
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60} // next IncrWithExpiry will return 61
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)
	assert.LessOrEqual(t, retry, 60)
}

func TestRateLimit_DefaultLimit(t *testing.T) {
	handler := mw.NewRateLimit(&mockCache{}, 0).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mc := &mockCache{err: errors.New("redis down")}
	handler := mw.NewRateLimit(mc, 1).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_NilCachePassThrough(t *testing.T) {
	handler := mw.NewRateLimit(nil, 1).Limit(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_AbortsStartedResponse(t *testing.T) {
	handler := mw.Recovery(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-partial"))
		panic("stream broke")
	}))

	w := httptest.NewRecorder()
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	})
	assert.Equal(t, "%PDF-partial", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
}

func TestRecovery_LeavesAbortHandlerAlone(t *testing.T) {
	handler := mw.Recovery(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test", nil))
	})
}

func TestRecovery_PassesFlush(t *testing.T) {
	handler := mw.Recovery(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		f.Flush()
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	assert.True(t, w.Flushed)
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	handler := mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestLogger_PassesFlush(t *testing.T) {
	handler := mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		_, _ = w.Write([]byte("chunk"))
		f.Flush()
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	assert.True(t, w.Flushed)
}
