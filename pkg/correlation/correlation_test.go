package correlation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewID(t *testing.T) {
	id := New()
	assert.False(t, id.IsEmpty())
	_, err := uuid.Parse(id.String())
	assert.NoError(t, err)
	assert.NotEqual(t, id, New())
}

func TestContextHelpers(t *testing.T) {
	assert.True(t, FromContext(context.Background()).IsEmpty())
	assert.Empty(t, ContextFields(context.Background()))

	ctx := WithCorrelationID(context.Background(), "abc")
	ctx = WithClientIP(ctx, "10.0.0.1")

	assert.Equal(t, ID("abc"), FromContext(ctx))
	assert.Equal(t, "10.0.0.1", ClientIPFromContext(ctx))
	assert.Equal(t, logrus.Fields{"correlation_id": "abc", "client_ip": "10.0.0.1"}, ContextFields(ctx))
}

func TestMiddlewareGeneratesID(t *testing.T) {
	var seen ID
	handler := NewHTTPMiddleware(quietLogger()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.False(t, seen.IsEmpty())
	assert.Equal(t, seen.String(), rec.Header().Get(HTTPHeader))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMiddlewareReusesIncomingID(t *testing.T) {
	testCases := []struct {
		name   string
		header string
	}{
		{"correlation header", HTTPHeader},
		{"request id header", HTTPRequestIDHeader},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var seen ID
			handler := NewHTTPMiddleware(quietLogger()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = FromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set(tc.header, "req-42")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, ID("req-42"), seen)
			assert.Equal(t, "req-42", rec.Header().Get(HTTPHeader))
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5123"
	assert.Equal(t, "192.0.2.7", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	assert.Equal(t, "198.51.100.2", ClientIP(req))
}

func TestResponseWrapperHijackUnsupported(t *testing.T) {
	w := &responseWrapper{ResponseWriter: httptest.NewRecorder()}
	_, _, err := w.Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
	assert.False(t, w.hijacked)
}
