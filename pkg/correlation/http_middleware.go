package correlation

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPMiddleware adds correlation ID tracking and request logging to HTTP handlers
type HTTPMiddleware struct {
	logger *logrus.Entry
}

// NewHTTPMiddleware creates a new HTTP correlation middleware
func NewHTTPMiddleware(logger *logrus.Logger) *HTTPMiddleware {
	return &HTTPMiddleware{logger: logger.WithField("component", "http")}
}

// Middleware wraps next with correlation ID propagation. An incoming
// X-Correlation-ID or X-Request-ID is reused, otherwise a new one is generated.
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		correlationID := extractCorrelationID(r)
		if correlationID.IsEmpty() {
			correlationID = New()
		}
		clientIP := ClientIP(r)

		ctx := WithCorrelationID(r.Context(), correlationID)
		ctx = WithClientIP(ctx, clientIP)
		r = r.WithContext(ctx)

		w.Header().Set(HTTPHeader, correlationID.String())

		wrapper := &responseWrapper{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapper, r)

		fields := logrus.Fields{
			"correlation_id": correlationID.String(),
			"method":         r.Method,
			"path":           r.URL.Path,
			"status":         wrapper.statusCode,
			"duration_ms":    time.Since(startTime).Milliseconds(),
			"client_ip":      clientIP,
		}

		switch {
		case wrapper.hijacked:
			m.logger.WithFields(fields).Debug("HTTP connection upgraded")
		case wrapper.statusCode >= 500:
			m.logger.WithFields(fields).Error("HTTP request completed with server error")
		case wrapper.statusCode >= 400:
			m.logger.WithFields(fields).Warn("HTTP request completed with client error")
		default:
			m.logger.WithFields(fields).Debug("HTTP request completed")
		}
	})
}

func extractCorrelationID(r *http.Request) ID {
	if id := r.Header.Get(HTTPHeader); id != "" {
		return ID(id)
	}
	if id := r.Header.Get(HTTPRequestIDHeader); id != "" {
		return ID(id)
	}
	return ""
}

// ClientIP extracts the client IP from the request, honouring proxy headers
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
	written    bool
	hijacked   bool
}

// WriteHeader captures the status code
func (w *responseWrapper) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write captures that a write occurred
func (w *responseWrapper) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades take over the connection
func (w *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	conn, rw, err := hijacker.Hijack()
	if err == nil {
		w.hijacked = true
		w.statusCode = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

// Unwrap returns the underlying ResponseWriter (for http.Flusher, etc.)
func (w *responseWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
