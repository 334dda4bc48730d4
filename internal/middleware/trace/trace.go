package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"lifeplan/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"

	// HeaderRequestID carries the request id in both directions.
	HeaderRequestID = "X-Request-ID"
)

// Incoming ids are accepted only when they look like something we could log safely.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_.-]{8,64}$`)

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *log.Logger

	totalRequests   int64
	totalDurationUs int64
	serverErrors    int64
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests       int64
	ServerErrors        int64
	AverageResponseTime int64 // in microseconds
}

// NewMiddleware creates a new trace middleware. A nil logger falls back to
// the logger found in the request context.
func NewMiddleware(extractIP func(*http.Request) string, logger *log.Logger) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		logger:    logger,
	}
}

// Middleware returns HTTP middleware for request tracing
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := r.Header.Get(HeaderRequestID)
		if !validRequestID.MatchString(requestID) {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		logger := m.logger
		if logger == nil {
			logger = log.FromContext(r.Context())
		}
		logger = logger.With(log.FieldRequestID, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = log.NewContext(ctx, logger)
		r = r.WithContext(ctx)

		sl := log.NewStructuredLogger(logger)
		sl.LogHTTPStart(ctx, r, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		atomic.AddInt64(&m.totalRequests, 1)
		atomic.AddInt64(&m.totalDurationUs, duration.Microseconds())
		if rw.statusCode >= 500 {
			atomic.AddInt64(&m.serverErrors, 1)
		}

		sl.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	total := atomic.LoadInt64(&m.totalRequests)
	var avg int64
	if total > 0 {
		avg = atomic.LoadInt64(&m.totalDurationUs) / total
	}
	return Metrics{
		TotalRequests:       total,
		ServerErrors:        atomic.LoadInt64(&m.serverErrors),
		AverageResponseTime: avg,
	}
}
