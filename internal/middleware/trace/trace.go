// Package trace tags every request with an ID and logs its outcome.
package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "cruscotto/internal/log"
)

type contextKey struct{}

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// Middleware assigns request IDs and records request metrics.
type Middleware struct {
	logger    *applog.StructuredLogger
	extractIP func(*http.Request) string

	totalRequests  atomic.Int64
	serverErrors   atomic.Int64
	totalDurationU atomic.Int64
}

// Metrics is a snapshot of the traced requests.
type Metrics struct {
	TotalRequests int64
	ServerErrors  int64
	// AverageResponseTime in microseconds.
	AverageResponseTime int64
}

// NewMiddleware creates a trace middleware. extractIP may be nil.
func NewMiddleware(logger *applog.Logger, extractIP func(*http.Request) string) *Middleware {
	return &Middleware{
		logger:    applog.NewStructuredLogger(logger.WithComponent(applog.ComponentHTTP)),
		extractIP: extractIP,
	}
}

// Middleware reuses an incoming X-Request-ID when it is a UUID and
// otherwise generates one. The ID is echoed in the response.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)
		r = r.WithContext(WithRequestID(r.Context(), requestID))

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		m.totalRequests.Add(1)
		m.totalDurationU.Add(elapsed.Microseconds())
		if rw.statusCode >= 500 {
			m.serverErrors.Add(1)
		}

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}
		m.logger.LogHTTPEnd(r.Context(), r, rw.statusCode, elapsed.Milliseconds(), clientIP)
	})
}

// GetMetrics returns the current request counters.
func (m *Middleware) GetMetrics() Metrics {
	total := m.totalRequests.Load()
	out := Metrics{TotalRequests: total, ServerErrors: m.serverErrors.Load()}
	if total > 0 {
		out.AverageResponseTime = m.totalDurationU.Load() / total
	}
	return out
}

// GenerateRequestID returns a fresh request ID.
func GenerateRequestID() string {
	return uuid.NewString()
}

// WithRequestID returns ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// RequestID reads the ID of r, for applog.Middleware.
func RequestID(r *http.Request) string {
	return GetRequestID(r.Context())
}

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

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
