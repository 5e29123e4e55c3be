// Package middleware provides HTTP middleware for the scanward trigger
// API: request identification, logging, metrics, panic recovery, API
// key authentication, and request shaping.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/scanward/scanward/internal/auth"
	"github.com/scanward/scanward/internal/logging"
	"github.com/scanward/scanward/internal/metrics"
)

// ContextKey represents a context key type.
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey ContextKey = "request_id"

	// httpErrorThreshold is the status code threshold for HTTP errors.
	httpErrorThreshold = 400
)

// Logging tags each request with an id and logs start and completion.
func Logging(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := generateRequestID()
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			r = r.WithContext(ctx)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(wrapped, r)

			if logger != nil {
				logger.Info("http request",
					"request_id", requestID,
					"method", r.Method,
					"path", r.URL.Path,
					"status", wrapped.statusCode,
					"size", wrapped.size,
					"duration_ms", time.Since(start).Milliseconds(),
					"remote_addr", clientIP(r))
			}
		})
	}
}

// Metrics records request counts, latency, and error totals.
func Metrics(registry metrics.MetricsRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			status := strconv.Itoa(wrapped.statusCode)

			prom := metrics.GetGlobalMetrics()
			prom.IncrementHTTPRequests(r.Method, r.URL.Path, status)
			prom.RecordHTTPDuration(r.Method, r.URL.Path, duration)
			if wrapped.statusCode >= httpErrorThreshold {
				prom.IncrementHTTPErrors(r.Method, r.URL.Path, status)
			}

			if registry != nil {
				labels := map[string]string{"method": r.Method, "status": status}
				registry.Counter("http_requests_total", labels)
				registry.Histogram("http_request_duration_seconds", duration.Seconds(), labels)
			}
		})
	}
}

// Recovery catches handler panics and answers with a JSON 500.
func Recovery(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("http handler panic",
						"request_id", GetRequestID(r),
						"method", r.Method,
						"path", r.URL.Path,
						"panic", err,
						"stack", string(debug.Stack()))

					writeJSONError(w, http.StatusInternalServerError,
						"internal server error", GetRequestID(r))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Authentication verifies the X-API-Key header (or a Bearer token)
// against the configured bcrypt hashes. Health stays open so container
// probes work without credentials.
func Authentication(keyHashes []string, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
					apiKey = strings.TrimPrefix(bearer, "Bearer ")
				}
			}

			if apiKey == "" {
				logger.Warn("request without credentials",
					"request_id", GetRequestID(r),
					"path", r.URL.Path,
					"remote_addr", clientIP(r))
				writeJSONError(w, http.StatusUnauthorized,
					"authentication required: provide an API key in X-API-Key or Authorization: Bearer",
					GetRequestID(r))
				return
			}

			if !auth.VerifyAPIKey(apiKey, keyHashes) {
				logger.Warn("request with invalid key",
					"request_id", GetRequestID(r),
					"key_prefix", auth.DisplayPrefix(apiKey),
					"path", r.URL.Path,
					"remote_addr", clientIP(r))
				writeJSONError(w, http.StatusUnauthorized, "invalid API key", GetRequestID(r))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ContentType rejects POST and PUT bodies that are not JSON.
func ContentType() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut {
				contentType := r.Header.Get("Content-Type")
				if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
					writeJSONError(w, http.StatusUnsupportedMediaType,
						fmt.Sprintf("unsupported content type %q, expected application/json", contentType),
						GetRequestID(r))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestTimeout bounds handler execution through the request context.
func RequestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MaxRequestSize caps request body size.
func MaxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds common security headers.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture response data.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

func writeJSONError(w http.ResponseWriter, statusCode int, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":      message,
		"request_id": requestID,
		"timestamp":  time.Now().UTC(),
	})
}

// generateRequestID generates a unique request ID.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// GetRequestID extracts the request ID from the request context.
func GetRequestID(r *http.Request) string {
	if requestID, ok := r.Context().Value(RequestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}

// clientIP extracts the client address, honoring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host := r.RemoteAddr; strings.Contains(host, ":") {
		if ip := strings.Split(host, ":")[0]; ip != "" {
			return ip
		}
	}
	return "unknown"
}
