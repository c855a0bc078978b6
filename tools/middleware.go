package tools

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/8agana/uni-sqlite/config"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs all HTTP requests with structured JSON output:
// method, path, status, duration, client IP, and request ID.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		clientIP := r.RemoteAddr
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			clientIP = strings.Split(forwarded, ",")[0]
		}
		clientIP = strings.TrimSpace(clientIP)
		elapsed := time.Since(start)

		Logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", elapsed,
			"client_ip", clientIP,
		)

		RecordAudit(AuditEntry{
			Time:       start,
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     wrapped.status,
			DurationMs: elapsed.Milliseconds(),
			ClientIP:   clientIP,
			RequestID:  requestID,
		})
	})
}

func writeMiddlewareError(w http.ResponseWriter, status int, apiErr APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiErr)
}

// AuthMiddleware validates the API key from the Authorization header.
// With an empty api_key authentication is disabled. Expected header format:
// Authorization: Bearer <api-key>. /health stays public.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := config.Cfg.APIKey
		if apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeMiddlewareError(w, http.StatusUnauthorized, APIError{
				Code:    CodeUnauthorized,
				Message: "missing Authorization header",
				Hint:    "Send Authorization: Bearer <api-key>.",
			})
			return
		}

		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeMiddlewareError(w, http.StatusUnauthorized, APIError{
				Code:    CodeUnauthorized,
				Message: "invalid Authorization header format",
				Hint:    "Send Authorization: Bearer <api-key>.",
			})
			return
		}

		// Constant-time comparison to prevent timing attacks.
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(apiKey)) != 1 {
			writeMiddlewareError(w, http.StatusUnauthorized, APIError{
				Code:    CodeUnauthorized,
				Message: "invalid API key",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimiter tracks request counts per IP address.
type rateLimiter struct {
	mu       sync.Mutex
	requests map[string]*clientLimit
	window   time.Duration
}

type clientLimit struct {
	count       int
	windowStart time.Time
}

var limiter = &rateLimiter{
	requests: make(map[string]*clientLimit),
	window:   time.Minute,
}

// RateLimitMiddleware limits requests per IP address. A rate_limit of 0
// disables limiting.
func RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rate := config.Cfg.RateLimit
		if rate <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := r.RemoteAddr
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			ip = strings.Split(forwarded, ",")[0]
		}
		ip = strings.TrimSpace(strings.Split(ip, ":")[0])

		limiter.mu.Lock()
		client, exists := limiter.requests[ip]
		now := time.Now()

		if !exists || now.Sub(client.windowStart) > limiter.window {
			limiter.requests[ip] = &clientLimit{count: 1, windowStart: now}
			limiter.mu.Unlock()
			next.ServeHTTP(w, r)
			return
		}

		if client.count >= rate {
			limiter.mu.Unlock()
			w.Header().Set("Retry-After", "60")
			writeMiddlewareError(w, http.StatusTooManyRequests, APIError{
				Code:    CodeRateLimited,
				Message: "rate limit exceeded",
			})
			return
		}

		client.count++
		limiter.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware handles Cross-Origin Resource Sharing. With no configured
// origins CORS stays disabled (no cross-origin access); "*" allows all
// origins, otherwise only the listed ones.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origins := config.Cfg.CORSOrigins
		if len(origins) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		allowed := false
		for _, o := range origins {
			if o == "*" || o == origin {
				allowed = true
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}

		if !allowed && origin != "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// TimeoutMiddleware bounds each request with a deadline so a slow query
// cannot hold the connection mutex forever.
func TimeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timeout := time.Duration(config.Cfg.RequestTimeout) * time.Second
		if timeout <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RecoveryMiddleware turns a handler panic into a 500 instead of killing
// the connection.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				Logger.Error("panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeMiddlewareError(w, http.StatusInternalServerError, APIError{
					Code:    CodeEngineError,
					Message: "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
