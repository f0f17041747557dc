package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/debatebot/internal/metrics"
	"github.com/ashureev/debatebot/internal/ratelimit"
)

// DefaultExcludedPaths bypass admission control.
var DefaultExcludedPaths = []string{"/health", "/metrics", "/ping"}

// RateLimitError is the body of a denied request.
type RateLimitError struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// NewRateLimitError builds the denial body for a limiter.
func NewRateLimitError(limit, retryAfter int) RateLimitError {
	return RateLimitError{
		Error:      "Rate limit exceeded",
		Message:    fmt.Sprintf("Too many requests. Limit: %d per minute", limit),
		RetryAfter: retryAfter,
	}
}

// RateLimit admits requests per client IP. Excluded paths are never counted.
func RateLimit(l *ratelimit.Limiter, excluded []string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	skip := make(map[string]struct{}, len(excluded))
	for _, p := range excluded {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			ok, retryAfter := l.Allow(ip)
			if ok {
				metrics.AdmissionDecisions.WithLabelValues("allowed").Inc()
				next.ServeHTTP(w, r)
				return
			}

			metrics.AdmissionDecisions.WithLabelValues("denied").Inc()
			logger.Warn("rate limit exceeded", "client_ip", ip, "path", r.URL.Path, "retry_after", retryAfter)

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(NewRateLimitError(l.Limit(), retryAfter))
		})
	}
}

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
