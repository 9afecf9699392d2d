package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ukydev/plant-maintenance/internal/apperr"
	"github.com/ukydev/plant-maintenance/internal/clock"
)

// RateLimitMiddleware provides sliding window rate limiting per client IP
type RateLimitMiddleware struct {
	requests map[string][]int64 // IP -> unix timestamps
	mu       sync.Mutex
	clock    clock.Clock
}

// NewRateLimitMiddleware creates a new rate limiting middleware
func NewRateLimitMiddleware(c clock.Clock) *RateLimitMiddleware {
	if c == nil {
		c = clock.Real{}
	}
	return &RateLimitMiddleware{
		requests: make(map[string][]int64),
		clock:    c,
	}
}

// RateLimit applies rate limiting based on IP address. A non-positive
// maxRequests disables the limit.
func (m *RateLimitMiddleware) RateLimit(maxRequests int, windowSeconds int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxRequests <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)

			now := m.clock.Now().Unix()
			windowStart := now - int64(windowSeconds)

			m.mu.Lock()
			var valid []int64
			for _, ts := range m.requests[clientIP] {
				if ts > windowStart {
					valid = append(valid, ts)
				}
			}

			if len(valid) >= maxRequests {
				m.requests[clientIP] = valid
				retry := valid[0] + int64(windowSeconds) - now
				m.mu.Unlock()
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				apperr.Write(w, &apperr.Error{
					Code:    "RATE_LIMITED",
					Message: "rate limit exceeded",
					Status:  http.StatusTooManyRequests,
				})
				return
			}

			m.requests[clientIP] = append(valid, now)
			m.mu.Unlock()

			next.ServeHTTP(w, r)
		})
	}
}

// Sweep forgets clients with no requests newer than window.
func (m *RateLimitMiddleware) Sweep(window time.Duration) {
	cutoff := m.clock.Now().Add(-window).Unix()
	m.mu.Lock()
	defer m.mu.Unlock()
	for ip, ts := range m.requests {
		if len(ts) == 0 || ts[len(ts)-1] <= cutoff {
			delete(m.requests, ip)
		}
	}
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	ip := r.RemoteAddr
	if colonIndex := strings.LastIndex(ip, ":"); colonIndex != -1 {
		ip = ip[:colonIndex]
	}
	return ip
}
