package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// apiRateLimiter holds one token bucket per client IP.
type apiRateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func (l *apiRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[ip]; ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.limiters[ip] = lim
	return lim
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		addr = addr[:idx]
	}
	return addr
}

// isLoopback returns true for localhost/loopback IPs (127.x.x.x and ::1).
func isLoopback(ip string) bool {
	ip = strings.Trim(ip, "[]")
	if ip == "::1" || ip == "localhost" {
		return true
	}
	return strings.HasPrefix(ip, "127.")
}

// RateLimit returns middleware that limits requests per client IP to perMinute
// with the given burst. Excludes /health, /metrics and loopback clients.
// perMinute <= 0 disables limiting.
func RateLimit(perMinute, burst int) func(http.Handler) http.Handler {
	if burst <= 0 {
		burst = perMinute
	}
	l := &apiRateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
	return func(next http.Handler) http.Handler {
		if perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			ip := getClientIP(r)
			if path == "/health" || path == "/metrics" || isLoopback(ip) {
				next.ServeHTTP(w, r)
				return
			}
			limiter := l.get(ip)
			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Too many requests. Please retry later.","code":"RATE_LIMIT_EXCEEDED"}`))
				return
			}
			tokens := int(limiter.Tokens())
			if tokens < 0 {
				tokens = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(tokens))
			next.ServeHTTP(w, r)
		})
	}
}
