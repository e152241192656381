package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/qcom/authgate/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// KeyExtractor groups requests for rate limiting.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor returns the client IP, honouring X-Forwarded-For and
// X-Real-IP when set by a proxy.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

type rateLimiter struct {
	limiters    sync.Map // key -> *rate.Limiter
	rate        rate.Limit
	burst       int
	mu          sync.Mutex
	lastCleanup time.Time
}

func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	actual, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	rl.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket is full, at most every 5 minutes.
func (rl *rateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) < 5*time.Minute {
		return
	}
	rl.lastCleanup = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// RateLimit limits requests per key using a token bucket.
func RateLimit(cfg config.RateLimitConfig, keyExtractor KeyExtractor, logger *logrus.Logger) func(http.Handler) http.Handler {
	rl := &rateLimiter{
		rate:        rate.Limit(float64(cfg.LoginRequests) / cfg.LoginWindow.Seconds()),
		burst:       cfg.LoginBurst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyExtractor(r)
			if key == "" {
				logger.WithField("path", r.URL.Path).Warn("Rate limit key unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			limiter := rl.getLimiter(key)
			if !limiter.Allow() {
				reservation := limiter.Reserve()
				retryAfter := max(int(reservation.Delay().Seconds()), 1)
				reservation.Cancel()

				logger.WithFields(logrus.Fields{
					"key":         key,
					"path":        r.URL.Path,
					"retry_after": retryAfter,
				}).Warn("Rate limit exceeded")

				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.LoginRequests))
				w.Header().Set("X-RateLimit-Window", cfg.LoginWindow.String())
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: ErrorDetail{
					Code:    "rate_limit_exceeded",
					Message: "Too many requests. Please try again later.",
				}})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
