package middleware

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/iliamunaev/movie-composite-gateway/internal/observability"
)

// RateLimit rejects requests above rps (with the given burst) with 429.
// rps <= 0 disables limiting.
func RateLimit(rps float64, burst int, logger observability.Logger) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	retryAfter := strconv.Itoa(int(time.Duration(float64(time.Second)/rps).Seconds()) + 1)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.WithContext(r.Context()).Debug("rate limit exceeded",
					observability.String("path", r.URL.Path),
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", retryAfter)
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, `{"detail":"Too many requests"}`+"\n")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
