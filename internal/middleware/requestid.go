package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/iliamunaev/movie-composite-gateway/internal/observability"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID keeps an inbound request id or generates one, stores it in the
// request context and echoes it in the response.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}

			r = r.WithContext(observability.ContextWithRequestID(r.Context(), id))
			w.Header().Set(RequestIDHeader, id)

			next.ServeHTTP(w, r)
		})
	}
}
