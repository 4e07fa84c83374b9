package middleware

import (
	"io"
	"net/http"
	"runtime/debug"

	"github.com/iliamunaev/movie-composite-gateway/internal/observability"
)

// Recovery turns a handler panic into a 500 with the generic error body.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.WithContext(r.Context()).Error("panic recovered",
						observability.String("method", r.Method),
						observability.String("path", r.URL.Path),
						observability.Any("panic", v),
						observability.String("stack", string(debug.Stack())),
					)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = io.WriteString(w, `{"detail":"Internal server error"}`+"\n")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
