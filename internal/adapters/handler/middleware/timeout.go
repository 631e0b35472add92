package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds request handling. Gateway calls detach from this deadline,
// so a timed-out request still leaves the payment in a recoverable state.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)

			timeoutHandler := http.TimeoutHandler(
				next,
				timeout,
				`{"success":false,"error":{"code":"TIMEOUT","message":"Request timeout"}}`,
			)

			timeoutHandler.ServeHTTP(w, r)
		})
	}
}
