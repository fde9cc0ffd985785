// Package middleware holds the HTTP middleware shared by the service
// routers.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey = contextKey("request-id")

// requestIDHeader carries the identifier between clients and services.
// Distinct from Correlation-Id, which follows an event through the durable
// log; the request ID only spans one HTTP exchange.
const requestIDHeader = "X-Request-ID"

// RequestID tags every request with an identifier so access logs can be
// tied back to a caller. An inbound X-Request-ID is honored, otherwise a
// fresh UUID is minted; either way the value is echoed on the response and
// stored in the request context for the logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the identifier stored by RequestID, or empty when
// the request did not pass through the middleware.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
