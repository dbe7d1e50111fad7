package wsmux

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type connectionIDKey struct{}

// ConnectionID returns the correlation ID attached by ConnectionIDMiddleware,
// or an empty string if none is present.
func ConnectionID(r *http.Request) string {
	id, _ := r.Context().Value(connectionIDKey{}).(string)
	return id
}

// ConnectionIDMiddleware stamps every upgrade request with a UUID before it
// reaches the WebSocket handler, so a server's logs can correlate the
// opening handshake with everything that happens on the resulting
// connection afterward. Adapted down from the HTTP request-ID middleware
// pattern to a single always-generate policy: an upgrade request has no
// meaningful "trust the caller's ID" case the way a general HTTP API might.
func ConnectionIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Connection-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), connectionIDKey{}, id)))
	})
}
