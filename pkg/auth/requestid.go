package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation id for one pipeline request. The
// gateway and the IM platform echo it back, so a decision can be traced
// from proposal intake to its approval card.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen caps client-supplied ids; anything longer is replaced
// rather than reflected into logs and response headers.
const maxRequestIDLen = 128

type requestIDKey struct{}

// RequestIDMiddleware assigns every request a correlation id, reusing a
// sane client-supplied one so gateway retries stay traceable end to end.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

// WithRequestID returns a context carrying the correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom extracts the correlation id, or "" when the middleware did
// not run.
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
