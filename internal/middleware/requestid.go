package middleware

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

const maxRequestIDLen = 128

// RequestID runs chi's RequestID and echoes the id back as X-Request-ID.
// Oversized client ids are replaced with a generated one.
func RequestID(next http.Handler) http.Handler {
	withID := chimw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", chimw.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.Header.Get(chimw.RequestIDHeader)) > maxRequestIDLen {
			r.Header.Del(chimw.RequestIDHeader)
		}
		withID.ServeHTTP(w, r)
	})
}

func GetRequestID(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}
