package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

// RequestIDHeader carries the per-request id in both directions
const RequestIDHeader = "X-Request-ID"

type loggerKey struct{}

// requestLogger returns the logger tagged with the request id, or base when
// the request did not pass through the middleware
func requestLogger(r *http.Request, base logging.Logger) logging.Logger {
	if l, ok := r.Context().Value(loggerKey{}).(logging.Logger); ok {
		return l
	}
	return base
}

// requestIDMiddleware assigns every request an id, echoes it back and
// attaches a logger carrying it
func requestIDMiddleware(base logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			logger := base.WithFields(logging.Fields{
				"request_id": id,
				"method":     r.Method,
				"path":       r.URL.Path,
			})

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), loggerKey{}, logger)))
			logger.Debug("Request served", logging.Fields{
				"elapsed_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}
