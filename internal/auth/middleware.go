// Package auth guards the HTTP API with a static bearer token. An empty
// token disables authentication, which is the expected mode for local
// development against a memory store.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"StratFlow-Chain/pkg/logger"
)

// Middleware wraps handlers with bearer-token authentication and request
// audit logging.
type Middleware struct {
	token string
	log   *slog.Logger
}

// NewMiddleware builds the middleware. token may be empty to disable auth.
func NewMiddleware(token string) *Middleware {
	return &Middleware{
		token: strings.TrimSpace(token),
		log:   logger.Named("api"),
	}
}

// Wrap enforces the token and records one audit line per request.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m != nil && m.token != "" {
			presented := bearerToken(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare([]byte(presented), []byte(m.token)) != 1 {
				status := http.StatusUnauthorized
				http.Error(w, http.StatusText(status), status)
				m.log.Warn("access denied",
					slog.String("path", r.URL.Path),
					slog.String("method", r.Method),
					slog.Int("status", status),
				)
				return
			}
		}

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if m != nil && m.log != nil {
			m.log.Info("api request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		}
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// statusWriter captures the response code for the audit line.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
