// Package auth guards the HTTP surface with a single static API key.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"quotebot/internal/config"
	"quotebot/internal/logger"
)

// Middleware validates the API key on protected routes
type Middleware struct {
	apiKey string
}

// NewMiddleware creates an API-key middleware from the auth configuration
func NewMiddleware(cfg config.AuthConfig) *Middleware {
	return &Middleware{apiKey: cfg.APIKey}
}

// Require wraps a handler, rejecting requests without a valid API key.
// The key is read from X-API-Key or an Authorization bearer token.
func (m *Middleware) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.verify(extractKey(r)) {
			logger.Log.WithField("path", r.URL.Path).Warn("Invalid API key attempt")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "unauthorized",
				"message": "Invalid or missing API key",
			})
			return
		}

		next.ServeHTTP(w, r)
	}
}

// verify compares keys in constant time; an unconfigured server-side key
// rejects everything
func (m *Middleware) verify(key string) bool {
	if m.apiKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) == 1
}

func extractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
