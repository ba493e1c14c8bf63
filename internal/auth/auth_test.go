package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"quotebot/internal/config"
)

func protectedHandler(called *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}
}

func TestRequire_ValidAPIKeyHeader(t *testing.T) {
	m := NewMiddleware(config.AuthConfig{APIKey: "secret-key"})
	called := false

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	req.Header.Set("X-API-Key", "secret-key")
	rec := httptest.NewRecorder()

	m.Require(protectedHandler(&called))(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !called {
		t.Error("handler not invoked with valid key")
	}
}

func TestRequire_ValidBearerToken(t *testing.T) {
	m := NewMiddleware(config.AuthConfig{APIKey: "secret-key"})
	called := false

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()

	m.Require(protectedHandler(&called))(rec, req)

	if rec.Code != http.StatusOK || !called {
		t.Errorf("bearer token auth failed: status=%d called=%v", rec.Code, called)
	}
}

func TestRequire_RejectsInvalidKey(t *testing.T) {
	m := NewMiddleware(config.AuthConfig{APIKey: "secret-key"})
	called := false

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	rec := httptest.NewRecorder()

	m.Require(protectedHandler(&called))(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("handler invoked with invalid key")
	}
}

func TestRequire_RejectsMissingKey(t *testing.T) {
	m := NewMiddleware(config.AuthConfig{APIKey: "secret-key"})
	called := false

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	rec := httptest.NewRecorder()

	m.Require(protectedHandler(&called))(rec, req)

	if rec.Code != http.StatusUnauthorized || called {
		t.Errorf("missing key accepted: status=%d called=%v", rec.Code, called)
	}
}

func TestRequire_UnconfiguredServerKeyRejectsAll(t *testing.T) {
	m := NewMiddleware(config.AuthConfig{APIKey: ""})
	called := false

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	req.Header.Set("X-API-Key", "")
	rec := httptest.NewRecorder()

	m.Require(protectedHandler(&called))(rec, req)

	if rec.Code != http.StatusUnauthorized || called {
		t.Errorf("unconfigured server key must reject: status=%d called=%v", rec.Code, called)
	}
}
