package engine

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestLoadOrCreateJWTSecretGeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jwt.hex")

	secret, err := LoadOrCreateJWTSecret(path)
	if err != nil {
		t.Fatalf("LoadOrCreateJWTSecret: %v", err)
	}
	if len(secret) != 32 {
		t.Fatalf("secret length = %d, want 32", len(secret))
	}

	again, err := LoadOrCreateJWTSecret(path)
	if err != nil {
		t.Fatalf("second LoadOrCreateJWTSecret: %v", err)
	}
	if string(again) != string(secret) {
		t.Error("second call should return the persisted secret, not a new one")
	}
}

func TestAuthMiddlewareDisabledWithoutSecret(t *testing.T) {
	api := NewEngineAPI(&mockBackend{})
	called := false
	handler := api.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if !called {
		t.Error("request should pass through when no JWT secret is configured")
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	api := NewEngineAPI(&mockBackend{})
	api.SetJWTSecret([]byte("01234567890123456789012345678901"))

	handler := api.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without a bearer token")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	api := NewEngineAPI(&mockBackend{})
	secret := []byte("01234567890123456789012345678901")
	api.SetJWTSecret(secret)

	claims := &engineClaims{RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(time.Now())}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	called := false
	handler := api.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if !called {
		t.Errorf("valid token should be accepted, got status %d", rec.Code)
	}
}

func TestAuthMiddlewareRejectsStaleToken(t *testing.T) {
	api := NewEngineAPI(&mockBackend{})
	secret := []byte("01234567890123456789012345678901")
	api.SetJWTSecret(secret)

	claims := &engineClaims{RegisteredClaims: jwt.RegisteredClaims{
		IssuedAt: jwt.NewNumericDate(time.Now().Add(-10 * time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	handler := api.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run for a stale token")
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestLoadOrCreateJWTSecretRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jwt.hex")
	if err := os.WriteFile(path, []byte("not-hex"), 0600); err != nil {
		t.Fatalf("write malformed secret: %v", err)
	}

	if _, err := LoadOrCreateJWTSecret(path); err == nil {
		t.Error("expected an error for a non-hex secret file")
	}
}
