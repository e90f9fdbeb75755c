package engine

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// jwtClockSkew bounds how far a token's issued-at claim may drift from the
// server's clock, the same narrow window the Engine API spec uses to defend
// against replayed bearer tokens.
const jwtClockSkew = 60 * time.Second

// engineClaims is the claim set a consensus-layer caller must present.
type engineClaims struct {
	jwt.RegisteredClaims
}

// LoadOrCreateJWTSecret reads a 32-byte hex-encoded secret from path,
// generating and persisting a fresh random one if the file does not exist
// yet. The file is written with 0600 permissions, matching the convention
// consensus-layer clients expect for the shared Engine API secret.
func LoadOrCreateJWTSecret(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		secret, decodeErr := hex.DecodeString(strings.TrimSpace(string(data)))
		if decodeErr != nil {
			return nil, fmt.Errorf("decode jwt secret: %w", decodeErr)
		}
		return secret, nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create jwt secret directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(secret)), 0600); err != nil {
		return nil, fmt.Errorf("persist jwt secret: %w", err)
	}
	return secret, nil
}

// authMiddleware wraps next with Engine API bearer-token authentication. A
// nil or empty jwtSecret disables authentication entirely (used by tests and
// local devnets that have no consensus-layer counterpart to share a secret
// with).
func (api *EngineAPI) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		secret := api.jwtSecret
		api.mu.Unlock()

		if len(secret) == 0 {
			next(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims := &engineClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, prefix), claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		if claims.IssuedAt == nil || time.Since(claims.IssuedAt.Time).Abs() > jwtClockSkew {
			http.Error(w, "stale bearer token", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}
