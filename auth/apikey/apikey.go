// auth/apikey/apikey.go
// Package apikey guards administrative endpoints with the shared API secret
// and issues client keys.
package apikey

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/dalemusser/formrelay/httputil"
	"go.uber.org/zap"
)

// KeyBytes is the entropy of a generated key; it is rendered as twice as
// many hex characters.
const KeyBytes = 32

// Usage is returned alongside every generated key.
const Usage = "Include in X-API-Key header for authenticated requests"

// Require allows a request only when it carries "Authorization: Bearer
// <secret>". Anything else gets a JSON 401.
func Require(secret string, logger *zap.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	expected := []byte(strings.TrimSpace(secret))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				logger.Error("apikey.Require used with an empty secret")
				httputil.Error(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			token, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
				logger.Warn("API key unauthorized",
					zap.String("path", r.URL.Path),
					zap.String("remote_ip", r.RemoteAddr),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="formrelay"`)
				httputil.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}

// Generate returns a new random key as 64 lowercase hex characters.
func Generate() (string, error) {
	b := make([]byte, KeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("apikey: generate: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Response is the body of a successful key generation.
type Response struct {
	APIKey string `json:"api_key"`
	Usage  string `json:"usage"`
}

// GenerateHandler issues a fresh key. Mount it behind Require.
func GenerateHandler(logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := Generate()
		if err != nil {
			logger.Error("api key generation failed", zap.Error(err))
			httputil.Error(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		logger.Info("api key issued", zap.String("remote_ip", r.RemoteAddr))
		httputil.WriteJSON(w, http.StatusOK, Response{APIKey: key, Usage: Usage})
	}
}
