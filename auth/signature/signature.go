// auth/signature/signature.go
// Package signature checks request bodies signed by clients that hold an
// API key.
//
// A client that sends X-API-Key must also send X-Signature: the lowercase
// hex HMAC-SHA256 of the raw request body under the shared API secret.
// Requests without X-API-Key are not checked.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/formrelay/httputil"
	"go.uber.org/zap"
)

// Header names.
const (
	KeyHeader       = "X-API-Key"
	SignatureHeader = "X-Signature"
)

var (
	ErrMissingSignature = errors.New("signature: missing signature header")
	ErrInvalidSignature = errors.New("signature: invalid signature")
)

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret, payload []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verifier checks signatures against one secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyPayload compares sig with the expected signature in constant time.
// An optional "sha256=" prefix is accepted.
func (v *Verifier) VerifyPayload(payload []byte, sig string) error {
	sig = strings.TrimPrefix(strings.TrimSpace(sig), "sha256=")
	if sig == "" {
		return ErrMissingSignature
	}
	expected := Sign(v.secret, payload)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return ErrInvalidSignature
	}
	return nil
}

// Middleware enforces the signature on requests that present an API key.
// The body is read and restored so the handler can decode it afterwards.
// onReject, when non-nil, is called for every rejected request.
func (v *Verifier) Middleware(logger *zap.Logger, onReject func(r *http.Request)) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get(KeyHeader)) == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := httputil.ReadBody(r)
			if errors.Is(err, httputil.ErrTooLarge) {
				httputil.Error(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			if err == nil {
				err = v.VerifyPayload(body, r.Header.Get(SignatureHeader))
			}
			if err != nil {
				logger.Warn("request signature rejected",
					zap.String("path", r.URL.Path),
					zap.String("remote_ip", r.RemoteAddr),
					zap.Error(err),
				)
				if onReject != nil {
					onReject(r)
				}
				httputil.Error(w, http.StatusUnauthorized, "Invalid API signature")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
