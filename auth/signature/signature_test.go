package signature

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const secret = "0123456789abcdef"

func TestSignKnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign([]byte("Jefe"), []byte("what do ya want for nothing?"))
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Errorf("Sign = %s, want %s", got, want)
	}
}

func TestVerifyPayload(t *testing.T) {
	v := NewVerifier(secret)
	body := []byte(`{"name":"Jan"}`)
	good := Sign([]byte(secret), body)

	tests := []struct {
		name string
		sig  string
		want error
	}{
		{"valid", good, nil},
		{"prefixed", "sha256=" + good, nil},
		{"uppercase", strings.ToUpper(good), nil},
		{"missing", "", ErrMissingSignature},
		{"wrong", Sign([]byte("other"), body), ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.VerifyPayload(body, tt.sig); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	body := `{"name":"Jan Kowalski"}`
	var seen string
	rejected := 0
	h := NewVerifier(secret).Middleware(nil, func(*http.Request) { rejected++ })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			seen = string(b)
			w.WriteHeader(http.StatusNoContent)
		}))

	tests := []struct {
		name string
		key  string
		sig  string
		want int
	}{
		{"no key skips check", "", "", http.StatusNoContent},
		{"key with valid signature", "client-key", Sign([]byte(secret), []byte(body)), http.StatusNoContent},
		{"key without signature", "client-key", "", http.StatusUnauthorized},
		{"key with bad signature", "client-key", "deadbeef", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			r := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(body))
			if tt.key != "" {
				r.Header.Set(KeyHeader, tt.key)
			}
			if tt.sig != "" {
				r.Header.Set(SignatureHeader, tt.sig)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusNoContent && seen != body {
				t.Errorf("handler saw body %q", seen)
			}
			if tt.want == http.StatusUnauthorized && strings.TrimSpace(rec.Body.String()) != `{"error":"Invalid API signature"}` {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
	if rejected != 2 {
		t.Errorf("onReject called %d times, want 2", rejected)
	}
}
