package apikey

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestRequire(t *testing.T) {
	h := Require(secret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name string
		auth string
		want int
	}{
		{"valid", "Bearer " + secret, http.StatusNoContent},
		{"lowercase scheme", "bearer " + secret, http.StatusNoContent},
		{"wrong secret", "Bearer nope", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
		{"basic", "Basic " + secret, http.StatusUnauthorized},
		{"scheme only", "Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/generate-key", nil)
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireEmptySecret(t *testing.T) {
	h := Require("  ", nil)(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

var hexKey = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestGenerate(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Generate()
	if !hexKey.MatchString(a) || a == b {
		t.Errorf("keys %q %q", a, b)
	}
}

func TestGenerateHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	GenerateHandler(nil)(rec, httptest.NewRequest(http.MethodPost, "/api/generate-key", nil))

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || !hexKey.MatchString(resp.APIKey) || resp.Usage != Usage {
		t.Errorf("got %d %+v", rec.Code, resp)
	}
}
