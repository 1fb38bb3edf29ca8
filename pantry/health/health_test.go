package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHandler(t *testing.T) {
	now := time.Date(2024, 3, 5, 15, 7, 9, 0, time.FixedZone("CET", 3600))
	h := Handler(map[string]Check{
		"email_service": func(context.Context) error { return errors.New("dial tcp: refused") },
		"redis":         func(context.Context) error { return nil },
		"noop":          nil,
	}, Options{Now: func() time.Time { return now }})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"status":        "healthy",
		"timestamp":     "2024-03-05T14:07:09Z",
		"email_service": false,
		"redis":         true,
		"noop":          true,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestHandlerCheckTimeout(t *testing.T) {
	h := Handler(map[string]Check{
		"email_service": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}, Options{Timeout: 10 * time.Millisecond})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var got map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got["email_service"] != false {
		t.Errorf("email_service = %v", got["email_service"])
	}
}
