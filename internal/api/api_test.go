package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dalemusser/formrelay/auth/signature"
	"github.com/dalemusser/formrelay/internal/labels"
	"github.com/dalemusser/formrelay/internal/notify"
	"github.com/dalemusser/formrelay/internal/submission"
	"github.com/dalemusser/formrelay/pantry/email"
	"github.com/dalemusser/formrelay/pantry/health"
	"github.com/dalemusser/formrelay/pantry/ratelimit"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type server struct {
	router http.Handler
	sender *fakeSender
}

func newServer(t *testing.T, limits *Limits) *server {
	t.Helper()
	formatter, err := notify.New(labels.Builtin(),
		notify.WithClock(func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC) }),
		notify.WithLocation(time.UTC),
	)
	if err != nil {
		t.Fatal(err)
	}
	sender := &fakeSender{}
	h, err := New(Config{
		Validator: submission.New(),
		Formatter: formatter,
		Sender:    sender,
		Recipient: "owner@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}

	lim := Limits{
		Default:     ratelimit.MustParseRate("1000/hour"),
		Contact:     ratelimit.MustParseRate("1000/minute"),
		Reservation: ratelimit.MustParseRate("1000/minute"),
		GenerateKey: ratelimit.MustParseRate("1000/hour"),
	}
	if limits != nil {
		lim = *limits
	}
	store := ratelimit.NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	r := chi.NewRouter()
	h.Mount(r, RouteConfig{
		Limits:    lim,
		Store:     store,
		APISecret: testSecret,
		HealthChecks: map[string]health.Check{
			"email_service": func(context.Context) error { return nil },
		},
	})
	return &server{router: r, sender: sender}
}

func (s *server) post(t *testing.T, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.RemoteAddr = "192.0.2.10:4000"
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestContactSuccess(t *testing.T) {
	s := newServer(t, nil)
	rec := s.post(t, "/api/contact",
		`{"name":"Jan Kowalski","contact_method":"email","email":"Jan@Example.com","message":"Hello <b>there</b>"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["message"]; got != "Message sent successfully" {
		t.Errorf("message = %v", got)
	}
	if len(s.sender.sent) != 1 {
		t.Fatalf("sent = %d", len(s.sender.sent))
	}
	msg := s.sender.sent[0]
	if !reflect.DeepEqual(msg.To, []string{"owner@example.com"}) || msg.ReplyTo != "jan@example.com" {
		t.Errorf("envelope = %+v", msg)
	}
	if msg.FromName != "Formularz kontaktowy" || !strings.HasPrefix(msg.Subject, "Nowa wiadomość kontaktowa - Jan Kowalski #05032024JI") {
		t.Errorf("from %q subject %q", msg.FromName, msg.Subject)
	}
	if !strings.Contains(msg.HTMLBody, "Hello &lt;b&gt;there&lt;/b&gt;") || strings.Contains(msg.HTMLBody, "<b>there") {
		t.Errorf("HTML body not escaped exactly once:\n%s", msg.HTMLBody)
	}
}

func TestReservationSuccess(t *testing.T) {
	s := newServer(t, nil)
	rec := s.post(t, "/api/reservation",
		`{"name":"Anna Nowak","contact_method":"phone","phone":"+48 600 100 200","service":"Haircut","language":"en"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["message"]; got != "Reservation sent successfully" {
		t.Errorf("message = %v", got)
	}
	msg := s.sender.sent[0]
	if msg.ReplyTo != "" || msg.FromName != "Reservation Form" {
		t.Errorf("envelope = %+v", msg)
	}
	if !strings.Contains(msg.TextBody, "Haircut") {
		t.Errorf("text body missing service:\n%s", msg.TextBody)
	}
}

func TestValidationErrors(t *testing.T) {
	s := newServer(t, nil)
	rec := s.post(t, "/api/contact", `{"name":"A","contact_method":"email","email":"bad-email","language":"en"}`, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	got, _ := decode(t, rec)["error"].([]any)
	want := []any{
		"Name is required (minimum 2 characters)",
		"Enter a valid email address",
		"Provide at least one contact method (email or phone)",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("errors = %v, want %v", got, want)
	}
	if len(s.sender.sent) != 0 {
		t.Error("invalid submission was sent")
	}
}

func TestSpamRejectedGenerically(t *testing.T) {
	s := newServer(t, nil)
	rec := s.post(t, "/api/contact",
		`{"name":"Jan Kowalski","contact_method":"email","email":"a@b.com","language":"en","message":"cheap casino and poker"}`, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	got, _ := decode(t, rec)["error"].([]any)
	if !reflect.DeepEqual(got, []any{"Message was rejected"}) {
		t.Errorf("errors = %v", got)
	}
}

func TestHoneypot(t *testing.T) {
	s := newServer(t, nil)
	rec := s.post(t, "/api/contact",
		`{"name":"Jan Kowalski","contact_method":"email","email":"a@b.com","website":"http://bot"}`, nil)

	if rec.Code != http.StatusBadRequest || decode(t, rec)["error"] != "Invalid submission" {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
	if len(s.sender.sent) != 0 {
		t.Error("honeypot submission was sent")
	}
}

func TestNoData(t *testing.T) {
	s := newServer(t, nil)
	for _, body := range []string{``, `{}`, `null`, `[]`, `{"name":`} {
		rec := s.post(t, "/api/contact", body, nil)
		if rec.Code != http.StatusBadRequest || decode(t, rec)["error"] != "No data provided" {
			t.Errorf("body %q: got %d %s", body, rec.Code, rec.Body.String())
		}
	}
}

func TestSendFailure(t *testing.T) {
	s := newServer(t, nil)
	s.sender.err = errors.New("smtp: connection refused")

	rec := s.post(t, "/api/reservation",
		`{"name":"Anna Nowak","contact_method":"email","email":"anna@example.com"}`, nil)
	if rec.Code != http.StatusInternalServerError || decode(t, rec)["error"] != "Failed to send reservation" {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestSignature(t *testing.T) {
	s := newServer(t, nil)
	body := `{"name":"Jan Kowalski","contact_method":"email","email":"jan@example.com"}`

	rec := s.post(t, "/api/contact", body, map[string]string{
		signature.KeyHeader:       "client-key",
		signature.SignatureHeader: "deadbeef",
	})
	if rec.Code != http.StatusUnauthorized || decode(t, rec)["error"] != "Invalid API signature" {
		t.Errorf("bad signature: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.post(t, "/api/contact", body, map[string]string{
		signature.KeyHeader:       "client-key",
		signature.SignatureHeader: signature.Sign([]byte(testSecret), []byte(body)),
	})
	if rec.Code != http.StatusOK {
		t.Errorf("good signature: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	s := newServer(t, &Limits{
		Default:     ratelimit.MustParseRate("100/hour"),
		Contact:     ratelimit.MustParseRate("1/minute"),
		Reservation: ratelimit.MustParseRate("3/minute"),
		GenerateKey: ratelimit.MustParseRate("1/hour"),
	})
	body := `{"name":"Jan Kowalski","contact_method":"email","email":"jan@example.com"}`

	if rec := s.post(t, "/api/contact", body, nil); rec.Code != http.StatusOK {
		t.Fatalf("first = %d", rec.Code)
	}
	rec := s.post(t, "/api/contact", body, nil)
	if rec.Code != http.StatusTooManyRequests || decode(t, rec)["error"] != msgRateLimited {
		t.Errorf("second = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}

	// The contact limit does not spill over to reservations.
	if rec := s.post(t, "/api/reservation", body, nil); rec.Code != http.StatusOK {
		t.Errorf("reservation = %d", rec.Code)
	}
}

func TestGenerateKey(t *testing.T) {
	s := newServer(t, nil)

	rec := s.post(t, "/api/generate-key", ``, nil)
	if rec.Code != http.StatusUnauthorized || decode(t, rec)["error"] != "Unauthorized" {
		t.Errorf("unauthenticated = %d %s", rec.Code, rec.Body.String())
	}

	rec = s.post(t, "/api/generate-key", ``, map[string]string{"Authorization": "Bearer " + testSecret})
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated = %d %s", rec.Code, rec.Body.String())
	}
	if key, _ := decode(t, rec)["api_key"].(string); len(key) != 64 {
		t.Errorf("api_key = %q", key)
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	got := decode(t, rec)
	if rec.Code != http.StatusOK || got["status"] != "healthy" || got["email_service"] != true {
		t.Errorf("health = %d %v", rec.Code, got)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New(Config{}) succeeded")
	}
}
