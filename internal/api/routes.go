// internal/api/routes.go
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dalemusser/formrelay/auth/apikey"
	"github.com/dalemusser/formrelay/auth/signature"
	"github.com/dalemusser/formrelay/httputil"
	"github.com/dalemusser/formrelay/metrics"
	"github.com/dalemusser/formrelay/middleware"
	"github.com/dalemusser/formrelay/pantry/health"
	"github.com/dalemusser/formrelay/pantry/ratelimit"
)

const msgRateLimited = "Rate limit exceeded. Please try again later."

// Limits are the per-client rates of each route group.
type Limits struct {
	Default     ratelimit.Rate
	Contact     ratelimit.Rate
	Reservation ratelimit.Rate
	GenerateKey ratelimit.Rate
}

// RouteConfig carries what Mount needs besides the Handler.
type RouteConfig struct {
	Limits Limits
	Store  ratelimit.Store

	// KeyFunc identifies the client for rate limiting.
	KeyFunc ratelimit.KeyFunc

	// APISecret signs requests and guards key generation.
	APISecret string

	// HealthChecks are reported by /api/health, e.g. "email_service".
	HealthChecks map[string]health.Check

	Logger *zap.Logger
}

// Mount registers the API routes on r:
//
//	POST /api/contact
//	POST /api/reservation
//	POST /api/generate-key
//	GET  /api/health
//	GET  /metrics
//
// Every route except health and metrics shares the default limit; the
// submission and key routes add their own, stricter limit on top.
func (h *Handler) Mount(r chi.Router, rc RouteConfig) {
	if rc.Logger == nil {
		rc.Logger = zap.NewNop()
	}
	if rc.KeyFunc == nil {
		rc.KeyFunc = ratelimit.RemoteAddrKeyFunc
	}

	limit := func(scope string, rate ratelimit.Rate) func(http.Handler) http.Handler {
		return ratelimit.Middleware(ratelimit.Config{
			Rate:    rate,
			Store:   rc.Store,
			Scope:   scope,
			KeyFunc: rc.KeyFunc,
			Logger:  rc.Logger,
			OnLimited: func(w http.ResponseWriter, r *http.Request) {
				rc.Logger.Info("rate limited",
					zap.String("scope", scope),
					zap.String("path", r.URL.Path),
					zap.String("remote_ip", r.RemoteAddr),
				)
				httputil.Error(w, http.StatusTooManyRequests, msgRateLimited)
			},
		})
	}

	r.Method(http.MethodGet, "/api/health", health.Handler(rc.HealthChecks, health.Options{Logger: rc.Logger}))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	verifier := signature.NewVerifier(rc.APISecret)
	rejectSig := func(kind string) func(*http.Request) {
		return func(*http.Request) { metrics.RecordSubmission(kind, metrics.OutcomeBadSig) }
	}

	r.Group(func(r chi.Router) {
		r.Use(limit("default", rc.Limits.Default))

		r.With(
			limit("contact", rc.Limits.Contact),
			middleware.RequireJSON(),
			verifier.Middleware(rc.Logger, rejectSig("contact")),
		).Post("/api/contact", h.Contact)

		r.With(
			limit("reservation", rc.Limits.Reservation),
			middleware.RequireJSON(),
			verifier.Middleware(rc.Logger, rejectSig("reservation")),
		).Post("/api/reservation", h.Reservation)

		r.With(
			limit("generate_key", rc.Limits.GenerateKey),
			apikey.Require(rc.APISecret, rc.Logger),
		).Post("/api/generate-key", apikey.GenerateHandler(rc.Logger))
	})
}
