// router/router.go
package router

import (
	"github.com/dalemusser/formrelay/config"
	"github.com/dalemusser/formrelay/logging"
	"github.com/dalemusser/formrelay/metrics"
	"github.com/dalemusser/formrelay/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// New creates a chi.Router with the standard middleware stack:
//
//   - RequestID
//   - RealIP, only when trustProxy is set
//   - Recoverer (panic → JSON 500)
//   - API security headers
//   - CORS and compression, as configured
//   - body size limit (MaxRequestBodyBytes)
//   - metrics and request logging
//   - JSON NotFound / MethodNotAllowed handlers
//
// Routes are mounted by the caller.
func New(coreCfg *config.CoreConfig, logger *zap.Logger, trustProxy bool) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if trustProxy {
		// RemoteAddr becomes the forwarded client address for logs and limits.
		r.Use(chimw.RealIP)
	}
	r.Use(logging.Recoverer(logger))

	r.Use(middleware.SecurityHeaders(middleware.APISecurityHeadersOptions()))
	r.Use(middleware.CORSFromConfig(coreCfg))
	r.Use(middleware.CompressFromConfig(coreCfg))
	r.Use(middleware.LimitBodySize(coreCfg.MaxRequestBodyBytes))

	r.Use(metrics.HTTPMetrics)
	r.Use(logging.RequestLogger(logger))

	r.NotFound(middleware.NotFoundHandler(logger))
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler(logger))

	return r
}
