// middleware/notfound.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/formrelay/httputil"
	"go.uber.org/zap"
)

// NotFoundHandler answers unknown routes with a JSON 404.
func NotFoundHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logger != nil {
			logger.Info("not_found",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_ip", r.RemoteAddr),
			)
		}
		httputil.Error(w, http.StatusNotFound, "Endpoint not found")
	}
}

// MethodNotAllowedHandler answers known routes hit with the wrong method.
func MethodNotAllowedHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logger != nil {
			logger.Info("method_not_allowed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_ip", r.RemoteAddr),
			)
		}
		httputil.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
