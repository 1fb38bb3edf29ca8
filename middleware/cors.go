// middleware/cors.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/formrelay/config"
	"github.com/go-chi/cors"
)

// CORSFromConfig applies the CORS section of the core config. It is a no-op
// when CORS is disabled. Forms are usually embedded on other sites, so the
// default config allows any origin without credentials.
func CORSFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.CORS.EnableCORS {
		return passthrough
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   coreCfg.CORS.CORSAllowedOrigins,
		AllowedMethods:   coreCfg.CORS.CORSAllowedMethods,
		AllowedHeaders:   coreCfg.CORS.CORSAllowedHeaders,
		ExposedHeaders:   coreCfg.CORS.CORSExposedHeaders,
		AllowCredentials: coreCfg.CORS.CORSAllowCredentials,
		MaxAge:           coreCfg.CORS.CORSMaxAge,
	})
}

func passthrough(next http.Handler) http.Handler { return next }
