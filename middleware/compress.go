// middleware/compress.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/formrelay/config"
	"github.com/go-chi/chi/v5/middleware"
)

// compressionLevel balances CPU against size for small JSON and metrics
// responses.
const compressionLevel = 5

// CompressFromConfig gzip/deflate-encodes JSON and text responses when
// enable_compression is set.
func CompressFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.EnableCompression {
		return passthrough
	}
	return middleware.Compress(compressionLevel, "application/json", "text/plain")
}
