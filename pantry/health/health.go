// pantry/health/health.go
// Package health serves the liveness endpoint.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/formrelay/httputil"
	"go.uber.org/zap"
)

// Check probes one dependency; nil means reachable.
type Check func(ctx context.Context) error

// DefaultTimeout bounds each check so a hung dependency cannot stall the
// endpoint.
const DefaultTimeout = 10 * time.Second

// Options configure Handler.
type Options struct {
	// Timeout per check; DefaultTimeout when zero.
	Timeout time.Duration

	// Now is the clock for the timestamp; time.Now when nil.
	Now func() time.Time

	Logger *zap.Logger
}

// Handler reports the process as healthy with a UTC timestamp and one
// boolean per named check:
//
//	{"status": "healthy", "timestamp": "2024-03-05T14:07:09Z", "email_service": true}
//
// The status code is always 200; a failing dependency is reported in its
// flag, not as an unhealthy process. Checks run concurrently.
func Handler(checks map[string]Check, opts Options) http.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), opts.Timeout)
		defer cancel()

		results := make([]bool, len(names))
		var wg sync.WaitGroup
		for i, name := range names {
			check := checks[name]
			if check == nil {
				results[i] = true
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := check(ctx); err != nil {
					opts.Logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
					return
				}
				results[i] = true
			}()
		}
		wg.Wait()

		resp := map[string]any{
			"status":    "healthy",
			"timestamp": opts.Now().UTC().Format(time.RFC3339),
		}
		for i, name := range names {
			resp[name] = results[i]
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	})
}
