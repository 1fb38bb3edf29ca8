// pantry/ratelimit/ratelimit.go
// Package ratelimit limits requests per client and route.
//
// Limits are written as "<count>/<unit>" or "<count> per <unit>" (e.g.
// "5/minute", "100 per hour"). A Store decides whether a keyed request is
// within its Rate; MemoryStore keeps token buckets in process and
// RedisStore keeps fixed-window counters shared across instances.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Rate is Limit requests per Period.
type Rate struct {
	Limit  int
	Period time.Duration
}

func (r Rate) String() string {
	unit := "second"
	switch r.Period {
	case time.Minute:
		unit = "minute"
	case time.Hour:
		unit = "hour"
	case 24 * time.Hour:
		unit = "day"
	case time.Second:
	default:
		return fmt.Sprintf("%d/%s", r.Limit, r.Period)
	}
	return fmt.Sprintf("%d/%s", r.Limit, unit)
}

// ErrInvalidRate is returned by ParseRate for malformed specs.
var ErrInvalidRate = errors.New("ratelimit: invalid rate")

var units = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "second": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute,
	"h": time.Hour, "hour": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour,
}

// ParseRate parses "5/minute", "5 per minute", "100/hour" and similar.
// Plural units are accepted.
func ParseRate(s string) (Rate, error) {
	spec := strings.ToLower(strings.TrimSpace(s))

	var countPart, unitPart string
	if i := strings.Index(spec, "/"); i >= 0 {
		countPart, unitPart = spec[:i], spec[i+1:]
	} else if fields := strings.Fields(spec); len(fields) == 3 && fields[1] == "per" {
		countPart, unitPart = fields[0], fields[2]
	} else {
		return Rate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}

	n, err := strconv.Atoi(strings.TrimSpace(countPart))
	if err != nil || n <= 0 {
		return Rate{}, fmt.Errorf("%w: %q: count must be a positive integer", ErrInvalidRate, s)
	}

	unitPart = strings.TrimSpace(unitPart)
	period, ok := units[unitPart]
	if !ok && len(unitPart) > 3 {
		period, ok = units[strings.TrimSuffix(unitPart, "s")]
	}
	if !ok {
		return Rate{}, fmt.Errorf("%w: %q: unknown unit %q", ErrInvalidRate, s, unitPart)
	}

	return Rate{Limit: n, Period: period}, nil
}

// MustParseRate is ParseRate for constants; it panics on error.
func MustParseRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Decision is a Store's answer for one request.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Store tracks request counts per key.
type Store interface {
	Allow(ctx context.Context, key string, rate Rate) (Decision, error)
}

// KeyFunc extracts a key from an HTTP request for rate limiting.
type KeyFunc func(r *http.Request) string

// IPKeyFunc returns the client IP address as the rate limit key.
// It checks X-Forwarded-For and X-Real-IP headers before falling back to
// RemoteAddr; use it only behind a proxy that sets those headers.
func IPKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP (original client)
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return RemoteAddrKeyFunc(r)
}

// RemoteAddrKeyFunc returns the connection's IP, ignoring proxy headers.
func RemoteAddrKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Config configures the rate limit middleware.
type Config struct {
	// Rate is the allowed request rate. Required.
	Rate Rate

	// Store holds the counters. Required.
	Store Store

	// Scope separates counters of different limits on the same store,
	// e.g. "contact" and "global".
	Scope string

	// KeyFunc extracts the rate limit key from requests.
	// Defaults to RemoteAddrKeyFunc.
	KeyFunc KeyFunc

	// StatusCode is the HTTP status when rate limited.
	// Defaults to 429 Too Many Requests.
	StatusCode int

	// Message is the response body when rate limited.
	// Defaults to "rate limit exceeded".
	Message string

	// OnLimited is called when a request is rate limited.
	// Can be used for logging or custom responses.
	OnLimited func(w http.ResponseWriter, r *http.Request)

	// Skip returns true to skip rate limiting for a request.
	// Useful for health checks, metrics, etc.
	Skip func(r *http.Request) bool

	// Logger receives store errors. Requests are let through when the
	// store fails.
	Logger *zap.Logger
}

// Middleware returns HTTP middleware that applies rate limiting.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = RemoteAddrKeyFunc
	}
	if cfg.StatusCode == 0 {
		cfg.StatusCode = http.StatusTooManyRequests
	}
	if cfg.Message == "" {
		cfg.Message = "rate limit exceeded"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	limit := strconv.Itoa(cfg.Rate.Limit)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := cfg.Scope + ":" + cfg.KeyFunc(r)
			d, err := cfg.Store.Allow(r.Context(), key, cfg.Rate)
			if err != nil {
				cfg.Logger.Error("rate limit store failed; allowing request",
					zap.String("scope", cfg.Scope), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				secs := int((d.RetryAfter + time.Second - 1) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))

				if cfg.OnLimited != nil {
					cfg.OnLimited(w, r)
					return
				}

				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(cfg.StatusCode)
				_, _ = w.Write([]byte(cfg.Message))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
