// internal/app/bootstrap/services.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/formrelay/internal/api"
	"github.com/dalemusser/formrelay/internal/labels"
	"github.com/dalemusser/formrelay/pantry/ratelimit"
	"github.com/redis/go-redis/v9"
)

// Mailer delivers notifications and reports whether the relay is reachable.
type Mailer interface {
	api.Sender
	Ping(ctx context.Context) error
}

// Services holds what Connect opened for the lifetime of the process.
type Services struct {
	Mailer  Mailer
	Store   ratelimit.Store
	Catalog *labels.Catalog

	redis  *redis.Client
	memory *ratelimit.MemoryStore
}
