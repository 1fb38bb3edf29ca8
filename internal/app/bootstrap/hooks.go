// internal/app/bootstrap/hooks.go
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/formrelay/app"
	"github.com/dalemusser/formrelay/config"
	"github.com/dalemusser/formrelay/internal/api"
	"github.com/dalemusser/formrelay/internal/labels"
	"github.com/dalemusser/formrelay/internal/notify"
	"github.com/dalemusser/formrelay/internal/spam"
	"github.com/dalemusser/formrelay/internal/submission"
	"github.com/dalemusser/formrelay/metrics"
	"github.com/dalemusser/formrelay/pantry/email"
	"github.com/dalemusser/formrelay/pantry/health"
	"github.com/dalemusser/formrelay/pantry/ratelimit"
	"github.com/dalemusser/formrelay/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisConnectTimeout bounds the startup ping of the rate-limit store.
const redisConnectTimeout = 5 * time.Second

// memoryStoreTTL is how long idle in-process counters are kept.
const memoryStoreTTL = 2 * time.Hour

// LoadConfig loads the core config and the formrelay settings.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, config.AppConfig, error) {
	coreCfg, vals, err := config.Load(logger, config.AppKeys)
	if err != nil {
		return nil, config.AppConfig{}, err
	}
	appCfg, err := config.NewAppConfig(vals, coreCfg.Env)
	if err != nil {
		return nil, config.AppConfig{}, err
	}
	return coreCfg, appCfg, nil
}

// Connect opens the mail relay, the rate-limit store and the label catalog.
func Connect(ctx context.Context, coreCfg *config.CoreConfig, appCfg config.AppConfig, logger *zap.Logger) (*Services, error) {
	svc := &Services{Catalog: labels.Load(appCfg.LabelsFile, logger)}

	if appCfg.SMTP.Host == "" {
		logger.Warn("smtp_host is empty; notifications will be logged, not sent")
		svc.Mailer = email.NewLogSender(logger)
	} else {
		svc.Mailer = email.NewSender(email.Config{
			Host:        appCfg.SMTP.Host,
			Port:        appCfg.SMTP.Port,
			Username:    appCfg.SMTP.Username,
			Password:    appCfg.SMTP.Password,
			FromAddress: appCfg.Sender,
			UseSSL:      appCfg.SMTP.UseSSL,
			Timeout:     appCfg.SMTP.Timeout,
		})
		logger.Info("smtp relay configured",
			zap.String("host", appCfg.SMTP.Host),
			zap.Int("port", appCfg.SMTP.Port))
	}

	if appCfg.Redis.Addr == "" {
		svc.memory = ratelimit.NewMemoryStore(memoryStoreTTL)
		svc.Store = svc.memory
		logger.Info("rate limits kept in memory")
		return svc, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     appCfg.Redis.Addr,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", appCfg.Redis.Addr, err)
	}
	svc.redis = client
	svc.Store = ratelimit.NewRedisStore(client, "")
	logger.Info("rate limits kept in redis", zap.String("addr", appCfg.Redis.Addr))
	return svc, nil
}

// BuildHandler assembles validation, rendering and delivery behind the
// standard router.
func BuildHandler(coreCfg *config.CoreConfig, appCfg config.AppConfig, svc *Services, logger *zap.Logger) (http.Handler, error) {
	limits, err := parseLimits(appCfg.RateLimits)
	if err != nil {
		return nil, err
	}

	detector := spam.NewDetector(spam.Config{
		OnFinding: func(f spam.Finding) { metrics.RecordSpamSignal(f.Field, string(f.Rule)) },
	}, logger)

	validator := submission.New(
		submission.WithStrictLanguage(appCfg.StrictLanguage),
		submission.WithStrictPhone(appCfg.StrictPhone),
		submission.WithRequirePreferredContact(appCfg.RequirePreferredContact),
		submission.WithCatalog(svc.Catalog),
		submission.WithDetector(detector),
	)

	formatter, err := notify.New(svc.Catalog, notify.WithLocation(appCfg.Location()))
	if err != nil {
		return nil, err
	}

	h, err := api.New(api.Config{
		Validator:   validator,
		Formatter:   formatter,
		Sender:      svc.Mailer,
		Recipient:   appCfg.Recipient,
		SendTimeout: appCfg.SMTP.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	keyFunc := ratelimit.RemoteAddrKeyFunc
	if appCfg.TrustProxyHeaders {
		keyFunc = ratelimit.IPKeyFunc
	}

	r := router.New(coreCfg, logger, appCfg.TrustProxyHeaders)
	h.Mount(r, api.RouteConfig{
		Limits:    limits,
		Store:     svc.Store,
		KeyFunc:   keyFunc,
		APISecret: appCfg.APISecret,
		HealthChecks: map[string]health.Check{
			"email_service": svc.Mailer.Ping,
		},
		Logger: logger,
	})
	return r, nil
}

// Close releases the rate-limit store.
func Close(svc *Services, logger *zap.Logger) {
	if svc == nil {
		return
	}
	if svc.memory != nil {
		_ = svc.memory.Close()
	}
	if svc.redis != nil {
		if err := svc.redis.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}
}

func parseLimits(rl config.RateLimits) (api.Limits, error) {
	var (
		out api.Limits
		err error
	)
	for _, p := range []struct {
		name string
		spec string
		dst  *ratelimit.Rate
	}{
		{"rate_limit_default", rl.Default, &out.Default},
		{"rate_limit_contact", rl.Contact, &out.Contact},
		{"rate_limit_reservation", rl.Reservation, &out.Reservation},
		{"rate_limit_generate_key", rl.GenerateKey, &out.GenerateKey},
	} {
		if *p.dst, err = ratelimit.ParseRate(p.spec); err != nil {
			return api.Limits{}, fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return out, nil
}

// Hooks wires formrelay into the app lifecycle.
var Hooks = app.Hooks[config.AppConfig, *Services]{
	Name:         "formrelay",
	LoadConfig:   LoadConfig,
	Connect:      Connect,
	BuildHandler: BuildHandler,
	Close:        Close,
}
