// app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalemusser/formrelay/config"
	"github.com/dalemusser/formrelay/httputil"
	"github.com/dalemusser/formrelay/logging"
	"github.com/dalemusser/formrelay/metrics"
	"github.com/dalemusser/formrelay/server"
	"go.uber.org/zap"
)

// Hooks are the integration points Run calls, in order. C is the app
// config and S the bundle of connected services.
type Hooks[C any, S any] struct {
	// Name is used only for logging.
	Name string

	// LoadConfig returns the core config and the validated app config.
	LoadConfig func(logger *zap.Logger) (*config.CoreConfig, C, error)

	// Connect opens outbound services (mail relay, rate-limit store).
	Connect func(ctx context.Context, core *config.CoreConfig, appCfg C, logger *zap.Logger) (S, error)

	// BuildHandler returns the final handler: router, middleware and routes.
	BuildHandler func(core *config.CoreConfig, appCfg C, svc S, logger *zap.Logger) (http.Handler, error)

	// Close releases what Connect opened. May be nil.
	Close func(svc S, logger *zap.Logger)
}

// Run executes the startup sequence:
//
//  1. Bootstrap logger
//  2. Load core + app config (Hooks.LoadConfig)
//  3. Build the final logger from the core config
//  4. Register metrics
//  5. Connect services (Hooks.Connect)
//  6. Wire shutdown signals to a context
//  7. Build the HTTP handler (Hooks.BuildHandler)
//  8. Serve until shutdown, then Hooks.Close
func Run[C any, S any](ctx context.Context, hooks Hooks[C, S]) error {
	bootstrap := logging.BootstrapLogger()
	defer func() { _ = bootstrap.Sync() }()
	bootstrap.Info("bootstrap logger initialized", zap.String("app", hooks.Name))

	coreCfg, appCfg, err := hooks.LoadConfig(bootstrap)
	if err != nil {
		bootstrap.Error("config load failed", zap.Error(err))
		return fmt.Errorf("load config: %w", err)
	}
	bootstrap.Info("config loaded",
		zap.String("env", coreCfg.Env),
		zap.String("log_level", coreCfg.Log.LogLevel),
	)

	logger, err := logging.BuildLogger(coreCfg.Log.LogLevel, coreCfg.Env, logging.FileOptions{
		Path:       coreCfg.Log.LogFile,
		MaxSizeMB:  coreCfg.Log.LogMaxSizeMB,
		MaxBackups: coreCfg.Log.LogMaxBackups,
		MaxAgeDays: coreCfg.Log.LogMaxAgeDays,
	})
	if err != nil {
		bootstrap.Error("logger build failed", zap.Error(err))
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	httputil.SetLogger(logger)
	logger.Info("logger initialized", zap.String("app", hooks.Name))

	metrics.RegisterDefault(logger)

	svc, err := hooks.Connect(ctx, coreCfg, appCfg, logger)
	if err != nil {
		logger.Error("service connect failed", zap.Error(err))
		return fmt.Errorf("connect: %w", err)
	}
	if hooks.Close != nil {
		defer hooks.Close(svc, logger)
	}

	ctx, cancel := server.WithShutdownSignals(ctx, logger)
	defer cancel()

	handler, err := hooks.BuildHandler(coreCfg, appCfg, svc, logger)
	if err != nil {
		logger.Error("handler build failed", zap.Error(err))
		return fmt.Errorf("build handler: %w", err)
	}

	if err := server.ListenAndServeWithContext(ctx, coreCfg, handler, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
