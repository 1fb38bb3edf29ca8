// server/server.go
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dalemusser/formrelay/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// certWarmTimeout bounds the wait for the first Let's Encrypt certificate.
const certWarmTimeout = 60 * time.Second

// WithShutdownSignals returns a context that is canceled on SIGINT or
// SIGTERM. The returned cancel function also stops signal delivery.
func WithShutdownSignals(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			if logger != nil {
				logger.Info("shutdown signal received", zap.Any("signal", sig))
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// ListenAndServeWithContext serves handler over plain HTTP, HTTPS with a
// Let's Encrypt certificate (http-01), or HTTPS with cert_file/key_file,
// and blocks until ctx is canceled or a listener fails. In both HTTPS modes
// port 80 redirects to HTTPS.
func ListenAndServeWithContext(ctx context.Context, cfg *config.CoreConfig, handler http.Handler, logger *zap.Logger) error {
	if cfg == nil {
		return errors.New("server: cfg is nil")
	}
	if handler == nil {
		return errors.New("server: handler is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := newServer(cfg, handler, logger)

	var (
		aux      *http.Server
		auxErr   chan error // stays nil in HTTP-only mode so its select case never fires
		serveErr = make(chan error, 1)
		ln       net.Listener
		err      error
	)

	startAux := func(h http.Handler, what string) {
		aux = newServer(cfg, h, logger)
		aux.Addr = ":80"
		auxErr = make(chan error, 1)
		go func() {
			if err := aux.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				auxErr <- err
				return
			}
			auxErr <- nil
		}()
		logger.Info(what+" server listening", zap.String("addr", aux.Addr))
	}
	stopAux := func(ctx context.Context) {
		if aux != nil {
			_ = aux.Shutdown(ctx)
		}
	}

	switch {
	case !cfg.HTTP.UseHTTPS:
		addr := ":" + strconv.Itoa(cfg.HTTP.HTTPPort)
		if ln, err = net.Listen("tcp", addr); err != nil {
			return fmt.Errorf("listen http %s: %w", addr, err)
		}
		logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))

	case cfg.TLS.UseLetsEncrypt:
		m := autocertManager(cfg)
		startAux(m.HTTPHandler(redirectHandler()), "ACME + redirect")
		if err := waitForCert(ctx, m, cfg.TLS.Domain, certWarmTimeout); err != nil {
			logger.Warn("certificate pre-warm failed; first HTTPS requests may fail", zap.Error(err))
		}
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, GetCertificate: m.GetCertificate}
		if ln, err = listenTLS(cfg, srv.TLSConfig); err != nil {
			stopAux(context.Background())
			return err
		}
		logger.Info("HTTPS server (Let's Encrypt) listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("domain", cfg.TLS.Domain))

	default:
		if err := checkKeyFiles(cfg, logger); err != nil {
			return err
		}
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		startAux(redirectHandler(), "HTTP redirect")
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}
		if ln, err = listenTLS(cfg, srv.TLSConfig); err != nil {
			stopAux(context.Background())
			return err
		}
		logger.Info("HTTPS server (manual TLS) listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("cert_file", cfg.TLS.CertFile))
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down server")
			// ctx is already done; shutdown gets its own window.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			stopAux(shutdownCtx)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = ln.Close()
				return fmt.Errorf("server shutdown: %w", err)
			}
			logger.Info("server stopped gracefully")
			return nil

		case err := <-serveErr:
			stopAux(context.Background())
			_ = ln.Close()
			if err != nil {
				return fmt.Errorf("primary server error: %w", err)
			}
			return nil

		case err := <-auxErr:
			if err != nil {
				if closeErr := srv.Close(); closeErr != nil {
					logger.Error("failed to close primary server", zap.Error(closeErr))
				}
				_ = ln.Close()
				return fmt.Errorf("port 80 server error: %w", err)
			}
			aux, auxErr = nil, nil
		}
	}
}

func newServer(cfg *config.CoreConfig, h http.Handler, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Handler:           h,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	if stdlog, err := zap.NewStdLogAt(logger, zapcore.WarnLevel); err == nil {
		srv.ErrorLog = stdlog
	}
	return srv
}

func listenTLS(cfg *config.CoreConfig, tlsCfg *tls.Config) (net.Listener, error) {
	addr := ":" + strconv.Itoa(cfg.HTTP.HTTPSPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen https %s: %w", addr, err)
	}
	return tls.NewListener(ln, tlsCfg), nil
}

// autocertManager builds the http-01 certificate manager. An empty
// ACMEDirectoryURL means production Let's Encrypt.
func autocertManager(cfg *config.CoreConfig) *autocert.Manager {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.TLS.Domain),
		Cache:      autocert.DirCache(cfg.TLS.LetsEncryptCacheDir),
		Email:      cfg.TLS.LetsEncryptEmail,
	}
	if cfg.TLS.ACMEDirectoryURL != "" {
		m.Client = &acme.Client{DirectoryURL: cfg.TLS.ACMEDirectoryURL}
	}
	return m
}

// waitForCert polls m until it has a certificate for host, the timeout
// passes, or ctx is done.
func waitForCert(ctx context.Context, m *autocert.Manager, host string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		_, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: host})
		if err == nil {
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for cert for %q: %w", host, lastErr)
		case <-time.After(time.Second):
		}
	}
}

// redirectHandler sends every request to the same host and path over HTTPS.
func redirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uri := r.URL.RequestURI()
		if !validHost(r.Host) || hasControl(uri) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "https://"+r.Host+uri, http.StatusMovedPermanently)
	})
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, func(c rune) bool { return c < 0x20 || c == 0x7f }) >= 0
}

// validHost rejects Host headers that could inject headers or turn the
// redirect into an open redirect.
func validHost(host string) bool {
	if host == "" || hasControl(host) || strings.Contains(host, "://") || strings.ContainsAny(host, "/\\ @") {
		return false
	}
	name := host
	if h, port, err := net.SplitHostPort(host); err == nil {
		if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
			return false
		}
		name = h
	}
	if name == "" {
		return false
	}
	if strings.HasPrefix(host, "[") {
		ip := name
		if i := strings.IndexByte(ip, '%'); i >= 0 {
			ip = ip[:i]
		}
		return net.ParseIP(ip) != nil
	}
	return true
}

// checkKeyFiles verifies the manual TLS files. A group- or world-readable
// key is fatal in prod and a warning elsewhere.
func checkKeyFiles(cfg *config.CoreConfig, logger *zap.Logger) error {
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return errors.New("manual TLS selected but cert_file / key_file not provided")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, f := range []struct{ what, path string }{
		{"certificate", cfg.TLS.CertFile},
		{"key", cfg.TLS.KeyFile},
	} {
		info, err := os.Stat(f.path)
		if err != nil {
			return fmt.Errorf("TLS %s file %s: %w", f.what, f.path, err)
		}
		if info.IsDir() {
			return fmt.Errorf("TLS %s path is a directory: %s", f.what, f.path)
		}
		if f.what == "key" && runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
			err := fmt.Errorf("TLS key file %s has permissions %o (recommended: 0600)", f.path, info.Mode().Perm())
			if cfg.Env == "prod" {
				return err
			}
			logger.Warn("TLS key file is readable by others", zap.Error(err))
		}
	}
	return nil
}
