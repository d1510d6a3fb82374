package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/net/netutil"

	"github.com/rohittupe/prediction-service/config"
	httpx "github.com/rohittupe/prediction-service/internal/http"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	HTTP     config.HTTPConfig
	Services httpx.RouterServices
	Logger   *slog.Logger
}

// NewHTTPServer builds the HTTP server with all routes and middleware.
func NewHTTPServer(cfg HTTPServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	services := cfg.Services
	services.Logger = logger
	if gz := cfg.HTTP.Gzip; gz.Enabled {
		logger.Info("HTTP compression enabled", "level", gz.Level)
		services.Compression = &httpx.CompressionConfig{Level: gz.Level, Logger: logger}
	}

	t := cfg.HTTP.Timeouts
	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpx.NewRouter(services),
		ReadHeaderTimeout: t.ReadHeader,
		ReadTimeout:       t.Read,
		WriteTimeout:      t.Write,
		IdleTimeout:       t.Idle,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

// Listen opens the server's listener, capped at maxConns simultaneous connections when positive.
func Listen(ctx context.Context, addr string, maxConns int) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}

// Serve runs the server on ln until it is shut down. A graceful shutdown is not an error.
func Serve(server *http.Server, ln net.Listener, logger *slog.Logger) error {
	logger.Info("starting HTTP server", "addr", ln.Addr().String())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	if server == nil {
		return nil
	}
	logger.InfoContext(ctx, "shutting down HTTP server")

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	logger.InfoContext(ctx, "HTTP server stopped")
	return nil
}
