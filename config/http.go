package config

import (
	"compress/gzip"
	"strings"
	"time"
)

const defaultHTTPAddr = ":8080"

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`
	// MaxConnections caps open client connections; 0 leaves them unbounded.
	MaxConnections int `env:"HTTP_MAX_CONNECTIONS" envDefault:"0"`

	Gzip     GzipConfig
	Timeouts HTTPTimeouts
}

// GzipConfig controls response compression for JSON and text bodies.
type GzipConfig struct {
	Enabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"false"`
	Level   int  `env:"HTTP_COMPRESSION_LEVEL"   envDefault:"6"`
}

// HTTPTimeouts are handed to http.Server, except Shutdown which bounds the drain on exit.
type HTTPTimeouts struct {
	ReadHeader time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	Read       time.Duration `env:"HTTP_READ_TIMEOUT"        envDefault:"30s"`
	Write      time.Duration `env:"HTTP_WRITE_TIMEOUT"       envDefault:"30s"`
	Idle       time.Duration `env:"HTTP_IDLE_TIMEOUT"        envDefault:"120s"`
	Shutdown   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"    envDefault:"10s"`
}

// Sanitize clamps values the server cannot use.
func (h *HTTPConfig) Sanitize() {
	h.Addr = strings.TrimSpace(h.Addr)
	if h.Addr == "" {
		h.Addr = defaultHTTPAddr
	}
	h.MaxConnections = max(h.MaxConnections, 0)
	h.Gzip.Level = min(max(h.Gzip.Level, gzip.BestSpeed), gzip.BestCompression)
	if h.Timeouts.Shutdown <= 0 {
		h.Timeouts.Shutdown = 10 * time.Second
	}
}
