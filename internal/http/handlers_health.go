package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rohittupe/prediction-service/internal/observability/metrics"
)

const readyTimeout = 2 * time.Second

// ReadyFunc returns nil when the service can take traffic.
type ReadyFunc func(ctx context.Context) error

type probeResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// healthHandler is the liveness probe behind /healthz and /ping.
// It never touches a dependency.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, probeResponse{Status: "ok"})
}

// readyHandler answers 503 while ready reports an error.
func readyHandler(ready ReadyFunc, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready == nil {
			WriteJSON(w, http.StatusOK, probeResponse{Status: "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := ready(ctx); err != nil {
			logger.WarnContext(ctx, "readiness check failed", "error", err)
			WriteJSON(w, http.StatusServiceUnavailable, probeResponse{Status: "unavailable", Error: err.Error()})
			return
		}
		WriteJSON(w, http.StatusOK, probeResponse{Status: "ok"})
	}
}

// metricsHandler serves the registry in the Prometheus text exposition format.
func metricsHandler(reg *metrics.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", string(metrics.TextFormat()))
		if err := reg.WriteText(w); err != nil {
			logger.ErrorContext(r.Context(), "writing metrics failed", "error", err)
		}
	}
}
