package httpx

import (
	"log/slog"
	"net/http"

	"github.com/rohittupe/prediction-service/internal/http/validation"
	"github.com/rohittupe/prediction-service/internal/observability/metrics"
	"github.com/rohittupe/prediction-service/internal/observability/statsd"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Predictions PredictionAPI
	// Optional: request schema checked before decoding. Defaults to the prediction request schema.
	Schema *validation.Schema
	// Optional: registry served at /metrics. The route is not registered when nil.
	Registry *metrics.Registry
	// Optional: sink for per-request metrics.
	Metrics     statsd.Sink
	Compression *CompressionConfig // Optional: gzip responses when set
	// Optional: readiness probe behind GET /readyz. Always ready when nil.
	Ready  ReadyFunc
	Logger *slog.Logger
}

// NewRouter creates the HTTP handler with all routes and middleware.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	schema := services.Schema
	if schema == nil {
		schema = validation.MustPredictionRequest()
	}

	mux := http.NewServeMux()

	predictions := &PredictionHandlers{Svc: services.Predictions, Schema: schema, Logger: logger}
	registerPredictionRoutes(mux, predictions)

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)
	mux.HandleFunc("GET /ping", healthHandler)
	mux.Handle("GET /readyz", readyHandler(services.Ready, logger))
	if services.Registry != nil {
		mux.Handle("GET /metrics", metricsHandler(services.Registry, logger))
	}

	mws := []Middleware{RequestID(), Recover(logger), Logging(logger), Metrics(services.Metrics)}
	if services.Compression != nil {
		cfg := *services.Compression
		if cfg.Logger == nil {
			cfg.Logger = logger
		}
		mws = append(mws, Compression(cfg))
	}
	return Chain(mux, mws...)
}

func registerPredictionRoutes(mux *http.ServeMux, h *PredictionHandlers) {
	mux.HandleFunc("POST /predict", h.Submit)
	mux.HandleFunc("POST /predict/sync", h.PredictSync)
	mux.HandleFunc("GET /status/{id}", h.Status)
	mux.HandleFunc("GET /result/{id}", h.Result)
}
