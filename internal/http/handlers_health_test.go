package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohittupe/prediction-service/internal/observability/metrics"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		method   string
		path     string
		wantBody string
	}{
		{http.MethodGet, "/healthz", `{"status":"ok"}`},
		{http.MethodGet, "/ping", `{"status":"ok"}`},
		{http.MethodHead, "/healthz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			healthHandler(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, strings.TrimSpace(rec.Body.String()))
		})
	}
}

func TestReadyHandler(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	tests := []struct {
		name       string
		ready      ReadyFunc
		wantStatus int
		wantBody   string
	}{
		{"no probe", nil, http.StatusOK, `{"status":"ok"}`},
		{"healthy", func(context.Context) error { return nil }, http.StatusOK, `{"status":"ok"}`},
		{
			"store down",
			func(context.Context) error { return errors.New("redis: connection refused") },
			http.StatusServiceUnavailable,
			`{"status":"unavailable","error":"redis: connection refused"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			readyHandler(tt.ready, logger)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestReadyHandler_BoundsProbe(t *testing.T) {
	var hadDeadline bool
	probe := func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}
	readyHandler(probe, slog.New(slog.DiscardHandler))(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.True(t, hadDeadline)
}

func TestMetricsHandler(t *testing.T) {
	reg := metrics.NewRegistry("svc")
	reg.Count("prediction.job.lifecycle", 2, map[string]string{"stage": "completed"})

	rec := httptest.NewRecorder()
	metricsHandler(reg, slog.Default())(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "svc_prediction_job_lifecycle_total{stage=\"completed\"} 2\n")
}
