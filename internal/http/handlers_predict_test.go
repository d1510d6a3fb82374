package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohittupe/prediction-service/internal/adapters/jobrunner"
	"github.com/rohittupe/prediction-service/internal/data"
	"github.com/rohittupe/prediction-service/internal/domain/job"
	"github.com/rohittupe/prediction-service/internal/domain/predictor"
	apperrors "github.com/rohittupe/prediction-service/internal/errors"
	"github.com/rohittupe/prediction-service/internal/observability/metrics"
	"github.com/rohittupe/prediction-service/internal/service"
	"github.com/rohittupe/prediction-service/internal/testutil"
)

const validBody = `{"member_id":"m1","balance":1000,"last_purchase_size":500,"last_purchase_date":"2024-01-01"}`

type apiHarness struct {
	handler  http.Handler
	store    *data.MemoryJobStore
	runner   *jobrunner.Runner
	registry *metrics.Registry
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	now := testutil.TestTime()

	policy, err := job.NewRetentionPolicy(time.Hour, time.Hour, 10*time.Minute)
	require.NoError(t, err)
	retention, err := job.NewDynamicRetention(policy)
	require.NoError(t, err)

	store, err := data.NewMemoryJobStore(data.MemoryJobStoreOptions{Retention: retention})
	require.NoError(t, err)
	pred := predictor.New(predictor.Options{Now: func() time.Time { return now }})
	registry := metrics.NewRegistry("test")
	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{Store: store, Predictor: pred, Metrics: registry})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})
	svc, err := service.NewPredictionService(service.PredictionServiceOptions{
		Store:     store,
		Scheduler: runner,
		Predictor: pred,
	})
	require.NoError(t, err)

	return &apiHarness{
		handler:  NewRouter(RouterServices{Predictions: svc, Registry: registry, Metrics: registry}),
		store:    store,
		runner:   runner,
		registry: registry,
	}
}

func (h *apiHarness) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (h *apiHarness) submit(t *testing.T, body string) string {
	t.Helper()
	rec, out := h.do(t, http.MethodPost, "/predict", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id, ok := out["job_id"].(string)
	require.True(t, ok)
	return id
}

func (h *apiHarness) waitForStatus(t *testing.T, id, want string) {
	t.Helper()
	ok := testutil.WaitFor(2*time.Second, 5*time.Millisecond, func() bool {
		_, out := h.do(t, http.MethodGet, "/status/"+id, "")
		return out["status"] == want
	})
	require.True(t, ok, "job %s never reached %s", id, want)
}

func TestPredict_SubmitAndFetchResult(t *testing.T) {
	h := newAPIHarness(t)

	rec, out := h.do(t, http.MethodPost, "/predict", validBody)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "processing", out["status"])
	assert.NotContains(t, out, "average_transaction_size")
	id := out["job_id"].(string)
	assert.NotEmpty(t, id)

	h.waitForStatus(t, id, "completed")

	rec, out = h.do(t, http.MethodGet, "/status/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"job_id": id, "status": "completed"}, out)

	rec, out = h.do(t, http.MethodGet, "/result/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 750.0, out["average_transaction_size"], 1e-9)
	assert.InDelta(t, 1.0, out["probability_to_transact"], 1e-9)

	_, again := h.do(t, http.MethodGet, "/result/"+id, "")
	assert.Equal(t, out, again)
}

func TestPredict_ExtraFieldsIgnored(t *testing.T) {
	h := newAPIHarness(t)
	id := h.submit(t, `{"member_id":"m1","balance":1000,"last_purchase_size":100,"extra_field":"x","another":1}`)
	h.waitForStatus(t, id, "completed")
}

func TestPredict_RequestErrors(t *testing.T) {
	h := newAPIHarness(t)

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantError string
		wantField string
	}{
		{name: "malformed json", body: `{"member_id": "test", "balance": }`, wantCode: http.StatusBadRequest, wantError: "invalid_json"},
		{name: "empty body", body: `{}`, wantCode: http.StatusUnprocessableEntity, wantError: "validation", wantField: "member_id"},
		{name: "missing member", body: `{"balance":1,"last_purchase_size":1}`, wantCode: http.StatusUnprocessableEntity, wantError: "validation", wantField: "member_id"},
		{name: "balance wrong type", body: `{"member_id":"m","balance":"1","last_purchase_size":1}`, wantCode: http.StatusUnprocessableEntity, wantError: "validation", wantField: "balance"},
		{name: "null balance", body: `{"member_id":"m","balance":null,"last_purchase_size":1}`, wantCode: http.StatusUnprocessableEntity, wantError: "validation", wantField: "balance"},
		{name: "invalid date", body: `{"member_id":"m","balance":1,"last_purchase_size":1,"last_purchase_date":"01/15/2024"}`, wantCode: http.StatusUnprocessableEntity, wantError: "validation", wantField: "last_purchase_date"},
		{name: "blank member id", body: `{"member_id":"   ","balance":1,"last_purchase_size":1}`, wantCode: http.StatusUnprocessableEntity, wantError: "bad_request", wantField: "member_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := h.do(t, http.MethodPost, "/predict", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantError, out["error"])
			assert.NotEmpty(t, out["message"])
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, out["field"])
			}
		})
	}
	assert.Zero(t, h.store.Len(), "rejected requests must not create jobs")
}

func TestPredict_NegativeBalanceFailsJob(t *testing.T) {
	h := newAPIHarness(t)
	id := h.submit(t, `{"member_id":"m1","balance":-100,"last_purchase_size":500}`)
	h.waitForStatus(t, id, "failed")

	rec, out := h.do(t, http.MethodGet, "/result/"+id, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "job_failed", out["error"])
	assert.Equal(t, "balance must be non-negative", out["message"])
}

func TestStatusAndResult_UnknownJob(t *testing.T) {
	h := newAPIHarness(t)

	for _, path := range []string{"/status/does-not-exist", "/result/does-not-exist"} {
		rec, out := h.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "not_found", out["error"])
		assert.Equal(t, service.MessageJobNotFound, out["message"])
	}
}

func TestResult_NotReady(t *testing.T) {
	h := newAPIHarness(t)
	id, err := h.store.Create(context.Background())
	require.NoError(t, err)

	rec, out := h.do(t, http.MethodGet, "/status/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "processing", out["status"])

	rec, out = h.do(t, http.MethodGet, "/result/"+id, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_ready", out["error"])
	assert.Equal(t, service.MessageResultNotReady, out["message"])
}

func TestPredictSync(t *testing.T) {
	h := newAPIHarness(t)

	rec, out := h.do(t, http.MethodPost, "/predict/sync", validBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 750.0, out["average_transaction_size"], 1e-9)
	assert.Zero(t, h.store.Len())

	rec, out = h.do(t, http.MethodPost, "/predict/sync", `{"member_id":"m1","balance":1000,"last_purchase_size":-5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation", out["error"])
	assert.Equal(t, "last_purchase_size must be non-negative", out["message"])
}

func TestPingAndHealth(t *testing.T) {
	h := newAPIHarness(t)
	for _, path := range []string{"/ping", "/healthz", "/readyz"} {
		rec, out := h.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"status": "ok"}, out)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	id := h.submit(t, validBody)
	h.waitForStatus(t, id, "completed")

	rec, _ := h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	body := rec.Body.String()
	assert.Contains(t, body, "test_http_requests_total")
	assert.Contains(t, body, `route="POST /predict"`)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newAPIHarness(t)
	rec, _ := h.do(t, http.MethodGet, "/predict", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type stubAPI struct {
	PredictionAPI
	err error
}

func (s stubAPI) Status(context.Context, string) (service.StatusResult, error) {
	return service.StatusResult{}, s.err
}

func TestStatus_StoreErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"timeout", apperrors.Wrap(context.DeadlineExceeded, apperrors.ErrCodeTimeout, "failed to load job"), http.StatusGatewayTimeout},
		{"unavailable", &apperrors.AppError{Code: apperrors.ErrCodeUnavailable, Message: "store down"}, http.StatusServiceUnavailable},
		{"unclassified", context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewRouter(RouterServices{Predictions: stubAPI{err: tt.err}})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/x", nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.NotContains(t, rec.Body.String(), "context canceled")
		})
	}
}
