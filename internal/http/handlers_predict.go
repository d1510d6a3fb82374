package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rohittupe/prediction-service/internal/domain/model"
	apperrors "github.com/rohittupe/prediction-service/internal/errors"
	"github.com/rohittupe/prediction-service/internal/http/validation"
	"github.com/rohittupe/prediction-service/internal/service"
)

// PredictionAPI is the subset of the prediction service used by the handlers.
type PredictionAPI interface {
	Submit(ctx context.Context, req model.PredictionRequest) (service.SubmitResult, error)
	Status(ctx context.Context, id string) (service.StatusResult, error)
	Result(ctx context.Context, id string) (model.PredictionResult, error)
	PredictNow(ctx context.Context, req model.PredictionRequest) (model.PredictionResult, error)
}

var _ PredictionAPI = (*service.PredictionService)(nil)

// PredictionHandlers serves the prediction job endpoints.
type PredictionHandlers struct {
	Svc    PredictionAPI
	Schema *validation.Schema // Optional: request schema; shape is still checked by Svc when nil
	Logger *slog.Logger
}

type jobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Submit handles POST /predict.
func (h *PredictionHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	res, err := h.Svc.Submit(r.Context(), req)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, jobResponse{JobID: res.JobID, Status: res.State.Status()})
}

// PredictSync handles POST /predict/sync.
func (h *PredictionHandlers) PredictSync(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	res, err := h.Svc.PredictNow(r.Context(), req)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// Status handles GET /status/{id}.
func (h *PredictionHandlers) Status(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	WriteJSON(w, http.StatusOK, jobResponse{JobID: res.JobID, Status: res.State.Status()})
}

// Result handles GET /result/{id}.
func (h *PredictionHandlers) Result(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (h *PredictionHandlers) decodeRequest(w http.ResponseWriter, r *http.Request) (model.PredictionRequest, bool) {
	var req model.PredictionRequest

	body, ok := ReadBody(w, r)
	if !ok {
		return req, false
	}

	if h.Schema != nil {
		if err := h.Schema.Validate(body); err != nil {
			var v *validation.Violation
			switch {
			case errors.Is(err, validation.ErrMalformedJSON):
				WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
			case errors.As(err, &v):
				WriteAppError(w, apperrors.ValidationField(v.Field, v.Message))
			default:
				h.writeError(r, w, err)
			}
			return req, false
		}
	}

	if !DecodeBytes(w, body, &req) {
		return req, false
	}
	return req, true
}

// writeError logs server-side failures and writes the error envelope.
func (h *PredictionHandlers) writeError(r *http.Request, w http.ResponseWriter, err error) {
	if status := StatusFor(apperrors.GetCode(err), apperrors.GetField(err)); status >= http.StatusInternalServerError &&
		!apperrors.IsJobFailed(err) {
		h.logger().ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	WriteAppError(w, err)
}

func (h *PredictionHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
