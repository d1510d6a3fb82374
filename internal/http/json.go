package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/rohittupe/prediction-service/internal/errors"
)

// maxBodyBytes caps request bodies read by ReadBody.
const maxBodyBytes = 1 << 20

// ReadBody reads the whole request body, bounded by maxBodyBytes.
// Returns false if there was an error (error response already written).
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, ErrorParams{Code: http.StatusRequestEntityTooLarge, ErrCode: "body_too_large", Err: err})
			return nil, false
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return nil, false
	}
	return body, true
}

// DecodeBytes decodes an already-read JSON body into dst. Unknown fields are ignored.
// Returns true if successful, false if there was an error (error response already written).
func DecodeBytes(w http.ResponseWriter, body []byte, dst any) bool {
	dec := json.NewDecoder(bytes.NewReader(body))

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	Field   string
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, errorBody{Error: p.ErrCode, Message: p.Err.Error(), Field: p.Field})
}

// WriteAppError maps an application error to its HTTP status and writes the error envelope.
// Errors that are not AppErrors are reported as internal without leaking their text.
func WriteAppError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: string(apperrors.ErrCodeInternal),
			Err:     errors.New("internal server error"),
		})
		return
	}

	field := apperrors.GetField(err)
	msg := apperrors.GetMessage(err)
	if msg == "" {
		msg = http.StatusText(StatusFor(code, field))
	}
	WriteError(w, ErrorParams{
		Code:    StatusFor(code, field),
		ErrCode: string(code),
		Err:     errors.New(msg),
		Field:   field,
	})
}

// StatusFor returns the HTTP status for an error code.
// Shape errors tied to a field are unprocessable; other bad requests are plain 400s.
func StatusFor(code apperrors.ErrorCode, field string) int {
	switch code {
	case apperrors.ErrCodeBadRequest:
		if field != "" {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case apperrors.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeNotReady, apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled:
		return statusClientClosedRequest
	case apperrors.ErrCodeJobFailed, apperrors.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// statusClientClosedRequest is the de facto status for requests abandoned by the client.
const statusClientClosedRequest = 499
