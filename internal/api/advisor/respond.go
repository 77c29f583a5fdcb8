package advisor

import (
	"encoding/json"
	"io"
	"net/http"

	"irrigation/pkg/errors"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps error kinds to HTTP statuses and a stable error code
func statusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, errors.ErrRetrainInProgress):
		return http.StatusConflict, "retrain_in_progress"
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errors.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, errors.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, errors.ErrInvalidDataset):
		return http.StatusBadRequest, "invalid_dataset"
	case errors.Is(err, errors.ErrUnknownCategory):
		return http.StatusBadRequest, "unknown_category"
	case errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, errors.ErrModelNotLoaded), errors.Is(err, errors.ErrScalerNotFitted):
		return http.StatusServiceUnavailable, "model_unavailable"
	case errors.Is(err, errors.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, errors.ErrTrainingFailed):
		return http.StatusInternalServerError, "training_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	resp := errorResponse{
		Error:     code,
		Detail:    err.Error(),
		RequestID: r.Context().Value(errors.RequestIDKey),
	}

	var ve *errors.ValidationError
	var ce *errors.CategoryError
	var de *errors.DatasetError
	switch {
	case errors.As(err, &ce):
		resp.Field = ce.Field
		resp.Known = ce.Known
	case errors.As(err, &ve):
		resp.Field = ve.Field
	case errors.As(err, &de):
		resp.Field = de.Column
		resp.Row = de.Row
	}

	// 5xx details never leave the process
	switch code {
	case "internal_error":
		resp.Detail = "internal error"
		h.log.Errorw("Request failed", "path", r.URL.Path, "error", err)
	case "training_failed":
		resp.Detail = "training failed, the previous model is still active"
		h.log.Errorw("Retrain failed", "path", r.URL.Path, "error", err)
	case "model_unavailable", "unavailable":
		h.log.Warnw("Request rejected, service unavailable", "path", r.URL.Path, "error", err)
	}

	writeJSON(w, status, resp)
}

func decodeError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	if errors.Is(err, io.EOF) {
		return errors.NewValidationError("body", "request body is empty", nil)
	}
	return errors.NewValidationError("body", "malformed JSON: "+err.Error(), nil)
}

// uploadError keeps size violations recognisable after the dataset parser wraps them
func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return tooLarge
	}
	return err
}
