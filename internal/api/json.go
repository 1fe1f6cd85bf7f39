package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/attic/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg, Code: "bad_request"}
}

// writeServiceError maps service errors onto HTTP statuses and stable error
// codes. Unknown errors are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	status, body := http.StatusInternalServerError, errResponse{Error: "internal error", Code: "internal"}
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status, body = http.StatusNotFound, errResponse{Error: "not found", Code: "not_found"}
	case errors.Is(err, apperr.ErrInvalidPath):
		status, body = http.StatusBadRequest, errResponse{Error: err.Error(), Code: "invalid_path"}
	case errors.Is(err, apperr.ErrValidation):
		status, body = http.StatusBadRequest, errResponse{Error: err.Error(), Code: "validation"}
	case errors.Is(err, apperr.ErrLinked):
		status, body = http.StatusConflict, errResponse{Error: err.Error(), Code: "linked"}
	case errors.Is(err, apperr.ErrBusy):
		status, body = http.StatusConflict, errResponse{Error: "operation already running", Code: "busy"}
	case errors.Is(err, apperr.ErrNotConfigured):
		status, body = http.StatusServiceUnavailable, errResponse{Error: err.Error(), Code: "not_configured"}
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, body)
}
