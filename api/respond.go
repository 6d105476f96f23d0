package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tryonix/tryonix-server/apperr"
)

// errorBody is the uniform failure payload. Stack detail is only populated
// outside production.
type errorBody struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
	Stack   string   `json:"stack,omitempty"`
}

// RespondJSON sends a JSON response with the given status code and payload.
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// RespondError maps a typed error to its status code and the uniform
// failure body. Unclassified faults become a 500.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error, includeStack bool) {
	appErr := apperr.From(err)

	body := errorBody{
		Success: false,
		Message: appErr.Message,
		Errors:  appErr.Details,
	}
	if includeStack && appErr.Err != nil {
		body.Stack = appErr.Err.Error()
	}

	if appErr.Status() >= http.StatusInternalServerError {
		logger.Error("request failed", "status", appErr.Status(), "error", err)
	} else {
		logger.Info("request rejected", "status", appErr.Status(), "message", appErr.Message)
	}

	RespondJSON(w, appErr.Status(), body)
}
