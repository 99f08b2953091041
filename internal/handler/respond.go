package handler

import (
	"encoding/json"
	"net/http"

	"pollstream/internal/middleware"
	"pollstream/pkg/errors"
	"pollstream/pkg/logger"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError maps any error to the standard envelope; unexpected errors
// are wrapped as internal so their detail stays in the logs
func respondError(w http.ResponseWriter, err error, log *logger.Logger) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		appErr = errors.NewInternalError("something went wrong", err)
	}
	middleware.WriteError(w, appErr, log)
}
