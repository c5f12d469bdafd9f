// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/spotshare/spotshare/internal/apperror"
	"github.com/spotshare/spotshare/internal/handler/dto"
	"github.com/spotshare/spotshare/internal/middleware"
)

const (
	msgRouteNotFound    = "Could not find this route."
	msgMethodNotAllowed = "Method not allowed."
	msgUnknownError     = "An unknown error occurred!"

	// retryAfterSeconds is advertised on transient failures.
	retryAfterSeconds = "1"
)

// NotFound handles unmatched routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, string(apperror.KindNotFound), msgRouteNotFound)
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", msgMethodNotAllowed)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Message: message, Code: code})
}

// handleServiceError maps a service error to its HTTP response. Only
// server-side failures are logged at error level; client errors were already
// logged by the request logger.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := apperror.KindOf(err)
	status := kind.HTTPStatus()

	if kind == apperror.KindTransient {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("endpoint", r.Method+" "+r.URL.Path),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}

	writeError(w, status, string(kind), apperror.MessageOf(err, msgUnknownError))
}
