// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fileforge/fileforge/internal/auth"
	"github.com/fileforge/fileforge/internal/formats"
	"github.com/fileforge/fileforge/internal/handler/dto"
	"github.com/fileforge/fileforge/internal/service"
)

// NotFound handles 404 responses.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return false
	}
	return true
}

// sessionAccount returns the signed-in account id. RequireSession has
// already rejected anonymous requests, so an empty id is a wiring bug
// surfaced as 401.
func sessionAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID := auth.AccountIDFromContext(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not signed in")
		return "", false
	}
	return accountID, true
}

// handleServiceError maps service errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validation *formats.ValidationError

	switch {
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not signed in")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	case errors.Is(err, service.ErrInvalidCode):
		writeError(w, http.StatusNotFound, "INVALID_CODE", "Invalid or expired merge code")
	case errors.Is(err, service.ErrSelfMerge):
		writeError(w, http.StatusBadRequest, "SELF_MERGE", "Cannot merge an account with itself")
	case errors.Is(err, service.ErrStaleCode):
		writeError(w, http.StatusGone, "STALE_CODE", "The account behind this merge code no longer exists")
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "INVALID_CONVERSION", validation.Message)
	case errors.Is(err, service.ErrInvalidConversion):
		writeError(w, http.StatusBadRequest, "INVALID_CONVERSION", "Invalid conversion")
	case errors.Is(err, service.ErrNoCollision):
		writeError(w, http.StatusBadRequest, "NO_COLLISION", "No linked identity collides with that account")
	case errors.Is(err, service.ErrLastIdentity):
		writeError(w, http.StatusBadRequest, "LAST_IDENTITY", "Cannot unlink the last linked identity")
	case errors.Is(err, service.ErrBadRequest):
		// Bad request causes are written for users.
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.Is(err, service.ErrMergeInProgress):
		writeError(w, http.StatusConflict, "MERGE_IN_PROGRESS", "A merge for this account is already in progress")
	case errors.Is(err, service.ErrMergeTimeout):
		writeError(w, http.StatusGatewayTimeout, "MERGE_TIMEOUT", "Merge did not finish in time; retry to resume it")
	case errors.Is(err, service.ErrLookupFailed):
		logger.Error("lookup failed", "error", err)
		writeError(w, http.StatusBadGateway, "LOOKUP_FAILED", "Account lookup failed")
	case errors.Is(err, service.ErrStorageFailed):
		logger.Error("storage failed", "error", err)
		writeError(w, http.StatusBadGateway, "STORAGE_FAILED", "Storage operation failed")
	default:
		logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
