package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
)

// respondError maps domain errors onto HTTP status codes and writes a JSON
// error body. Unrecognized errors are logged and reported as 500 without
// leaking their message.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, apperrors.ErrValidation):
		status, code = http.StatusBadRequest, "validation_failed"
	case errors.Is(err, apperrors.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperrors.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrSecurityRejection):
		status, code = http.StatusForbidden, "query_rejected"
	case errors.Is(err, apperrors.ErrDependencyFailure):
		status, code = http.StatusBadGateway, "dependency_failure"
	default:
		logger.Error("Request failed", zap.Error(err))
		if writeErr := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal server error"); writeErr != nil {
			logger.Error("Failed to write error response", zap.Error(writeErr))
		}
		return
	}

	if writeErr := ErrorResponse(w, status, code, err.Error()); writeErr != nil {
		logger.Error("Failed to write error response", zap.Error(writeErr))
	}
}
