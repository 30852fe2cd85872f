package app

import (
	"errors"
	"net/http"

	"marginalia/api/internal/apperr"
	"marginalia/api/internal/auth"
)

// mapError translates a service error into the HTTP status and error code.
func mapError(err error) (status int, code, message string, details any) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case apperr.KindValidation:
			return http.StatusBadRequest, "VALIDATION_ERROR", appErr.Message, appErr.Details
		case apperr.KindNotFound:
			return http.StatusNotFound, "NOT_FOUND", appErr.Message, nil
		case apperr.KindForbidden:
			return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
		case apperr.KindRender:
			return http.StatusUnprocessableEntity, "RENDER_FAILED", "Document could not be rendered", nil
		}
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
