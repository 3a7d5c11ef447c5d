package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"intake/api/internal/auth"
	"intake/api/internal/authpw"
	"intake/api/internal/blob"
	"intake/api/internal/export"
	"intake/api/internal/history"
	"intake/api/internal/session"
	"intake/api/internal/workflow"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func badRequest(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

func forbiddenError() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var wfErr *workflow.Error
	if errors.As(err, &wfErr) {
		switch wfErr.Kind {
		case workflow.KindNotFound:
			return http.StatusNotFound, "NOT_FOUND", "Not found", nil
		case workflow.KindForbidden:
			return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
		case workflow.KindInvalidTransition:
			return http.StatusConflict, "INVALID_TRANSITION", wfErr.Error(), map[string]any{
				"current":   wfErr.Current,
				"requested": wfErr.Requested,
			}
		case workflow.KindInvalidDecision:
			return http.StatusUnprocessableEntity, "INVALID_DECISION", wfErr.Error(), nil
		case workflow.KindEditNotAllowed:
			return http.StatusConflict, "EDIT_NOT_ALLOWED", wfErr.Error(), map[string]any{
				"condition": wfErr.Condition,
			}
		case workflow.KindConflict:
			return http.StatusConflict, "CONFLICT", "Request status changed, reload and retry", nil
		case workflow.KindStorage:
			return http.StatusInternalServerError, "STORAGE_ERROR", "Storage error", nil
		}
	}

	var authValidation *authpw.ValidationError
	var blobValidation *blob.ValidationError
	switch {
	case errors.As(err, &authValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR", authValidation.Message, nil
	case errors.As(err, &blobValidation):
		return http.StatusBadRequest, "INVALID_UPLOAD", blobValidation.Message, nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Refresh session expired", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusNotImplemented, "PDF_UNAVAILABLE", "PDF export requires Chrome or Chromium", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Unsupported export format", nil
	case errors.Is(err, blob.ErrNotFound), errors.Is(err, history.ErrNoHistory):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func unavailable(code, message string) *DomainError {
	return domainError(http.StatusServiceUnavailable, code, message, nil)
}
