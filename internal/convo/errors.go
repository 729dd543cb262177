package convo

import (
	"fmt"
	"net/http"
)

// DomainError is a failure with a meaning callers can act on, carrying the
// HTTP status and stable code the boundary should serve.
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

func validationError(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func forbiddenError(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func unauthorizedError(message string) *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func unprocessableError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "UNPROCESSABLE", message, nil)
}

func internalError(message string) *DomainError {
	return domainError(http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}
