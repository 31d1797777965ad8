package app

import (
	"fmt"
	"net/http"
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

// Canonical failures. Private chats present as NOT_FOUND to unauthorized
// actors so their existence does not leak; errForbidden is reserved for
// resources the actor is allowed to know about.
func errNotFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func errForbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func errUnauthenticated() *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHENTICATED", "Unauthorized", nil)
}

func errConflict(message string) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", message, nil)
}

func errExpired(message string) *DomainError {
	return domainError(http.StatusGone, "EXPIRED", message, nil)
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func errUpstream(message string) *DomainError {
	return domainError(http.StatusBadGateway, "UPSTREAM_FAILURE", message, nil)
}
