package dispatch

import (
	"net/http"

	"github.com/mediora-tech/mediora/core/envelope"
)

// apiError is a terminal per-request failure. Every failure category is
// caught at the dispatcher boundary and rendered as an envelope; nothing
// escapes to the transport layer unformatted. Message is always safe to
// show; details only exist for validation failures.
type apiError struct {
	status  int
	message string
	details []envelope.Detail
}

func (e *apiError) Error() string {
	return e.message
}

func errRouteNotFound() *apiError {
	return &apiError{status: http.StatusNotFound, message: "no such route"}
}

func errUnauthorized() *apiError {
	return &apiError{status: http.StatusUnauthorized, message: "Unauthorized"}
}

func errForbidden() *apiError {
	return &apiError{status: http.StatusForbidden, message: "Forbidden"}
}

func errInvalidIdentifier() *apiError {
	return &apiError{status: http.StatusBadRequest, message: "invalid identifier"}
}

func errMissingIdentifier(route string) *apiError {
	return &apiError{status: http.StatusBadRequest, message: "missing identifier for " + route}
}

func errUnexpectedIdentifier(route string) *apiError {
	return &apiError{status: http.StatusBadRequest, message: "unexpected identifier for " + route}
}

func errBadParameter(key, reason string) *apiError {
	return &apiError{status: http.StatusBadRequest, message: "parameter '" + key + "': " + reason}
}

func errValidation(details []envelope.Detail) *apiError {
	return &apiError{status: http.StatusBadRequest, message: "validation failed", details: details}
}

func errResourceNotFound(route string) *apiError {
	return &apiError{status: http.StatusNotFound, message: "no such " + route}
}

func errIntegrity(e *IntegrityError) *apiError {
	message := "conflicting data"
	switch e.Kind {
	case IntegrityDuplicate:
		message = "duplicate value for a unique field"
	case IntegrityReference:
		message = "related record not found"
	}
	return &apiError{status: http.StatusUnprocessableEntity, message: message}
}

func errInternal() *apiError {
	return &apiError{status: http.StatusInternalServerError, message: "internal server error"}
}
