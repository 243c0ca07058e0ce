// Package apperrors defines the error taxonomy shared by every operation
// boundary. Adapters translate backend-native failures into these sentinels;
// handlers translate them into wire codes and HTTP statuses.
package apperrors

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated     = errors.New("authentication required")
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrIntegrationInactive = errors.New("integration is disconnected")
	ErrRateLimited         = errors.New("rate limit exceeded, try again shortly")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrConfiguration       = errors.New("integration configuration is incomplete")
	ErrConnectionFailed    = errors.New("could not connect to provider")
	ErrQueryFailed         = errors.New("provider rejected the operation")
	ErrUnauthorized        = errors.New("elevated credentials required for this operation")
	ErrNotSupported        = errors.New("operation is not supported by this provider")
	ErrInvalidState        = errors.New("oauth state verification failed")
)

// Code returns the stable wire code for err, or "internal_error" when the
// error is not part of the taxonomy.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrIntegrationNotFound):
		return "integration_not_found"
	case errors.Is(err, ErrIntegrationInactive):
		return "integration_inactive"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrConnectionFailed):
		return "connection_failed"
	case errors.Is(err, ErrQueryFailed):
		return "query_error"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotSupported):
		return "not_supported"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	default:
		return "internal_error"
	}
}

// Status maps err to the HTTP status used by the boundary.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrIntegrationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrIntegrationInactive),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrConnectionFailed),
		errors.Is(err, ErrQueryFailed),
		errors.Is(err, ErrNotSupported),
		errors.Is(err, ErrInvalidState):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
