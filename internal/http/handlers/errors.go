// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable details.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, not_found) mirror common HTTP status
//     semantics to aid interoperability.
//   - Domain-specific codes (e.g., report_locked, report_not_ready) are reserved
//     for business logic errors that cannot be conveyed by status alone.
//   - The report gate intentionally answers unknown bookings and wrong PINs
//     with the same code/detail pair so booking ids cannot be enumerated.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeUnknownTest       = "unknown_test"
	ErrCodeInvalidSchedule   = "invalid_schedule"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeReportLocked      = "report_locked"
	ErrCodeReportNotReady    = "report_not_ready"
	ErrCodeChatFailed        = "chat_failed"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)
