// Package services defines the business logic for the catalog, promo engine,
// booking ledger, conversation state machine, and report access gate. This
// file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer. In particular, handlers must surface
// ErrBookingNotFound and ErrInvalidPin identically so the PIN gate does not
// reveal whether a booking id is valid.
package services

import "errors"

// Booking-related errors.
var (
	// ErrUnknownTest is returned when a booking references a test code that
	// does not exist in the catalog.
	ErrUnknownTest = errors.New("unknown test code")

	// ErrInvalidSchedule is returned when a booking's scheduled time is not
	// strictly in the future.
	ErrInvalidSchedule = errors.New("scheduled time must be in the future")

	// ErrInvalidTransition is returned when a booking status change violates
	// the forward-only transition rules.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrBookingNotFound indicates that the requested booking does not exist.
	ErrBookingNotFound = errors.New("booking not found")
)

// Report access gate errors.
var (
	// ErrInvalidPin is returned when the supplied PIN does not match the
	// booking's PIN.
	ErrInvalidPin = errors.New("invalid pin")

	// ErrLocked is returned while the booking's lockout window is active,
	// regardless of PIN correctness.
	ErrLocked = errors.New("report access locked")

	// ErrReportNotReady is returned when the booking exists and the PIN
	// matches but no report document is available yet.
	ErrReportNotReady = errors.New("report not ready")
)

// Conversation-related errors.
var (
	// ErrEmptyMessage is returned when an inbound chat message is empty after
	// trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when an inbound chat message exceeds the
	// configured length limit.
	ErrMessageTooLong = errors.New("message too long")
)
