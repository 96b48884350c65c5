package domain

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
	ErrIdempotencyRequired = errors.New("idempotency key required")
	ErrIdempotencyConflict = errors.New("idempotency key reused with different payload")
	ErrDuplicateInFlight   = errors.New("duplicate claim still in flight")

	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrPrizeExhausted     = errors.New("prize exhausted")
	ErrPrizeInactive      = errors.New("prize not active")
	ErrReservationClosed  = errors.New("reservation closed")
	ErrAlreadyOverridden  = errors.New("claim already overridden")

	ErrUnsupportedEventType  = errors.New("unsupported event type")
	ErrUnsupportedEventClass = errors.New("unsupported event class")
	ErrSettingsUnavailable   = errors.New("risk settings snapshot unavailable")
)
