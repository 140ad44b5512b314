package domain

import "errors"

// Error taxonomy for the command surface. Handlers match these with errors.Is;
// services wrap them with fmt.Errorf("%w: ...") to add context.
var (
	// ErrValidation - malformed input, fixed at the call site, never retried
	ErrValidation = errors.New("validation error")
	// ErrCapacity - tier or group limit reached
	ErrCapacity = errors.New("capacity limit reached")
	// ErrState - illegal transition, indicates a stale client view
	ErrState = errors.New("invalid state transition")
	// ErrConcurrency - lock not acquired after bounded retries, safe to retry later
	ErrConcurrency = errors.New("concurrent operation conflict")
	// ErrInsufficientFunds - default shortfall exceeds the locked deposit
	ErrInsufficientFunds = errors.New("insufficient locked deposit")

	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Lock errors
var (
	ErrLockDenied = errors.New("lock already held")
	ErrNotHolder  = errors.New("lock not held by caller")
)

// Auth errors
var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrTokenRevoked       = errors.New("token revoked")
)
