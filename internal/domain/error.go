package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthenticated = errors.New("missing or invalid credentials")
	ErrForbidden       = errors.New("subscription does not belong to requester")
	ErrAlreadyActive   = errors.New("subscription is already active")
	ErrConflict        = errors.New("state changed concurrently")
	ErrLockBusy        = errors.New("another operation is in progress for this resource")

	// Gateway errors
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayTimeout     = errors.New("payment gateway timeout")
	ErrGatewayRejected    = errors.New("payment gateway rejected request")

	// Storage errors
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")
)

// GatewayError carries the gateway-side detail of a failed call.
// Err is one of ErrGatewayUnavailable, ErrGatewayTimeout or ErrGatewayRejected.
type GatewayError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayError reports whether err came from the payment gateway adapter.
func IsGatewayError(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) ||
		errors.Is(err, ErrGatewayTimeout) ||
		errors.Is(err, ErrGatewayRejected)
}
