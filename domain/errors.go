package domain

import (
	"errors"
	"fmt"
)

var (
	ErrReservationNotFound   = errors.New("reservation not found")
	ErrAccommodationNotFound = errors.New("accommodation not found")
	ErrAlreadyCancelled      = errors.New("reservation is already cancelled")
	ErrNotReservationGuest   = errors.New("only the reservation's guest can do this")
	ErrSignatureMismatch     = errors.New("signature verification failed")

	// ErrRefundInitiationFailed marks the split outcome where the stay was
	// cancelled but the gateway rejected the refund request. The cancellation
	// stands either way.
	ErrRefundInitiationFailed = errors.New("reservation cancelled but refund initiation failed")
)

// ValidationError carries a user visible message for a rejected payload.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// PersistAfterOrderError reports that a gateway order was opened but the
// reservation row could not be written. The caller must not blindly retry
// the whole flow or the guest gets charged twice; the order id identifies
// what is already out there.
type PersistAfterOrderError struct {
	OrderID string
	Err     error
}

func (e *PersistAfterOrderError) Error() string {
	return fmt.Sprintf("order %s created but reservation could not be persisted: %v", e.OrderID, e.Err)
}

func (e *PersistAfterOrderError) Unwrap() error {
	return e.Err
}
