package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict: resource already exists")
	ErrInternal     = errors.New("internal server error")
)

// Activation gate and entitlement errors. These are user-facing: handlers map
// them to reason-coded responses, never to a generic failure.
var (
	ErrNoActiveSubscription = errors.New("seller has no active subscription")
	ErrQuotaExceeded        = errors.New("subscription listing quota exceeded")
	ErrTierCapacityExceeded = errors.New("tier per-seller capacity exceeded")
	ErrPromotionSlotFull    = errors.New("promotion slot has no free capacity")
	ErrInvalidTransition    = errors.New("illegal listing status transition")
	ErrPaymentNotCompleted  = errors.New("linked payment transaction is not completed")
	ErrListingNotActive     = errors.New("listing is not active")
)

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
