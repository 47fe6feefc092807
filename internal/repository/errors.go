// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow the registration and webhook
// layers to distinguish between missing rows, unique key races and
// refused state transitions without inspecting driver errors.
package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every "no such row" error below so callers
// can test for absence generically with errors.Is.
var ErrNotFound = errors.New("not found")

var (
	ErrEventNotFound       = fmt.Errorf("event %w", ErrNotFound)
	ErrSpaceTypeNotFound   = fmt.Errorf("space type %w", ErrNotFound)
	ErrStoreNotFound       = fmt.Errorf("store %w", ErrNotFound)
	ErrTicketTypeNotFound  = fmt.Errorf("ticket type %w", ErrNotFound)
	ErrApplicationNotFound = fmt.Errorf("application %w", ErrNotFound)
	ErrTicketNotFound      = fmt.Errorf("ticket %w", ErrNotFound)
	ErrPublicIDNotFound    = fmt.Errorf("public id %w", ErrNotFound)
	ErrPaymentNotFound     = fmt.Errorf("payment %w", ErrNotFound)
	ErrVoucherNotFound     = fmt.Errorf("voucher %w", ErrNotFound)
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
)

// ErrDuplicate is returned when an insert hits a unique key, such as a
// second registration for the same user and event or a public id that
// is already taken.
var ErrDuplicate = errors.New("duplicate")

// ErrInvalidTransition is returned when a caller asks for a payment
// status change that is not an edge of the status graph.
var ErrInvalidTransition = errors.New("invalid status transition")
