package domain

import "errors"

// Error taxonomy. Handlers map these onto HTTP statuses; the scheduler and
// service never let them escape as panics.
var (
	// ErrValidation covers records rejected before they reach the store or
	// the schedule engine (missing channel, bad date, too few options).
	ErrValidation = errors.New("validation failed")

	// ErrPastSchedule is a one-shot schedule whose instant is already at or
	// before now in the reference timezone.
	ErrPastSchedule = errors.New("scheduled time is in the past")

	// ErrNotFound is a lookup for a record that is not in the store.
	ErrNotFound = errors.New("scheduled message not found")

	// ErrInvalidOption is a vote on an out-of-range option index or on a
	// poll whose record cannot be found. No state is mutated.
	ErrInvalidOption = errors.New("invalid poll option")

	// ErrDelivery is a rejected send or update from the chat platform.
	ErrDelivery = errors.New("delivery failed")
)
