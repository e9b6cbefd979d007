package intake

import "errors"

var (
	// ErrInvalidAmount is returned when an intake amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be a positive number of millilitres")

	// ErrInvalidGoal is returned when a daily goal is zero or negative.
	ErrInvalidGoal = errors.New("daily goal must be a positive number of millilitres")

	// ErrClockUnavailable is returned when the clock cannot provide the current time.
	ErrClockUnavailable = errors.New("clock unavailable")
)
