// Package domain defines the scheduling entities and their invariants.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCardState is returned when a card is observed outside
	// the valid (type, queue) table. This is an unrecoverable defect:
	// callers surface it rather than coercing the card.
	ErrInvalidCardState = errors.New("invalid card state")

	// ErrInvalidGrade is returned when a grade is outside Again..Easy.
	ErrInvalidGrade = errors.New("invalid grade")

	// ErrEmptyConfig is returned when a deck config section that is
	// required for an operation is missing. Empty step lists are the
	// one auto-recovered case: they degrade to a single default step.
	ErrEmptyConfig = errors.New("empty deck configuration")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)
