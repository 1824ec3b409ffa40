package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrValidation        = errors.New("validation failed")
)

// TransitionError reports a command whose status precondition does not hold.
// The message carries the literal status, e.g. "Cannot edit session in state PAUSED".
type TransitionError struct {
	Op     string
	Status SessionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("Cannot %s session in state %s", e.Op, e.Status)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
