package model

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrRecordNotFound    = errors.New("delivery record not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrDuplicateRecord   = errors.New("delivery record already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid delivery status")
)

// ValidationError is returned for malformed input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type TransitionError struct {
	MessageID string
	From      Status
	To        Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for message %s: %s -> %s", e.MessageID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
