package types

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a conversation or persona does not exist
type NotFoundError struct {
	Kind string // "conversation" or "persona"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ValidationError is returned when input is rejected before any state changes
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// GenerationFailedError wraps a generative backend failure. The rapport
// update for the triggering message has already been committed.
type GenerationFailedError struct {
	ConversationID string
	Err            error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("generation failed for conversation %s: %v", e.ConversationID, e.Err)
}

func (e *GenerationFailedError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is or wraps a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsGenerationFailed reports whether err is or wraps a GenerationFailedError
func IsGenerationFailed(err error) bool {
	var ge *GenerationFailedError
	return errors.As(err, &ge)
}
