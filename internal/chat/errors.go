package chat

import (
	"errors"
	"fmt"
)

// Validation error codes.
const (
	ErrCodeEmptyContent    = "empty_content"
	ErrCodeContentTooLong  = "content_too_long"
	ErrCodeSelfMessage     = "self_message"
	ErrCodeMissingReceiver = "missing_receiver"
)

// ValidationError rejects a send request before anything is persisted.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationError(code, msg string) *ValidationError {
	return &ValidationError{Code: code, Message: msg}
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError marks a persistence-layer failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
