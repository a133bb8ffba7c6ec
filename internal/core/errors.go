package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrChatNotFound       = errors.New("chat not found")
	ErrEmptyHistory       = errors.New("no messages found, expected at least system message")
	ErrProvider           = errors.New("completion provider failed")
	ErrProviderTimeout    = errors.New("completion provider timed out")
	ErrStorage            = errors.New("storage failure")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("username or email already registered")
)

// AttachmentReadError reports an uploaded file that could not be read in full.
// Its message is safe to return to the uploader.
type AttachmentReadError struct {
	Err error
}

func (e *AttachmentReadError) Error() string {
	return fmt.Sprintf("Failed to process file: %v", e.Err)
}

func (e *AttachmentReadError) Unwrap() error { return e.Err }

// ValidationError carries a client-facing description of invalid input.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
