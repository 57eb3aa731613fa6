package app

import (
	"errors"
	"fmt"

	"medexplain/pkg/extract"
)

var (
	// ErrUnsupportedType is the extractor's sentinel so either can be
	// matched with errors.Is.
	ErrUnsupportedType = extract.ErrUnsupportedType

	ErrExtractionEmpty    = errors.New("could not extract text from file")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("user already exists with this email")
	ErrNoContent          = errors.New("report has no content to process")
	ErrProcessingFailed   = errors.New("failed to process report")
	ErrValidation         = errors.New("validation failed")
)

// ValidationError carries a client-facing message and matches ErrValidation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
