// Package compose contains pure functions over compose stack definitions.
// This is part of the Functional Core - all functions are pure with no I/O.
package compose

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input validation errors
	ErrEmptyInput    = errors.New("compose document is empty")
	ErrEmptyBaseName = errors.New("image base name is empty")
	ErrInvalidTag    = errors.New("invalid image tag")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Compose structure errors
	ErrNoServices = errors.New("compose document must define at least one service")

	// Patch errors
	ErrPatchBrokeDocument = errors.New("patched document no longer parses")
)

// ParseError wraps errors with context about where parsing failed.
type ParseError struct {
	Field   string // e.g., "services.web.image"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// PatchError reports a rewrite that could not be applied.
type PatchError struct {
	Base    string
	Tag     string
	Message string
	Err     error
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("patch %s:%s: %s", e.Base, e.Tag, e.Message)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}

// NewPatchError creates a new PatchError.
func NewPatchError(base, tag, message string, err error) *PatchError {
	return &PatchError{
		Base:    base,
		Tag:     tag,
		Message: message,
		Err:     err,
	}
}
