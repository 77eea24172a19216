package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound reports a missing configuration file.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML reports a file that failed to parse.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed wraps every validation failure so callers can
	// match the class without knowing the section.
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrInvalidValue reports a field holding a value outside its range.
	ErrInvalidValue = errors.New("invalid field value")
)

// ValidationError pins a validation failure to its section and field.
type ValidationError struct {
	Section string
	Field   string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: field '%s': %v", e.Section, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError builds a ValidationError for one field.
func NewValidationError(section, field string, err error) *ValidationError {
	return &ValidationError{Section: section, Field: field, Err: err}
}

// LoadError pins a load failure to the file it came from.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError builds a LoadError for one file.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}
