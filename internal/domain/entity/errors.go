package entity

import (
	"errors"
	"fmt"
)

// ExtractionReason classifies a text extraction failure
type ExtractionReason string

const (
	ExtractionUnsupportedFormat ExtractionReason = "UNSUPPORTED_FORMAT"
	ExtractionEngineError       ExtractionReason = "ENGINE_ERROR"
	ExtractionEmptyOutput       ExtractionReason = "EMPTY_OUTPUT"
)

// ExtractionFailure is returned when no usable text could be extracted
type ExtractionFailure struct {
	Reason ExtractionReason
	Err    error
}

func (e *ExtractionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("text extraction failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("text extraction failed (%s)", e.Reason)
}

func (e *ExtractionFailure) Unwrap() error {
	return e.Err
}

// StructuringReason classifies a structured extraction failure
type StructuringReason string

const (
	StructuringSchemaMismatch StructuringReason = "SCHEMA_MISMATCH"
	StructuringLowConfidence  StructuringReason = "LOW_CONFIDENCE"
	StructuringEngineError    StructuringReason = "ENGINE_ERROR"
)

// StructuringFailure is returned when no acceptable claim record was produced.
// Attempts is the number of capability invocations made, retries included.
type StructuringFailure struct {
	Reason   StructuringReason
	Attempts int
	Err      error
}

func (e *StructuringFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("structured extraction failed (%s) after %d attempt(s): %v", e.Reason, e.Attempts, e.Err)
	}
	return fmt.Sprintf("structured extraction failed (%s) after %d attempt(s)", e.Reason, e.Attempts)
}

func (e *StructuringFailure) Unwrap() error {
	return e.Err
}

// SettlementFailure wraps an error returned by the payment collaborator
type SettlementFailure struct {
	Err error
}

func (e *SettlementFailure) Error() string {
	return fmt.Sprintf("settlement failed: %v", e.Err)
}

func (e *SettlementFailure) Unwrap() error {
	return e.Err
}

// ConfigurationError is a fatal startup error naming the offending option
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Option, e.Reason)
}

// NewConfigurationError creates a ConfigurationError with a formatted reason
func NewConfigurationError(option, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{
		Option: option,
		Reason: fmt.Sprintf(format, args...),
	}
}

// IsConfigurationError reports whether err wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
