package pii

import (
	"errors"
	"fmt"
)

// Common detection errors
var (
	// ErrUnknownType is returned when a pattern is configured for a type outside the fixed set.
	ErrUnknownType = errors.New("unknown PII type")

	// ErrInvalidPattern is returned when a configured pattern does not compile.
	ErrInvalidPattern = errors.New("invalid PII pattern")
)

// DetectionError wraps errors with the operation and the offending PII type.
type DetectionError struct {
	Op      string
	Err     error
	Details string
}

func (e *DetectionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("pii: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("pii: %s failed: %v", e.Op, e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

func (e *DetectionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapDetectionError wraps an error as a DetectionError if it isn't already one.
func WrapDetectionError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var detErr *DetectionError
	if errors.As(err, &detErr) {
		return err
	}

	return &DetectionError{Op: op, Err: err, Details: details}
}
