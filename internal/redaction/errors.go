package redaction

import (
	"errors"
	"fmt"
)

// Common redaction errors
var (
	// ErrDegenerateRegion is returned when a finding's region is not a quadrilateral.
	ErrDegenerateRegion = errors.New("degenerate finding region")

	// ErrBoxOutOfRange is returned when a padded box does not intersect the page.
	ErrBoxOutOfRange = errors.New("redaction box outside page bounds")

	// ErrSourceUnreadable is returned when the source document cannot be read or rasterized.
	ErrSourceUnreadable = errors.New("source document unreadable")

	// ErrNoPages is returned when a source yields no pages.
	ErrNoPages = errors.New("document has no pages")

	// ErrNoPagesWritten is returned when every page write of a document failed.
	ErrNoPagesWritten = errors.New("no redacted page could be written")
)

// RedactionError wraps errors with the operation and the document involved.
type RedactionError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *RedactionError) Error() string {
	msg := fmt.Sprintf("redaction: %s %s failed", e.Op, e.File)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *RedactionError) Unwrap() error {
	return e.Err
}

func (e *RedactionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapRedactionError wraps an error as a RedactionError if it isn't already one.
func WrapRedactionError(op, file string, err error, details string) error {
	if err == nil {
		return nil
	}

	var redErr *RedactionError
	if errors.As(err, &redErr) {
		return err
	}

	return &RedactionError{Op: op, File: file, Err: err, Details: details}
}
