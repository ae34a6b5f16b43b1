package ledger

import (
	"errors"
	"fmt"
)

// Common ledger errors
var (
	// ErrMissingFilename is returned when a document record has no filename.
	ErrMissingFilename = errors.New("document record missing filename")

	// ErrDuplicateDocument is returned when a filename is registered twice.
	ErrDuplicateDocument = errors.New("document already registered")

	// ErrDocumentNotFound is returned when attaching results to an unregistered filename.
	ErrDocumentNotFound = errors.New("document not found in ledger")

	// ErrCorruptLedger is returned when an existing metadata file cannot be parsed.
	ErrCorruptLedger = errors.New("metadata file is corrupt")

	// ErrWriteFailed is returned when the metadata file cannot be written.
	ErrWriteFailed = errors.New("failed to write metadata file")
)

// LedgerError wraps errors with the ledger operation and target.
type LedgerError struct {
	Op     string
	Target string
	Err    error
}

func (e *LedgerError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("ledger: %s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func (e *LedgerError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newLedgerError(op, target string, err error) error {
	return &LedgerError{Op: op, Target: target, Err: err}
}
