package ocr

import (
	"errors"
	"fmt"
)

var (
	// ErrImageTooLarge: the encoded page exceeds MaxImageSizeBytes. Vision and
	// Document AI both reject inline content above 20MB.
	ErrImageTooLarge = errors.New("page image exceeds the 20MB request limit")

	// ErrInvalidImage: the page raster could not be encoded, or the engine could not read it.
	ErrInvalidImage = errors.New("page image is invalid")

	// ErrOCRFailed: the engine returned an error or no usable response for a page.
	ErrOCRFailed = errors.New("text recognition failed")

	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS")

	// ErrInvalidConfiguration: an engine or the result cache is missing or has invalid settings.
	ErrInvalidConfiguration = errors.New("invalid OCR engine configuration")

	ErrQuotaExceeded = errors.New("OCR API quota exceeded")

	// ErrContextCanceled: the run was canceled or timed out between or during pages.
	ErrContextCanceled = errors.New("OCR canceled")
)

// OCRError records which operation failed and, once known, on which page of
// which document.
type OCRError struct {
	Op string

	// Document is the document ID; empty until the failure is attributed to a page.
	Document string

	// Page is the zero-based page index. Only meaningful when Document is set.
	Page int

	Err     error
	Details string
}

func (e *OCRError) Error() string {
	msg := "ocr: " + e.Op
	if e.Document != "" {
		msg += fmt.Sprintf(" %s page %d", e.Document, e.Page)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %v", msg, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *OCRError) Unwrap() error {
	return e.Err
}

func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates an OCRError not yet tied to a page.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps err as an OCRError. Errors that already are one pass through unchanged.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return NewOCRError(op, err, details)
}

// atPage attributes err to a page of a document. An OCRError that has no page
// yet is copied with the page filled in; any other error is wrapped under op.
func atPage(op string, err error, document string, page int) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		if ocrErr.Document != "" {
			return err
		}
		attributed := *ocrErr
		attributed.Document = document
		attributed.Page = page
		return &attributed
	}

	return &OCRError{Op: op, Document: document, Page: page, Err: err}
}
