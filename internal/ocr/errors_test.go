package ocr

import (
	"context"
	"errors"
	"testing"
)

func TestAtPage(t *testing.T) {
	engineErr := NewOCRError("Recognize", ErrQuotaExceeded, "Vision API quota exceeded")

	err := atPage("Extract", engineErr, "lease.pdf", 2)
	want := "ocr: Recognize lease.pdf page 2: Vision API quota exceeded: OCR API quota exceeded"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if engineErr.Document != "" {
		t.Error("atPage modified the engine's error")
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Error("attributed error no longer matches ErrQuotaExceeded")
	}

	// The first attribution wins.
	if again := atPage("Extract", err, "other.pdf", 0); again != err {
		t.Errorf("atPage() re-attributed an error: %v", again)
	}
}

func TestAtPagePlainError(t *testing.T) {
	err := atPage("Extract", context.DeadlineExceeded, "scan.png", 0)

	var ocrErr *OCRError
	if !errors.As(err, &ocrErr) {
		t.Fatalf("atPage() = %T, want *OCRError", err)
	}
	if ocrErr.Op != "Extract" || ocrErr.Document != "scan.png" {
		t.Errorf("atPage() = %+v", ocrErr)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("attributed error no longer matches context.DeadlineExceeded")
	}
	if atPage("Extract", nil, "scan.png", 0) != nil {
		t.Error("atPage(nil) should be nil")
	}
}

func TestWrapOCRErrorKeepsExisting(t *testing.T) {
	inner := NewOCRError("Recognize", ErrOCRFailed, "")
	if got := WrapOCRError("Extract", inner, "ignored"); got != inner {
		t.Errorf("WrapOCRError() = %v, want the original error", got)
	}
	if WrapOCRError("Extract", nil, "") != nil {
		t.Error("WrapOCRError(nil) should be nil")
	}
}
