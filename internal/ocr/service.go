// Package ocr localizes text on page rasters.
//
// Every engine returns, per page, an ordered list of text regions. A region is a
// quadrilateral in page pixel coordinates, the recognized text and the engine's
// confidence in [0,1]. Downstream detection treats this output as a black box.
//
// Engines:
//   - VisionEngine: Google Cloud Vision DOCUMENT_TEXT_DETECTION, one region per text line
//   - DocumentAIEngine: Google Document AI OCR processor, one region per layout line
//   - CachedEngine: Redis-backed result cache in front of any other engine
//
// Google credentials are read from GOOGLE_CREDENTIALS (inline JSON) or
// GOOGLE_APPLICATION_CREDENTIALS (file path), falling back to application default
// credentials.
//
// The Tesseract engine needs cgo and lives in ocr/tesseract. Nothing in this
// package may import it.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"
)

// MaxImageSizeBytes is the maximum encoded page size accepted by the remote engines (20MB).
const MaxImageSizeBytes = 20 * 1024 * 1024

// Input is one page handed to an engine.
type Input struct {
	// ID identifies the source document (used for logging and cache keys).
	ID string

	// Image holds the encoded page raster.
	Image []byte

	// Format is the encoding of Image ("png").
	Format string

	// PageIndex is the zero-based page index within the document.
	PageIndex int

	Width  int
	Height int

	// Languages are recognition hints, e.g. "vi", "en".
	Languages []string
}

// TextRegion is one recognized span of text on a page.
type TextRegion struct {
	// Quad is the ordered quadrilateral (top-left, top-right, bottom-right, bottom-left).
	Quad []image.Point `json:"quad"`

	Text string `json:"text"`

	// Confidence is the recognizer's certainty in Text, 0.0 to 1.0.
	Confidence float64 `json:"confidence"`
}

// PageResult is the OCR output for one page.
type PageResult struct {
	Page    int          `json:"page"`
	Width   int          `json:"width"`
	Height  int          `json:"height"`
	Regions []TextRegion `json:"regions"`
}

// Engine recognizes text regions on a single page.
type Engine interface {
	// Name identifies the engine in logs and cache keys.
	Name() string

	// Recognize returns the text regions of one page, in reading order.
	Recognize(ctx context.Context, in Input) (*PageResult, error)
}

// Result contains the OCR output of a whole document with metadata.
type Result struct {
	// Pages holds one entry per input page, in page order.
	Pages []PageResult `json:"pages"`

	// PageCount is the number of pages that were processed.
	PageCount int `json:"page_count"`

	// RegionCount is the total number of text regions across all pages.
	RegionCount int `json:"region_count"`

	// Confidence is the average region confidence across the document (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	Engine string `json:"engine"`

	// ProcessedAt is the timestamp when the OCR processing completed.
	ProcessedAt time.Time `json:"processed_at"`

	// ProcessingDuration is how long the OCR processing took.
	ProcessingDuration time.Duration `json:"processing_duration"`
}

// NewInput encodes a page raster as PNG for submission to an engine.
func NewInput(id string, page int, img image.Image, languages []string) (Input, error) {
	const op = "NewInput"

	if img == nil {
		return Input{}, atPage(op, ErrInvalidImage, id, page)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Input{}, atPage(op, NewOCRError(op, ErrInvalidImage, err.Error()), id, page)
	}
	if buf.Len() > MaxImageSizeBytes {
		return Input{}, atPage(op, NewOCRError(op, ErrImageTooLarge, fmt.Sprintf("%d bytes", buf.Len())), id, page)
	}

	bounds := img.Bounds()
	return Input{
		ID:        id,
		Image:     buf.Bytes(),
		Format:    "png",
		PageIndex: page,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Languages: languages,
	}, nil
}

// Extract runs engine over every page of a document, in page order.
// The first page that fails aborts the document.
func Extract(ctx context.Context, engine Engine, id string, pages []image.Image, languages []string) (*Result, error) {
	const op = "Extract"
	startTime := time.Now()

	result := &Result{
		Pages:  make([]PageResult, 0, len(pages)),
		Engine: engine.Name(),
	}

	var confidenceSum float64
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, WrapOCRError(op, ErrContextCanceled, err.Error())
		}

		in, err := NewInput(id, i, page, languages)
		if err != nil {
			return nil, err
		}

		pageResult, err := engine.Recognize(ctx, in)
		if err != nil {
			return nil, atPage(op, err, id, i)
		}

		// Engines see one page at a time; the page index is ours to assign.
		pageResult.Page = i
		if pageResult.Width == 0 && pageResult.Height == 0 {
			pageResult.Width, pageResult.Height = in.Width, in.Height
		}

		for _, region := range pageResult.Regions {
			confidenceSum += region.Confidence
		}
		result.RegionCount += len(pageResult.Regions)
		result.Pages = append(result.Pages, *pageResult)
	}

	result.PageCount = len(result.Pages)
	if result.RegionCount > 0 {
		result.Confidence = confidenceSum / float64(result.RegionCount)
	}
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	return result, nil
}

// QuadFromRect returns the clockwise quadrilateral of an axis-aligned rectangle.
func QuadFromRect(r image.Rectangle) []image.Point {
	return []image.Point{
		{X: r.Min.X, Y: r.Min.Y},
		{X: r.Max.X, Y: r.Min.Y},
		{X: r.Max.X, Y: r.Max.Y},
		{X: r.Min.X, Y: r.Max.Y},
	}
}

// extent returns the smallest rectangle containing every point.
func extent(points []image.Point) image.Rectangle {
	r := image.Rectangle{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		if p.X < r.Min.X {
			r.Min.X = p.X
		}
		if p.Y < r.Min.Y {
			r.Min.Y = p.Y
		}
		if p.X > r.Max.X {
			r.Max.X = p.X
		}
		if p.Y > r.Max.Y {
			r.Max.Y = p.Y
		}
	}
	return r
}
