package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"docredact/internal/logger"
)

// DocumentAIConfig configures the Document AI OCR processor.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
	RateLimit        float64
}

// DocumentAIEngine implements Engine using a Google Document AI OCR processor.
type DocumentAIEngine struct {
	client  *documentai.DocumentProcessorClient
	config  DocumentAIConfig
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewDocumentAIEngine creates an engine with credentials from environment.
// Expects: GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS
func NewDocumentAIEngine(ctx context.Context, config DocumentAIConfig) (*DocumentAIEngine, error) {
	const op = "NewDocumentAIEngine"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "project ID and processor ID are required")
	}
	if config.Location == "" {
		config.Location = "us" // Default location
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	var clientOptions []option.ClientOption

	// Regional endpoint for anything but the multi-region default
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	credentials := googleCredentialOptions()
	clientOptions = append(clientOptions, credentials...)

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(credentials) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return NewDocumentAIEngineWithClient(config, client), nil
}

// NewDocumentAIEngineWithClient creates an engine with explicit config and client.
func NewDocumentAIEngineWithClient(config DocumentAIConfig, client *documentai.DocumentProcessorClient) *DocumentAIEngine {
	return &DocumentAIEngine{
		client:  client,
		config:  config,
		limiter: newLimiter(config.RateLimit),
		log:     logger.WithComponent("ocr-documentai"),
	}
}

// Name implements Engine.
func (d *DocumentAIEngine) Name() string { return "documentai" }

// Recognize implements Engine.
func (d *DocumentAIEngine) Recognize(ctx context.Context, in Input) (*PageResult, error) {
	const op = "Recognize"

	if len(in.Image) > MaxImageSizeBytes {
		return nil, atPage(op, NewOCRError(op, ErrImageTooLarge, fmt.Sprintf("%d bytes", len(in.Image))), in.ID, in.PageIndex)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, WrapOCRError(op, ErrContextCanceled, err.Error())
	}

	processCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: d.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  in.Image,
				MimeType: "image/" + in.Format,
			},
		},
	}

	resp, err := d.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, d.handleProcessingError(op, err)
	}
	if resp.Document == nil {
		return nil, WrapOCRError(op, ErrOCRFailed, "no document in response")
	}

	result := &PageResult{
		Page:    in.PageIndex,
		Width:   in.Width,
		Height:  in.Height,
		Regions: documentLines(resp.Document, in.Width, in.Height),
	}

	d.log.Debug().
		Str("document", in.ID).
		Int("page", in.PageIndex).
		Int("regions", len(result.Regions)).
		Msg("Document AI page recognized")

	return result, nil
}

// processorName constructs the full processor name for Document AI API.
func (d *DocumentAIEngine) processorName() string {
	if d.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			d.config.ProjectID, d.config.Location, d.config.ProcessorID, d.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		d.config.ProjectID, d.config.Location, d.config.ProcessorID)
}

// handleProcessingError converts Document AI errors to OCR errors.
func (d *DocumentAIEngine) handleProcessingError(op string, err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return WrapOCRError(op, ErrMissingCredentials, "insufficient permissions for Document AI")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") || strings.Contains(errStr, "RESOURCE_EXHAUSTED"):
		return WrapOCRError(op, ErrQuotaExceeded, "Document AI API quota exceeded")
	case strings.Contains(errStr, "NOT_FOUND"):
		return WrapOCRError(op, ErrInvalidConfiguration, fmt.Sprintf("processor not found: %s", d.config.ProcessorID))
	case strings.Contains(errStr, "INVALID_ARGUMENT"):
		return WrapOCRError(op, ErrInvalidImage, "image format not supported or corrupted")
	case strings.Contains(errStr, "DeadlineExceeded") || strings.Contains(errStr, "context deadline exceeded"):
		return WrapOCRError(op, context.DeadlineExceeded, "processing timeout")
	case strings.Contains(errStr, "Canceled") || strings.Contains(errStr, "context canceled"):
		return WrapOCRError(op, ErrContextCanceled, "processing canceled")
	default:
		return WrapOCRError(op, ErrOCRFailed, errStr)
	}
}

// Close closes the underlying Document AI client.
func (d *DocumentAIEngine) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

// documentLines converts the processor's line layouts into regions.
// Only the first page is read; every request carries a single image.
func documentLines(doc *documentaipb.Document, width, height int) []TextRegion {
	if len(doc.GetPages()) == 0 {
		return nil
	}

	page := doc.Pages[0]
	if dim := page.GetDimension(); dim != nil && dim.GetWidth() > 0 && dim.GetHeight() > 0 {
		width, height = int(dim.GetWidth()), int(dim.GetHeight())
	}

	var regions []TextRegion
	for _, line := range page.GetLines() {
		layout := line.GetLayout()
		text := strings.TrimSpace(anchorText(doc.GetText(), layout.GetTextAnchor()))
		if text == "" {
			continue
		}
		regions = append(regions, TextRegion{
			Quad:       polyQuad(layout.GetBoundingPoly(), width, height),
			Text:       text,
			Confidence: float64(layout.GetConfidence()),
		})
	}
	return regions
}

// anchorText resolves a text anchor against the document's full text.
func anchorText(text string, anchor *documentaipb.Document_TextAnchor) string {
	var b strings.Builder
	for _, segment := range anchor.GetTextSegments() {
		start, end := int(segment.GetStartIndex()), int(segment.GetEndIndex())
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		b.WriteString(text[start:end])
	}
	return b.String()
}

// polyQuad prefers absolute vertices and falls back to normalized ones scaled to the page.
func polyQuad(poly *documentaipb.BoundingPoly, width, height int) []image.Point {
	if vertices := poly.GetVertices(); len(vertices) > 0 {
		points := make([]image.Point, 0, len(vertices))
		for _, v := range vertices {
			points = append(points, image.Point{X: int(v.GetX()), Y: int(v.GetY())})
		}
		return points
	}

	normalized := poly.GetNormalizedVertices()
	if len(normalized) == 0 {
		return nil
	}
	points := make([]image.Point, 0, len(normalized))
	for _, v := range normalized {
		points = append(points, image.Point{
			X: int(v.GetX() * float32(width)),
			Y: int(v.GetY() * float32(height)),
		})
	}
	return points
}
