package redaction

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"docredact/internal/pii"
	"docredact/internal/raster"
)

// Report describes the redacted output of one document.
type Report struct {
	OriginalFile string `json:"original_file"`

	// RedactedFiles are the written file names, relative to OutputDir.
	RedactedFiles []string `json:"redacted_files"`

	OutputDir       string `json:"-"`
	PageCount       int    `json:"page_count"`
	TotalRedactions int    `json:"total_redactions"`

	// FailedPages lists zero-based pages whose output could not be written.
	FailedPages []int `json:"failed_pages,omitempty"`
}

// Paths joins RedactedFiles with OutputDir.
func (r *Report) Paths() []string {
	paths := make([]string, len(r.RedactedFiles))
	for i, name := range r.RedactedFiles {
		paths[i] = filepath.Join(r.OutputDir, name)
	}
	return paths
}

// Coordinator redacts whole documents.
type Coordinator struct {
	renderer   *Renderer
	rasterizer raster.Rasterizer
	log        zerolog.Logger
}

// NewCoordinator creates a coordinator. rasterizer is only needed for PDFs.
func NewCoordinator(renderer *Renderer, rasterizer raster.Rasterizer, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		renderer:   renderer,
		rasterizer: rasterizer,
		log:        log,
	}
}

// RedactDocument writes redacted_<name> into outputDir, dispatching on the source extension.
func (c *Coordinator) RedactDocument(ctx context.Context, sourcePath string, findings []pii.Finding, outputDir string) (*Report, error) {
	outputPath := filepath.Join(outputDir, "redacted_"+filepath.Base(sourcePath))
	if raster.IsPDF(sourcePath) {
		return c.RedactMultiPage(ctx, sourcePath, findings, outputPath)
	}
	return c.RedactSingleImage(ctx, sourcePath, findings, outputPath)
}

// RedactMultiPage rasterizes a PDF and redacts each page with that page's findings.
// A single-page document is written to outputPath with a .png extension; longer
// documents are written as <stem>_page_<N>.png beside it, N counting from zero.
func (c *Coordinator) RedactMultiPage(ctx context.Context, sourcePath string, findings []pii.Finding, outputPath string) (*Report, error) {
	const op = "RedactMultiPage"

	if c.rasterizer == nil {
		return nil, WrapRedactionError(op, sourcePath, ErrSourceUnreadable, "no rasterizer configured")
	}

	pages, err := c.rasterizer.Rasterize(ctx, sourcePath)
	if err != nil {
		return nil, WrapRedactionError(op, sourcePath, fmt.Errorf("%w: %w", ErrSourceUnreadable, err), "")
	}

	return c.RedactPages(ctx, sourcePath, pages, findings, outputPath, true)
}

// RedactSingleImage redacts a standalone raster, treating every finding as page 0.
// The output keeps outputPath's extension.
func (c *Coordinator) RedactSingleImage(ctx context.Context, sourcePath string, findings []pii.Finding, outputPath string) (*Report, error) {
	const op = "RedactSingleImage"

	img, err := raster.Load(sourcePath)
	if err != nil {
		return nil, WrapRedactionError(op, sourcePath, fmt.Errorf("%w: %w", ErrSourceUnreadable, err), "")
	}

	return c.RedactPages(ctx, sourcePath, []image.Image{img}, findings, outputPath, false)
}

// RedactPages redacts already-decoded pages. With pageNamed set, output follows the
// multi-page naming of RedactMultiPage and findings are matched to pages by index;
// otherwise pages must hold a single image, every finding applies to it and it is
// written to outputPath as given.
func (c *Coordinator) RedactPages(ctx context.Context, sourcePath string, pages []image.Image, findings []pii.Finding, outputPath string, pageNamed bool) (*Report, error) {
	const op = "RedactPages"

	if len(pages) == 0 {
		return nil, WrapRedactionError(op, sourcePath, ErrNoPages, "")
	}
	if !pageNamed && len(pages) != 1 {
		return nil, WrapRedactionError(op, sourcePath, ErrNoPages, fmt.Sprintf("single image output needs exactly one page, got %d", len(pages)))
	}

	report := &Report{
		OriginalFile: filepath.Base(sourcePath),
		OutputDir:    filepath.Dir(outputPath),
		PageCount:    len(pages),
	}

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, WrapRedactionError(op, sourcePath, err, fmt.Sprintf("canceled at page %d", i))
		}

		pageFindings := findings
		if pageNamed {
			pageFindings = pii.ForPage(findings, i)
		}

		redacted, count := c.renderer.RedactPage(page, pageFindings)

		target := pageOutputPath(outputPath, i, len(pages), pageNamed)
		if err := raster.Save(target, redacted); err != nil {
			c.log.Error().
				Err(err).
				Str("file", report.OriginalFile).
				Int("page", i).
				Msg("Failed to write redacted page")
			report.FailedPages = append(report.FailedPages, i)
			continue
		}

		report.TotalRedactions += count
		report.RedactedFiles = append(report.RedactedFiles, filepath.Base(target))
	}

	if len(report.RedactedFiles) == 0 {
		return nil, WrapRedactionError(op, sourcePath, ErrNoPagesWritten, "")
	}

	c.log.Info().
		Str("file", report.OriginalFile).
		Int("pages", report.PageCount).
		Int("total_redactions", report.TotalRedactions).
		Ints("failed_pages", report.FailedPages).
		Msg("Document redaction completed")

	return report, nil
}

func pageOutputPath(outputPath string, page, pageCount int, pageNamed bool) string {
	if !pageNamed {
		return outputPath
	}
	stem := strings.TrimSuffix(outputPath, filepath.Ext(outputPath))
	if pageCount == 1 {
		return stem + ".png"
	}
	return fmt.Sprintf("%s_page_%d.png", stem, page)
}
