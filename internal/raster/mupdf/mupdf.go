// Package mupdf rasterizes PDFs in-process with MuPDF through go-fitz.
// It needs cgo; the poppler rasterizer in package raster does not.
package mupdf

import (
	"context"
	"image"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"

	"docredact/internal/raster"
)

// Rasterizer implements raster.Rasterizer. Every call opens its own document,
// so one Rasterizer may serve several workers.
type Rasterizer struct {
	DPI int
	log zerolog.Logger
}

var _ raster.Rasterizer = (*Rasterizer)(nil)

// New creates a rasterizer. A dpi of zero or less means raster.DefaultDPI.
func New(dpi int, log zerolog.Logger) *Rasterizer {
	if dpi <= 0 {
		dpi = raster.DefaultDPI
	}
	return &Rasterizer{DPI: dpi, log: log}
}

// Rasterize implements raster.Rasterizer.
func (r *Rasterizer) Rasterize(ctx context.Context, path string) ([]image.Image, error) {
	const op = "Rasterize"

	if _, err := os.Stat(path); err != nil {
		return nil, raster.WrapRasterError(op, path, raster.ErrSourceUnreadable, err)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, raster.WrapRasterError(op, path, raster.ErrRasterizeFailed, err)
	}
	defer doc.Close()

	count := doc.NumPage()
	if count == 0 {
		return nil, raster.WrapRasterError(op, path, raster.ErrRasterizeFailed, nil)
	}

	pages := make([]image.Image, 0, count)
	for n := 0; n < count; n++ {
		if err := ctx.Err(); err != nil {
			return nil, raster.WrapRasterError(op, path, raster.ErrRasterizeFailed, err)
		}
		img, err := doc.ImageDPI(n, float64(r.DPI))
		if err != nil {
			return nil, raster.WrapRasterError(op, path, raster.ErrRasterizeFailed, err)
		}
		pages = append(pages, img)
	}

	r.log.Debug().
		Str("file", filepath.Base(path)).
		Int("pages", len(pages)).
		Int("dpi", r.DPI).
		Msg("PDF rasterized")

	return pages, nil
}
