// Package redaction draws opaque boxes over PII findings on page rasters.
//
// The Renderer works on one page at a time. The Coordinator drives it across
// every page of a PDF or a standalone image and writes the redacted output.
package redaction

import (
	"fmt"
	"image"
	"image/color"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"docredact/internal/pii"
)

// DefaultPadding absorbs OCR bounding box inaccuracy at the edges of text.
const DefaultPadding = 5

// Options configures the Renderer.
type Options struct {
	// Padding in pixels added on every side of a finding's box.
	Padding int

	// Color of the cover boxes. It is always drawn fully opaque.
	Color color.Color
}

// DefaultOptions returns 5px padding and solid black.
func DefaultOptions() Options {
	return Options{Padding: DefaultPadding, Color: color.Black}
}

// Renderer covers findings on a single page.
type Renderer struct {
	padding int
	fill    *image.Uniform
	log     zerolog.Logger
}

// NewRenderer creates a renderer. A nil color means black; negative padding means none.
func NewRenderer(opts Options, log zerolog.Logger) *Renderer {
	c := opts.Color
	if c == nil {
		c = color.Black
	}
	r, g, b, _ := c.RGBA()
	opaque := color.RGBA64{R: uint16(r), G: uint16(g), B: uint16(b), A: 0xffff}

	return &Renderer{
		padding: max(opts.Padding, 0),
		fill:    image.NewUniform(opaque),
		log:     log,
	}
}

// PaddedBox expands box by padding on every side and clamps it to a page of the
// given size. x and y clamp to zero first; width and height then clamp against
// the right and bottom edges.
func PaddedBox(box pii.Box, padding, pageWidth, pageHeight int) (pii.Box, error) {
	x := max(0, box.X-padding)
	y := max(0, box.Y-padding)
	w := box.Width + 2*padding
	h := box.Height + 2*padding

	w = min(w, pageWidth-x)
	h = min(h, pageHeight-y)

	out := pii.Box{X: x, Y: y, Width: w, Height: h}
	if out.Empty() {
		return pii.Box{}, fmt.Errorf("%w: %+v on %dx%d page", ErrBoxOutOfRange, box, pageWidth, pageHeight)
	}
	return out, nil
}

// RedactPage returns a redacted copy of img and the number of boxes drawn.
// img is never modified. Findings that cannot be placed are logged and skipped.
// Callers pass only the findings that belong to this page.
func (r *Renderer) RedactPage(img image.Image, findings []pii.Finding) (*image.RGBA, int) {
	src := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
	draw.Copy(out, image.Point{}, img, src, draw.Src, nil)

	drawn := 0
	for _, f := range findings {
		box, err := r.place(f, out.Bounds())
		if err != nil {
			r.log.Warn().
				Err(err).
				Str("pii_type", string(f.Type)).
				Int("page", f.Page).
				Msg("Failed to apply redaction")
			continue
		}

		draw.Draw(out, box.Rect(), r.fill, image.Point{}, draw.Src)
		drawn++

		r.log.Debug().
			Str("pii_type", string(f.Type)).
			Int("page", f.Page).
			Ints("bbox", []int{box.X, box.Y, box.Width, box.Height}).
			Msg("Applied redaction")
	}

	r.log.Info().
		Int("redactions_applied", drawn).
		Int("findings", len(findings)).
		Msg("Page redaction completed")

	return out, drawn
}

func (r *Renderer) place(f pii.Finding, bounds image.Rectangle) (pii.Box, error) {
	if f.Degenerate() {
		return pii.Box{}, fmt.Errorf("%w: %d points", ErrDegenerateRegion, len(f.Region))
	}
	return PaddedBox(f.Box(), r.padding, bounds.Dx(), bounds.Dy())
}
