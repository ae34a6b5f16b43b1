package mupdf

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"

	"docredact/internal/raster"
)

// writePDF writes an image-only PDF with one A4 page per entry of marks,
// each page carrying a black square at the given offset.
func writePDF(t *testing.T, path string, marks []int) {
	t.Helper()

	pdf := fpdf.New("P", "mm", "A4", "")
	for i, mark := range marks {
		img := image.NewRGBA(image.Rect(0, 0, 210, 297))
		for p := range img.Pix {
			img.Pix[p] = 0xff
		}
		for y := mark; y < mark+20; y++ {
			for x := mark; x < mark+20; x++ {
				img.Set(x, y, color.Black)
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatalf("encode page: %v", err)
		}
		name := filepath.Base(path) + string(rune('a'+i))
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opts, &buf)
		pdf.AddPage()
		pdf.ImageOptions(name, 0, 0, 210, 297, false, opts, 0, "")
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
}

func TestRasterize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lease_agreement_01.pdf")
	writePDF(t, path, []int{10, 60, 110})

	pages, err := New(72, zerolog.Nop()).Rasterize(context.Background(), path)
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("Rasterize() returned %d pages, want 3", len(pages))
	}

	// A4 at 72 dpi is 595x842 points.
	b := pages[0].Bounds()
	if b.Dx() < 590 || b.Dx() > 600 || b.Dy() < 837 || b.Dy() > 847 {
		t.Errorf("page size = %v, want about 595x842", b.Size())
	}
}

func TestRasterizeMissingSource(t *testing.T) {
	_, err := New(0, zerolog.Nop()).Rasterize(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	if !errors.Is(err, raster.ErrSourceUnreadable) {
		t.Fatalf("Rasterize() error = %v, want ErrSourceUnreadable", err)
	}
}

func TestRasterizeCanceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deposit_contract_02.pdf")
	writePDF(t, path, []int{10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(72, zerolog.Nop()).Rasterize(ctx, path); !errors.Is(err, raster.ErrRasterizeFailed) {
		t.Fatalf("Rasterize() error = %v, want ErrRasterizeFailed", err)
	}
}
