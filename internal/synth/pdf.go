package synth

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/go-pdf/fpdf"

	"docredact/internal/raster"
)

// A4 in millimetres. Pages rendered at A4Width x A4Height fill it at 300 DPI.
const (
	a4WidthMM  = 210.0
	a4HeightMM = 297.0
)

// writePDF writes pages as an image-only A4 PDF, one full-page image per page.
// The file is replaced atomically.
func writePDF(path string, pages []*image.Gray) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("docredact synth", true)

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	for i, page := range pages {
		var buf bytes.Buffer
		if err := png.Encode(&buf, page); err != nil {
			return fmt.Errorf("encode page %d: %w", i, err)
		}
		name := fmt.Sprintf("page-%d", i)
		pdf.RegisterImageOptionsReader(name, opts, &buf)
		pdf.AddPage()
		pdf.ImageOptions(name, 0, 0, a4WidthMM, a4HeightMM, false, opts, 0, "")
	}
	if err := pdf.Error(); err != nil {
		return err
	}

	return raster.WriteFileAtomic(path, func(w io.Writer) error {
		return pdf.Output(w)
	})
}
