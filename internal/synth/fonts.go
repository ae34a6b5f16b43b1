package synth

import (
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// Fonts tried before the embedded Go fonts, which lack most Vietnamese precomposed letters.
var (
	DefaultFontPaths = []string{
		"/usr/share/fonts/TTF/Roboto-Regular.ttf",
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/truetype/noto/NotoSans-Regular.ttf",
	}
	DefaultBoldFontPaths = []string{
		"/usr/share/fonts/TTF/Roboto-Bold.ttf",
		"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
		"/usr/share/fonts/truetype/noto/NotoSans-Bold.ttf",
	}
)

// coverageSample holds letters a font must have to render Vietnamese text.
const coverageSample = "ẠễịọưĐ"

// loadFont returns the first font in paths covering Vietnamese, or fallback.
// The bool reports whether a Vietnamese-capable font was found.
func loadFont(paths []string, fallback []byte) (*opentype.Font, bool, error) {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		f, err := opentype.Parse(data)
		if err != nil {
			continue
		}
		if coversVietnamese(f) {
			return f, true, nil
		}
	}

	f, err := opentype.Parse(fallback)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse embedded font: %w", err)
	}
	return f, false, nil
}

func coversVietnamese(f *opentype.Font) bool {
	var buf sfnt.Buffer
	for _, r := range coverageSample {
		idx, err := f.GlyphIndex(&buf, r)
		if err != nil || idx == 0 {
			return false
		}
	}
	return true
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72, // size is in pixels
		Hinting: font.HintingFull,
	})
}
