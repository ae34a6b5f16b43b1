package synth

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

const (
	noiseSigma = 5.0
	blurSigma  = 0.8 // close to a 3x3 binomial kernel
	maxSkewDeg = 2.0

	// Percentages as imaging takes them: contrast within ±10%, brightness
	// within ±10 of 255 levels.
	maxContrastPct   = 10.0
	maxBrightnessPct = 10.0 / 255 * 100
)

// scan makes a clean page look like a scanned sheet: gaussian noise, a light
// blur, a slight rotation on a white background and a contrast and brightness
// shift. The page keeps its size.
func (g *Generator) scan(img *image.Gray) *image.Gray {
	g.addNoise(img)

	b := img.Bounds()
	angle := (g.rng.Float64()*2 - 1) * maxSkewDeg
	contrast := (g.rng.Float64()*2 - 1) * maxContrastPct
	brightness := (g.rng.Float64()*2 - 1) * maxBrightnessPct

	out := imaging.Blur(img, blurSigma)
	out = imaging.CropCenter(imaging.Rotate(out, angle, color.White), b.Dx(), b.Dy())
	out = imaging.AdjustContrast(out, contrast)
	out = imaging.AdjustBrightness(out, brightness)
	return toGray(out)
}

// addNoise adds seeded gaussian noise in place. imaging.AdjustFunc would run
// the callback on several goroutines in no fixed pixel order, which breaks
// reproducibility for a given seed.
func (g *Generator) addNoise(img *image.Gray) {
	for i, v := range img.Pix {
		img.Pix[i] = clamp8(float64(v) + g.rng.NormFloat64()*noiseSigma)
	}
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func clamp8(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
