// Package tesseract runs page OCR on a local Tesseract installation through
// gosseract. It needs cgo with the leptonica and tesseract headers.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"docredact/internal/logger"
	"docredact/internal/ocr"
)

// languages maps ISO 639-1 hints to Tesseract traineddata names.
var languages = map[string]string{
	"vi": "vie",
	"en": "eng",
}

// Engine implements ocr.Engine. One region per text line.
type Engine struct {
	clientFactory func() *gosseract.Client
	dpi           int
	log           zerolog.Logger
}

var _ ocr.Engine = (*Engine)(nil)

// New constructs a Tesseract-backed engine. dpi is passed to Tesseract as
// user_defined_dpi when positive.
func New(dpi int) *Engine {
	return &Engine{
		clientFactory: gosseract.NewClient,
		dpi:           dpi,
		log:           logger.WithComponent("ocr-tesseract"),
	}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize implements ocr.Engine. Each call uses its own client, so the
// engine is safe for concurrent use.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (*ocr.PageResult, error) {
	const op = "Recognize"

	if err := ctx.Err(); err != nil {
		return nil, ocr.WrapOCRError(op, ocr.ErrContextCanceled, err.Error())
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(in.Image); err != nil {
		return nil, ocr.WrapOCRError(op, ocr.ErrInvalidImage, fmt.Sprintf("set image: %v", err))
	}
	if langs := languageCodes(in.Languages); len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return nil, ocr.WrapOCRError(op, ocr.ErrInvalidConfiguration, fmt.Sprintf("set languages: %v", err))
		}
	}
	if e.dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.dpi)); err != nil {
			return nil, ocr.WrapOCRError(op, ocr.ErrInvalidConfiguration, fmt.Sprintf("set dpi: %v", err))
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, ocr.WrapOCRError(op, ocr.ErrOCRFailed, fmt.Sprintf("recognize text lines: %v", err))
	}

	result := &ocr.PageResult{
		Page:    in.PageIndex,
		Width:   in.Width,
		Height:  in.Height,
		Regions: make([]ocr.TextRegion, 0, len(boxes)),
	}
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		result.Regions = append(result.Regions, ocr.TextRegion{
			Quad:       ocr.QuadFromRect(box.Box),
			Text:       text,
			Confidence: box.Confidence / 100.0,
		})
	}

	e.log.Debug().
		Str("document", in.ID).
		Int("page", in.PageIndex).
		Int("regions", len(result.Regions)).
		Msg("Tesseract page recognized")

	return result, nil
}

func languageCodes(hints []string) []string {
	codes := make([]string, 0, len(hints))
	for _, hint := range hints {
		if code, ok := languages[strings.ToLower(hint)]; ok {
			codes = append(codes, code)
			continue
		}
		codes = append(codes, hint)
	}
	return codes
}
