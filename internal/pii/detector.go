package pii

import (
	"image"

	"github.com/rs/zerolog"

	"docredact/internal/ocr"
)

// Thresholds controls how OCR confidence and match confidence combine.
type Thresholds struct {
	// MinOCRConfidence skips regions the recognizer is unsure about.
	MinOCRConfidence float64

	// MinConfidence is the lowest combined confidence that yields a finding.
	MinConfidence float64

	MatchWeight float64
	OCRWeight   float64
}

// DefaultThresholds returns the standard weighting: 0.6 match, 0.4 OCR, emit at 0.5, skip below 0.3.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinOCRConfidence: 0.3,
		MinConfidence:    0.5,
		MatchWeight:      0.6,
		OCRWeight:        0.4,
	}
}

// Combine returns the weighted confidence, capped at 1.
func (t Thresholds) Combine(matchConfidence, ocrConfidence float64) float64 {
	combined := matchConfidence*t.MatchWeight + ocrConfidence*t.OCRWeight
	return max(0, min(combined, 1.0))
}

// Detector turns OCR regions into PII findings.
type Detector struct {
	matcher    *Matcher
	thresholds Thresholds
	log        zerolog.Logger
}

// NewDetector creates a detector. A nil matcher uses DefaultPatterns.
func NewDetector(matcher *Matcher, thresholds Thresholds, log zerolog.Logger) (*Detector, error) {
	if matcher == nil {
		var err error
		if matcher, err = NewMatcher(nil); err != nil {
			return nil, err
		}
	}
	return &Detector{
		matcher:    matcher,
		thresholds: thresholds,
		log:        log,
	}, nil
}

// Detect scans every region of every page. Findings are ordered by page, then
// region, then type in AllTypes order. The input is not modified.
func (d *Detector) Detect(pages []ocr.PageResult) []Finding {
	var findings []Finding
	skipped := 0

	for _, page := range pages {
		for _, region := range page.Regions {
			if region.Confidence < d.thresholds.MinOCRConfidence {
				skipped++
				continue
			}
			findings = append(findings, d.DetectText(region.Text, region.Quad, region.Confidence, page.Page)...)
		}
	}

	d.log.Info().
		Int("total_matches", len(findings)).
		Int("pages_processed", len(pages)).
		Int("regions_skipped", skipped).
		Msg("PII detection completed")

	return findings
}

// DetectText scans a single region. Region confidence filtering is the caller's concern.
func (d *Detector) DetectText(text string, region []image.Point, ocrConfidence float64, page int) []Finding {
	var findings []Finding

	for _, t := range AllTypes {
		for _, m := range d.matcher.FindMatches(text, t) {
			confidence := d.thresholds.Combine(m.Confidence, ocrConfidence)
			if confidence < d.thresholds.MinConfidence {
				d.log.Debug().
					Str("pii_type", string(t)).
					Float64("confidence", confidence).
					Int("page", page).
					Msg("PII candidate below threshold")
				continue
			}

			findings = append(findings, Finding{
				Type:       t,
				Value:      m.Text,
				Confidence: confidence,
				Region:     append([]image.Point(nil), region...),
				Page:       page,
			})

			d.log.Debug().
				Str("pii_type", string(t)).
				Float64("confidence", confidence).
				Int("page", page).
				Msg("PII detected")
		}
	}

	return findings
}
