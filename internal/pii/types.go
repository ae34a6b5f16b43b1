// Package pii finds personally identifiable information in OCR text regions.
//
// A Matcher applies one regular expression per PII type to a string. A Detector
// fans the Matcher out over every region of a recognized document, filters by
// OCR confidence and produces located, scored findings.
package pii

import (
	"fmt"
	"image"
	"math"
	"unicode/utf8"
)

// Type is one of the fixed PII categories.
type Type string

const (
	TypeCCCD    Type = "cccd" // citizen identity card number
	TypeDOB     Type = "dob"
	TypeName    Type = "name"
	TypePhone   Type = "phone"
	TypeAddress Type = "address"
)

// AllTypes is the enumeration order. Findings within one region follow it.
var AllTypes = []Type{TypeCCCD, TypeDOB, TypeName, TypePhone, TypeAddress}

// ParseType validates s as a PII type.
func ParseType(s string) (Type, error) {
	for _, t := range AllTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Finding is one detected PII instance. It is never mutated after creation.
type Finding struct {
	Type Type `json:"type"`

	// Value is the matched text. It must never be persisted.
	Value string `json:"-"`

	// Confidence combines match quality and OCR confidence, within [0,1].
	Confidence float64 `json:"confidence"`

	// Region is the quadrilateral of the OCR region the value was found in.
	Region []image.Point `json:"region"`

	// Page is the zero-based page index within the document.
	Page int `json:"page"`
}

// Box is an axis-aligned rectangle in pixel coordinates.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the box covers no pixels.
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Degenerate reports whether the region is not a quadrilateral.
func (f Finding) Degenerate() bool {
	return len(f.Region) != 4
}

// Box returns the bounding box of the region, or the zero Box when degenerate.
func (f Finding) Box() Box {
	if f.Degenerate() {
		return Box{}
	}

	minX, minY := f.Region[0].X, f.Region[0].Y
	maxX, maxY := minX, minY
	for _, p := range f.Region[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}

	return Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Summary is the persisted view of a finding. It carries the value length, never the value.
type Summary struct {
	Type        Type    `json:"type"`
	ValueLength int     `json:"value_length"`
	Confidence  float64 `json:"confidence"`
	BBox        [4]int  `json:"bbox"` // x, y, width, height
	Page        int     `json:"page"`
}

// Summarize returns the persisted view of f.
func (f Finding) Summarize() Summary {
	box := f.Box()
	return Summary{
		Type:        f.Type,
		ValueLength: utf8.RuneCountInString(f.Value),
		Confidence:  Round(f.Confidence, 3),
		BBox:        [4]int{box.X, box.Y, box.Width, box.Height},
		Page:        f.Page,
	}
}

// Summaries maps Summarize over findings.
func Summaries(findings []Finding) []Summary {
	out := make([]Summary, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Summarize())
	}
	return out
}

// Statistics counts findings per type. Types without findings are absent.
func Statistics(findings []Finding) map[Type]int {
	stats := make(map[Type]int)
	for _, f := range findings {
		stats[f.Type]++
	}
	return stats
}

// ForPage returns the findings located on page, preserving order.
func ForPage(findings []Finding, page int) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Page == page {
			out = append(out, f)
		}
	}
	return out
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
