package pii

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	upperVI = "A-ZÀÁẠẢÃÂẦẤẬẨẪĂẰẮẶẲẴÈÉẸẺẼÊỀẾỆỂỄÌÍỊỈĨÒÓỌỎÕÔỒỐỘỔỖƠỜỚỢỞỠÙÚỤỦŨƯỪỨỰỬỮỲÝỴỶỸĐ"
	lowerVI = "a-zàáạảãâầấậẩẫăằắặẳẵèéẹẻẽêềếệểễìíịỉĩòóọỏõôồốộổỗơờớợởỡùúụủũưừứựửữỳýỵỷỹđ"
	wordVI  = "[" + upperVI + "][" + lowerVI + "]+"
)

// DefaultPatterns are the Vietnamese contract patterns. All are matched case-insensitively.
var DefaultPatterns = map[Type]string{
	// 12 consecutive digits
	TypeCCCD: `\b\d{12}\b`,

	// DD/MM/YYYY, DD-MM-YYYY, "ngày DD tháng MM năm YYYY"
	TypeDOB: `(?:\d{1,2}[/-]\d{1,2}[/-]\d{4})|(?:ngày\s+\d{1,2}\s+tháng\s+\d{1,2}\s+năm\s+\d{4})`,

	// Names after "Ông/Bà:", "Bên A:", "Bên B:", "Họ và tên:"
	TypeName: `(?:Ông/Bà|Bên\s+[AB]|Họ\s+và\s+tên)\s*:\s*(` + wordVI + `(?:\s+` + wordVI + `){1,3})`,

	// 10-11 digit numbers starting with 0
	TypePhone: `\b0\d{9,10}\b`,

	TypeAddress: `(?:Địa\s+chỉ|Nơi\s+ở)\s*:\s*(.{10,100})`,
}

// canonicalDigits is the expected digit count for structured types.
var canonicalDigits = map[Type]int{
	TypeCCCD:  12,
	TypePhone: 10,
}

const (
	exactMatchConfidence   = 1.0
	partialMatchConfidence = 0.7
)

// Match is one pattern hit inside a text.
type Match struct {
	Text       string
	Start, End int // byte offsets into the searched text
	Confidence float64
}

// Matcher holds one compiled pattern per PII type. It is safe for concurrent use.
type Matcher struct {
	patterns map[Type]*regexp.Regexp
}

// NewMatcher compiles patterns, filling unspecified types from DefaultPatterns.
func NewMatcher(patterns map[Type]string) (*Matcher, error) {
	const op = "NewMatcher"

	sources := make(map[Type]string, len(AllTypes))
	for t, p := range DefaultPatterns {
		sources[t] = p
	}
	for t, p := range patterns {
		if _, err := ParseType(string(t)); err != nil {
			return nil, WrapDetectionError(op, err, "")
		}
		if strings.TrimSpace(p) != "" {
			sources[t] = p
		}
	}

	m := &Matcher{patterns: make(map[Type]*regexp.Regexp, len(sources))}
	for t, source := range sources {
		re, err := regexp.Compile("(?i)" + source)
		if err != nil {
			return nil, WrapDetectionError(op, ErrInvalidPattern, fmt.Sprintf("%s: %v", t, err))
		}
		m.patterns[t] = re
	}
	return m, nil
}

// NewMatcherFromConfig builds a Matcher from string-keyed patterns as found in configuration.
func NewMatcherFromConfig(patterns map[string]string) (*Matcher, error) {
	typed := make(map[Type]string, len(patterns))
	for name, p := range patterns {
		t, err := ParseType(strings.ToLower(name))
		if err != nil {
			return nil, WrapDetectionError("NewMatcherFromConfig", err, "")
		}
		typed[t] = p
	}
	return NewMatcher(typed)
}

// FindMatches returns every non-overlapping match of t's pattern in text, in order.
func (m *Matcher) FindMatches(text string, t Type) []Match {
	re, ok := m.patterns[t]
	if !ok {
		return nil
	}

	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		value := text[loc[0]:loc[1]]
		matches = append(matches, Match{
			Text:       value,
			Start:      loc[0],
			End:        loc[1],
			Confidence: matchConfidence(t, value),
		})
	}
	return matches
}

// matchConfidence scores structured numeric types by digit count; free-text types always score 1.
func matchConfidence(t Type, value string) float64 {
	expected, ok := canonicalDigits[t]
	if !ok {
		return exactMatchConfidence
	}

	digits := 0
	for _, r := range value {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits == expected {
		return exactMatchConfidence
	}
	return partialMatchConfidence
}
