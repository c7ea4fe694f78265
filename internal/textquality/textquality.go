// Package textquality decides whether text pulled out of a document is worth
// showing or is the meaningless output of a conversion that lost its
// character maps.
package textquality

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const (
	sampleSize      = 2000
	minSampleLength = 20
	minAlnumRatio   = 0.35
	maxPunctRatio   = 0.40
	minLetterRatio  = 0.15
)

var (
	stripPolicy = bluemonday.StrictPolicy()
	entityRe    = regexp.MustCompile(`&(#[0-9]+|#[xX][0-9a-fA-F]+|[a-zA-Z][a-zA-Z0-9]*);`)
)

// PlainText strips markup and character entities from an HTML fragment and
// collapses whitespace runs to a single space.
func PlainText(fragment string) string {
	withoutEntities := entityRe.ReplaceAllString(fragment, "")
	// Tags become word boundaries so "<p>a</p><p>b</p>" does not read as "ab".
	spaced := strings.ReplaceAll(withoutEntities, "<", " <")
	// The sanitizer escapes quotes and ampersands in text; undo that so they
	// count as the punctuation they are.
	stripped := html.UnescapeString(stripPolicy.Sanitize(spaced))
	return strings.Join(strings.Fields(stripped), " ")
}

// Report carries the measurements behind a gibberish decision.
type Report struct {
	SampleLength int
	AlnumRatio   float64
	PunctRatio   float64
	LetterRatio  float64
	Gibberish    bool
	Reason       string
}

// Assess measures the first 2000 runes of text.
func Assess(text string) Report {
	if text == "" {
		return Report{Gibberish: true, Reason: "empty"}
	}
	runes := []rune(text)
	if len(runes) > sampleSize {
		runes = runes[:sampleSize]
	}
	report := Report{SampleLength: len(runes)}
	if report.SampleLength < minSampleLength {
		report.Gibberish = true
		report.Reason = "too short"
		return report
	}

	var alnum, punct, letters int
	for _, r := range runes {
		switch {
		case unicode.IsLetter(r):
			letters++
			alnum++
		case unicode.IsDigit(r):
			alnum++
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			punct++
		}
	}
	n := float64(report.SampleLength)
	report.AlnumRatio = float64(alnum) / n
	report.PunctRatio = float64(punct) / n
	report.LetterRatio = float64(letters) / n

	switch {
	case report.AlnumRatio < minAlnumRatio:
		report.Gibberish, report.Reason = true, "low alphanumeric ratio"
	case report.PunctRatio > maxPunctRatio:
		report.Gibberish, report.Reason = true, "high punctuation ratio"
	case report.LetterRatio < minLetterRatio:
		report.Gibberish, report.Reason = true, "low letter ratio"
	}
	return report
}

// IsGibberish reports whether text looks like an unreliable extraction.
func IsGibberish(text string) bool {
	return Assess(text).Gibberish
}
