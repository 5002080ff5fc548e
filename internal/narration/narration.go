// Package narration defines the narrated slide deck data model and the
// immutable index built from it at startup.
package narration

import (
	"math"
	"strconv"
	"strings"
)

// Span is a closed time range in seconds.
// Valid is false when the source value was missing or not numeric.
type Span struct {
	Start float64
	End   float64
	Valid bool
}

// Contains reports whether t falls inside the span, bounds included.
// An invalid span contains nothing.
func (s Span) Contains(t float64) bool {
	return s.Valid && s.Start <= t && t <= s.End
}

// Line is one timed utterance of narration text.
// Lines are shared by pointer and must not be modified after Build.
type Line struct {
	// Slide is the 1-based index of the owning slide.
	Slide int
	// Seq is the 1-based position of the line within its slide.
	Seq int
	// ID is the source identifier, if any (e.g. "slide2Note3").
	ID string
	// Section is the source section attribute, if any.
	Section string
	// Text is the narration payload. It is never interpreted.
	Text string
	// Audio is the slide-local audio range.
	Audio Span
	// Video is the absolute video range across the whole deck.
	Video Span
}

// Slide is a deck slide with its ordered narration lines.
type Slide struct {
	Index int
	Title string
	// Image is the slide image or SVG reference.
	Image string
	// Audio is the per-slide audio source reference.
	Audio string
	// AudioDuration is the length of the slide audio in seconds, 0 if unknown.
	AudioDuration float64
	Lines         []*Line
}

// RawLine is a narration line as found in the content source.
// Time values are kept as text and parsed by Build.
type RawLine struct {
	ID         string
	Section    string
	Text       string
	Start      string
	End        string
	StartVideo string
	EndVideo   string
}

// RawSlide is a slide as found in the content source.
type RawSlide struct {
	Index         int
	Title         string
	Image         string
	Audio         string
	AudioDuration float64
	Lines         []RawLine
}

// ParseSeconds parses a timestamp attribute.
// Empty, non-numeric, negative and non-finite values report ok=false.
func ParseSeconds(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, false
	}

	return seconds, true
}

// ParseSpan builds a span from start/end attributes. Both must parse and
// end must not precede start.
func ParseSpan(start, end string) Span {
	s, okStart := ParseSeconds(start)
	e, okEnd := ParseSeconds(end)
	if !okStart || !okEnd || e < s {
		return Span{}
	}
	return Span{Start: s, End: e, Valid: true}
}
