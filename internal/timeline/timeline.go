// Package timeline resolves narration lines from video and audio timestamps
// and converts positions between the slide-local audio axis and the absolute
// video axis.
package timeline

import (
	"log/slog"

	"github.com/agleyzer/slidecast/internal/narration"
)

// Lookup answers time queries against a narration index.
type Lookup struct {
	index  *narration.Index
	logger *slog.Logger
}

// New creates a Lookup over idx.
func New(idx *narration.Index, logger *slog.Logger) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{index: idx, logger: logger}
}

// Index returns the underlying narration index.
func (l *Lookup) Index() *narration.Index {
	return l.index
}

// FindByVideoTime returns the line whose video span contains t.
// Overlapping spans are a data bug; they are reported and resolved in favour
// of the highest slide, then source order within that slide. Spans that only
// meet at t are resolved the same way without a report.
func (l *Lookup) FindByVideoTime(t float64) *narration.Line {
	var (
		best       *narration.Line
		candidates []*narration.Line
	)

	for _, line := range l.index.AllLines() {
		if !line.Video.Contains(t) {
			continue
		}
		candidates = append(candidates, line)
		if best == nil || line.Slide > best.Slide {
			best = line
		}
	}

	if overlapping(candidates) {
		slides := make([]int, len(candidates))
		for i, c := range candidates {
			slides[i] = c.Slide
		}
		l.logger.Warn("overlapping video spans",
			"time", t,
			"slides", slides,
			"chosen", best.Slide,
		)
	}

	return best
}

// overlapping reports whether any two lines share more than an endpoint.
func overlapping(lines []*narration.Line) bool {
	for i, a := range lines {
		for _, b := range lines[i+1:] {
			if min(a.Video.End, b.Video.End) > max(a.Video.Start, b.Video.Start) {
				return true
			}
		}
	}
	return false
}

// FindByAudioTime returns the first line of slide whose audio span contains t.
func (l *Lookup) FindByAudioTime(slide int, t float64) *narration.Line {
	for _, line := range l.index.LinesOfSlide(slide) {
		if line.Audio.Contains(t) {
			return line
		}
	}
	return nil
}

// NearestUpcoming returns the first line, in flat order, whose video start is
// at or after t.
func (l *Lookup) NearestUpcoming(t float64) *narration.Line {
	for _, line := range l.index.AllLines() {
		if line.Video.Valid && line.Video.Start >= t {
			return line
		}
	}
	return nil
}

// ResolveVideoTime returns the line to use for an absolute time: the
// containing line, else the nearest upcoming one, else nil.
func (l *Lookup) ResolveVideoTime(t float64) *narration.Line {
	if line := l.FindByVideoTime(t); line != nil {
		return line
	}
	return l.NearestUpcoming(t)
}

// AudioToVideo maps a slide-local audio time to the absolute video axis.
// It uses the containing line when there is one, else the video end of the
// last line that finished before t, else the slide's first video start.
func (l *Lookup) AudioToVideo(slide int, t float64) (float64, bool) {
	lines := l.index.LinesOfSlide(slide)

	for _, line := range lines {
		if line.Audio.Contains(t) && line.Video.Valid {
			v := line.Video.Start + (t - line.Audio.Start)
			return clamp(v, line.Video.Start, line.Video.End), true
		}
	}

	var preceding *narration.Line
	for _, line := range lines {
		if line.Audio.Valid && line.Video.Valid && line.Audio.End <= t {
			preceding = line
		}
	}
	if preceding != nil {
		return preceding.Video.End, true
	}

	return l.index.SlideVideoStart(slide)
}

// VideoToAudio maps an absolute video time to a slide and slide-local audio
// time. ok is false when no line can anchor the conversion.
func (l *Lookup) VideoToAudio(t float64) (slide int, audio float64, ok bool) {
	line := l.FindByVideoTime(t)
	if line == nil {
		line = l.lastStartingBefore(t)
	}
	if line == nil {
		return 0, 0, false
	}

	if !line.Audio.Valid || !line.Video.Valid {
		return line.Slide, 0, true
	}

	a := line.Audio.Start + (t - line.Video.Start)
	return line.Slide, clamp(a, line.Audio.Start, line.Audio.End), true
}

func (l *Lookup) lastStartingBefore(t float64) *narration.Line {
	var found *narration.Line
	for _, line := range l.index.AllLines() {
		if line.Video.Valid && line.Video.Start <= t {
			found = line
		}
	}
	return found
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
