package narration

import (
	"fmt"
	"log/slog"
	"sort"
)

// Index is the ordered, read-only view of a deck's narration.
// It has no mutation methods; build a new one to change content.
type Index struct {
	slides  []Slide
	lines   []*Line
	bySlide map[int]int // slide index -> position in slides
	flat    map[*Line]int
	total   float64
}

// Build constructs an Index from raw slide data.
// Missing content yields an empty index rather than an error.
func Build(raw []RawSlide, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}

	idx := &Index{
		bySlide: make(map[int]int, len(raw)),
		flat:    make(map[*Line]int),
	}

	if len(raw) == 0 {
		logger.Warn("no slides found, narration index is empty")
		return idx
	}

	sorted := make([]RawSlide, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Index < sorted[j].Index
	})

	for _, rs := range sorted {
		if rs.Index < 1 {
			logger.Warn("skipping slide with invalid index", "index", rs.Index)
			continue
		}
		if _, dup := idx.bySlide[rs.Index]; dup {
			logger.Warn("skipping duplicate slide", "index", rs.Index)
			continue
		}

		title := rs.Title
		if title == "" {
			title = fmt.Sprintf("Slide %d", rs.Index)
		}

		slide := Slide{
			Index:         rs.Index,
			Title:         title,
			Image:         rs.Image,
			Audio:         rs.Audio,
			AudioDuration: rs.AudioDuration,
			Lines:         make([]*Line, 0, len(rs.Lines)),
		}

		for i, rl := range rs.Lines {
			line := &Line{
				Slide:   rs.Index,
				Seq:     i + 1,
				ID:      rl.ID,
				Section: rl.Section,
				Text:    rl.Text,
				Audio:   ParseSpan(rl.Start, rl.End),
				Video:   ParseSpan(rl.StartVideo, rl.EndVideo),
			}
			if !line.Audio.Valid || !line.Video.Valid {
				logger.Debug("narration line missing timestamps",
					"slide", line.Slide,
					"seq", line.Seq,
					"audio", line.Audio.Valid,
					"video", line.Video.Valid,
				)
			}
			if line.Video.Valid && line.Video.End > idx.total {
				idx.total = line.Video.End
			}

			slide.Lines = append(slide.Lines, line)
			idx.flat[line] = len(idx.lines)
			idx.lines = append(idx.lines, line)
		}

		idx.bySlide[slide.Index] = len(idx.slides)
		idx.slides = append(idx.slides, slide)
	}

	logger.Info("built narration index",
		"slides", len(idx.slides),
		"lines", len(idx.lines),
		"totalDuration", idx.total,
	)

	return idx
}

// AllLines returns every line in sidebar order: slides ascending, lines in
// source order. The returned slice is a fresh copy.
func (x *Index) AllLines() []*Line {
	out := make([]*Line, len(x.lines))
	copy(out, x.lines)
	return out
}

// LinesOfSlide returns the ordered lines of one slide, or nil.
func (x *Index) LinesOfSlide(slide int) []*Line {
	pos, ok := x.bySlide[slide]
	if !ok {
		return nil
	}
	lines := x.slides[pos].Lines
	out := make([]*Line, len(lines))
	copy(out, lines)
	return out
}

// Slides returns the slides in ascending index order.
func (x *Index) Slides() []Slide {
	out := make([]Slide, len(x.slides))
	copy(out, x.slides)
	return out
}

// Slide returns the slide with the given 1-based index.
func (x *Index) Slide(index int) (Slide, bool) {
	pos, ok := x.bySlide[index]
	if !ok {
		return Slide{}, false
	}
	return x.slides[pos], true
}

// HasSlide reports whether the slide exists.
func (x *Index) HasSlide(index int) bool {
	_, ok := x.bySlide[index]
	return ok
}

// SlideCount returns the number of slides.
func (x *Index) SlideCount() int {
	return len(x.slides)
}

// LastSlide returns the highest slide index, or 0 for an empty index.
func (x *Index) LastSlide() int {
	if len(x.slides) == 0 {
		return 0
	}
	return x.slides[len(x.slides)-1].Index
}

// FirstSlide returns the lowest slide index, or 1 for an empty index.
func (x *Index) FirstSlide() int {
	if len(x.slides) == 0 {
		return 1
	}
	return x.slides[0].Index
}

// Line returns the line at seq (1-based) within slide.
func (x *Index) Line(slide, seq int) *Line {
	pos, ok := x.bySlide[slide]
	if !ok {
		return nil
	}
	lines := x.slides[pos].Lines
	if seq < 1 || seq > len(lines) {
		return nil
	}
	return lines[seq-1]
}

// FirstLine returns the first line of a slide, or nil.
func (x *Index) FirstLine(slide int) *Line {
	return x.Line(slide, 1)
}

// Position returns the flat sidebar position of line, or -1 if the line does
// not belong to this index.
func (x *Index) Position(line *Line) int {
	if line == nil {
		return -1
	}
	pos, ok := x.flat[line]
	if !ok {
		return -1
	}
	return pos
}

// At returns the line at flat position i, or nil.
func (x *Index) At(i int) *Line {
	if i < 0 || i >= len(x.lines) {
		return nil
	}
	return x.lines[i]
}

// Len returns the number of lines.
func (x *Index) Len() int {
	return len(x.lines)
}

// TotalDuration is the largest valid video end time across all lines.
func (x *Index) TotalDuration() float64 {
	return x.total
}

// SlideVideoStart returns the first valid video start of a slide's lines.
func (x *Index) SlideVideoStart(slide int) (float64, bool) {
	pos, ok := x.bySlide[slide]
	if !ok {
		return 0, false
	}
	for _, l := range x.slides[pos].Lines {
		if l.Video.Valid {
			return l.Video.Start, true
		}
	}
	return 0, false
}

// SlideVideoEnd returns the largest valid video end of a slide's lines.
func (x *Index) SlideVideoEnd(slide int) (float64, bool) {
	pos, ok := x.bySlide[slide]
	if !ok {
		return 0, false
	}
	end, found := 0.0, false
	for _, l := range x.slides[pos].Lines {
		if l.Video.Valid && (!found || l.Video.End > end) {
			end, found = l.Video.End, true
		}
	}
	return end, found
}
