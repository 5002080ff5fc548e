package highlight

import (
	"sync"

	"github.com/agleyzer/slidecast/internal/narration"
)

// Marker is the rendered highlight of one narration line.
type Marker struct {
	Slide   int  `json:"slide"`
	Seq     int  `json:"seq"`
	Article bool `json:"article"`
	Sidebar bool `json:"sidebar"`
}

// Frame is one rendered picture of the highlight state.
type Frame struct {
	Revision    uint64   `json:"revision"`
	ActiveSlide int      `json:"activeSlide"`
	Expanded    []int    `json:"expanded"`
	ScrolledTo  int      `json:"scrolledTo"`
	Lines       []Marker `json:"lines"`
}

// CurrentCount returns how many lines are marked in the article and sidebar.
func (f Frame) CurrentCount() (article, sidebar int) {
	for _, m := range f.Lines {
		if m.Article {
			article++
		}
		if m.Sidebar {
			sidebar++
		}
	}
	return article, sidebar
}

// Projection renders highlight state onto every line of an index, the way
// the article and sidebar show it. Every frame is recomputed from scratch.
type Projection struct {
	index *narration.Index

	mu     sync.Mutex
	frame  Frame
	frames int
	keep   bool
	log    []Frame
}

// NewProjection creates a projection over idx.
func NewProjection(idx *narration.Index) *Projection {
	return &Projection{index: idx}
}

// Record keeps every rendered frame for inspection.
func (p *Projection) Record() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keep = true
}

// Render implements Renderer.
func (p *Projection) Render(s State) {
	frame := Frame{
		Revision:    s.Revision,
		ActiveSlide: s.ActiveSlide,
		ScrolledTo:  s.ScrolledTo,
	}

	for _, slide := range p.index.Slides() {
		if s.Expanded[slide.Index] {
			frame.Expanded = append(frame.Expanded, slide.Index)
		}
	}

	lines := p.index.AllLines()
	frame.Lines = make([]Marker, len(lines))
	for i, line := range lines {
		current := s.IsCurrent(line)
		frame.Lines[i] = Marker{
			Slide:   line.Slide,
			Seq:     line.Seq,
			Article: current,
			Sidebar: current,
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.frame = frame
	p.frames++
	if p.keep {
		p.log = append(p.log, frame)
	}
}

// Frame returns the latest frame.
func (p *Projection) Frame() Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

// Frames returns the number of rendered frames.
func (p *Projection) Frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// History returns recorded frames, oldest first.
func (p *Projection) History() []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Frame, len(p.log))
	copy(out, p.log)
	return out
}
