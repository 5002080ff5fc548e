// Package highlight holds the authoritative highlight state shared by the
// article narration, the sidebar and the slide navigation, and fans state
// changes out to renderers and listeners.
package highlight

import (
	"log/slog"
	"sync"

	"github.com/agleyzer/slidecast/internal/narration"
)

// State is a snapshot of everything that is highlighted.
type State struct {
	// Line is the current narration line, or nil. At most one line is
	// current across all slides.
	Line *narration.Line
	// ActiveSlide is the slide marked active in the navigation.
	ActiveSlide int
	// Expanded lists the sidebar panels that are open.
	Expanded map[int]bool
	// ScrolledTo is the sidebar panel last scrolled into view, 0 for none.
	ScrolledTo int
	// Revision increases with every committed change.
	Revision uint64
}

// IsCurrent reports whether line is the highlighted line.
func (s State) IsCurrent(line *narration.Line) bool {
	return line != nil && s.Line == line
}

func (s State) clone() State {
	out := s
	out.Expanded = make(map[int]bool, len(s.Expanded))
	for k, v := range s.Expanded {
		out.Expanded[k] = v
	}
	return out
}

// Renderer draws a complete highlight state. Render is called with the
// broadcaster lock held and must not call back into the broadcaster.
type Renderer interface {
	Render(State)
}

// Listener is notified after a change is committed.
type Listener func(slide int, line *narration.Line)

// Broadcaster applies highlight transitions atomically.
type Broadcaster struct {
	// notifyMu keeps listener calls in commit order.
	notifyMu sync.Mutex

	mu        sync.Mutex
	state     State
	renderers []Renderer
	listeners []Listener
	logger    *slog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		state:  State{Expanded: make(map[int]bool)},
		logger: logger,
	}
}

// AddRenderer registers r and renders the current state to it.
func (b *Broadcaster) AddRenderer(r Renderer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.renderers = append(b.renderers, r)
	r.Render(b.state.clone())
}

// OnChange registers a listener. Listeners must not call Apply, ClearLine or
// SetActiveSlide synchronously.
func (b *Broadcaster) OnChange(fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listeners = append(b.listeners, fn)
}

// Apply makes line the only current line and reveals its slide panel.
// A nil line clears the current line and changes nothing else.
func (b *Broadcaster) Apply(slide int, line *narration.Line) {
	b.commit(func(s *State) bool {
		if line == nil {
			return clearLine(s)
		}

		changed := s.Line != line || s.ActiveSlide != slide ||
			!s.Expanded[slide] || s.ScrolledTo != slide

		s.Line = line
		s.Expanded[slide] = true
		s.ScrolledTo = slide
		s.ActiveSlide = slide
		return changed
	})
}

// ClearLine removes the current line. Panel expansion is kept.
func (b *Broadcaster) ClearLine() {
	b.commit(clearLine)
}

// SetActiveSlide marks slide active in the navigation.
func (b *Broadcaster) SetActiveSlide(slide int) {
	b.commit(func(s *State) bool {
		if s.ActiveSlide == slide {
			return false
		}
		s.ActiveSlide = slide
		return true
	})
}

// Expand opens the sidebar panel of slide.
func (b *Broadcaster) Expand(slide int) {
	b.commit(func(s *State) bool {
		if s.Expanded[slide] {
			return false
		}
		s.Expanded[slide] = true
		return true
	})
}

// Current returns a snapshot of the state.
func (b *Broadcaster) Current() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state.clone()
}

func clearLine(s *State) bool {
	if s.Line == nil {
		return false
	}
	s.Line = nil
	return true
}

// commit runs mutate under the lock, renders the result, then notifies
// listeners once the lock is released.
func (b *Broadcaster) commit(mutate func(*State) bool) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	if !mutate(&b.state) {
		b.mu.Unlock()
		return
	}
	b.state.Revision++

	snapshot := b.state.clone()
	for _, r := range b.renderers {
		r.Render(snapshot)
	}
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	slide := snapshot.ActiveSlide
	if snapshot.Line != nil {
		slide = snapshot.Line.Slide
	}
	b.logger.Debug("highlight changed",
		"revision", snapshot.Revision,
		"slide", slide,
		"line", lineSeq(snapshot.Line),
	)

	for _, fn := range listeners {
		fn(slide, snapshot.Line)
	}
}

func lineSeq(line *narration.Line) int {
	if line == nil {
		return 0
	}
	return line.Seq
}
