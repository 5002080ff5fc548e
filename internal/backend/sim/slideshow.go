package sim

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Slideshow is a simulated slideshow with per-slide fragments.
type Slideshow struct {
	name string
	rec  *Recorder
	d    dispatcher

	mu        sync.Mutex
	slide     int
	fragment  int
	fragments map[int]int
	initDelay time.Duration
	onSlide   func(index int)
	onShown   func(index int)
	onHidden  func(index int)
}

// NewSlideshow creates a slideshow. fragments maps a 0-based slide index
// to its fragment count.
func NewSlideshow(name string, fragments map[int]int, initDelay time.Duration, rec *Recorder) *Slideshow {
	return &Slideshow{
		name:      name,
		rec:       rec,
		fragment:  -1,
		fragments: fragments,
		initDelay: initDelay,
	}
}

// OnSlideChanged registers the slide-changed callback.
func (s *Slideshow) OnSlideChanged(fn func(index int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSlide = fn
}

// OnFragment registers the fragment shown and hidden callbacks.
func (s *Slideshow) OnFragment(shown, hidden func(index int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onShown = shown
	s.onHidden = hidden
}

// Init waits for the slideshow to lay out.
func (s *Slideshow) Init(ctx context.Context) error {
	s.rec.record("%s init", s.name)
	if s.initDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s init: %w", s.name, ctx.Err())
	case <-time.After(s.initDelay):
		return nil
	}
}

// RenderSlide shows the slide at the 0-based index. Moving to another slide
// resets fragments and reports the change.
func (s *Slideshow) RenderSlide(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.record("%s render %d", s.name, index)

	if index == s.slide {
		return
	}
	s.slide = index
	s.fragment = -1

	if fn := s.onSlide; fn != nil {
		s.d.post(func() { fn(index) })
	}
}

// GoToFragment shows fragments 0..index of the current slide.
func (s *Slideshow) GoToFragment(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.record("%s fragment %d", s.name, index)

	if n, ok := s.fragments[s.slide]; ok && index >= n {
		index = n - 1
	}
	if index < -1 {
		index = -1
	}

	shown, hidden := s.onShown, s.onHidden
	for i := s.fragment + 1; i <= index; i++ {
		if shown != nil {
			i := i
			s.d.post(func() { shown(i) })
		}
	}
	for i := s.fragment; i > index; i-- {
		if hidden != nil {
			i := i
			s.d.post(func() { hidden(i) })
		}
	}
	s.fragment = index
}

// Next advances to the following slide.
func (s *Slideshow) Next() {
	s.mu.Lock()
	next := s.slide + 1
	s.mu.Unlock()
	s.RenderSlide(next)
}

// Slide returns the 0-based index of the shown slide.
func (s *Slideshow) Slide() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slide
}

// Fragment returns the index of the last shown fragment, -1 for none.
func (s *Slideshow) Fragment() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fragment
}

// Article is a simulated scrollable article.
type Article struct {
	rec *Recorder
	d   dispatcher

	mu       sync.Mutex
	slide    int
	onScroll func(slide int)
}

// NewArticle creates an article scrolled to the top.
func NewArticle(rec *Recorder) *Article {
	return &Article{rec: rec, slide: 1}
}

// OnScroll registers the scroll-spy callback.
func (a *Article) OnScroll(fn func(slide int)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onScroll = fn
}

// ScrollToSlide implements backend.Scroller.
func (a *Article) ScrollToSlide(slide int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rec.record("article scroll %d", slide)

	a.slide = slide
	if fn := a.onScroll; fn != nil {
		a.d.post(func() { fn(slide) })
	}
}

// Slide returns the slide scrolled into view.
func (a *Article) Slide() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slide
}
