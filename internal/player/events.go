package player

import (
	"time"

	"github.com/agleyzer/slidecast/internal/backend"
	"github.com/agleyzer/slidecast/internal/narration"
)

// fragmentFor maps a line to the slideshow fragment it reveals: the first
// line shows none, line k shows fragments up to k-2.
func fragmentFor(line *narration.Line) int {
	return line.Seq - 2
}

// ArticleTimeUpdate handles progress of the article audio of slide.
func (s *Session) ArticleTimeUpdate(slide int, t float64) {
	s.mu.Lock()
	if s.view != Article || !s.index.HasSlide(slide) {
		s.mu.Unlock()
		return
	}

	s.slide = slide
	if v, ok := s.lookup.AudioToVideo(slide, t); ok {
		s.timestamp = v
	}
	previous := s.hl.Current().Line
	line := s.resolveAudioLocked(slide, t, previous)
	if line != nil && line != previous {
		if show, ok := s.be.ArticleSlides[slide]; ok {
			show.GoToFragment(fragmentFor(line))
		}
	}
	s.mu.Unlock()

	s.hl.Apply(slide, line)
	s.publishTimestamp()
}

// PresentationTimeUpdate handles progress of the presentation audio.
func (s *Session) PresentationTimeUpdate(t float64) {
	s.mu.Lock()
	if s.view != Presentation {
		s.mu.Unlock()
		return
	}

	slide := s.slide
	if v, ok := s.lookup.AudioToVideo(slide, t); ok {
		s.timestamp = v
	}
	previous := s.hl.Current().Line
	line := s.resolveAudioLocked(slide, t, previous)
	if line != nil && line != previous && s.be.Slideshow != nil {
		s.be.Slideshow.GoToFragment(fragmentFor(line))
	}
	s.mu.Unlock()

	s.hl.Apply(slide, line)
	s.publishTimestamp()
}

// VideoTimeUpdate handles a polled video time.
func (s *Session) VideoTimeUpdate(t float64) {
	s.mu.Lock()
	if s.view != Video {
		s.mu.Unlock()
		return
	}

	s.timestamp = t
	line := s.resolveVideoLocked(t, s.hl.Current().Line)
	slide := s.slide
	if line != nil {
		slide = line.Slide
		s.slide = slide
	}
	s.mu.Unlock()

	s.hl.Apply(slide, line)
	s.publishTimestamp()
}

// ArticleEnded continues with the next slide's audio after a short pause.
func (s *Session) ArticleEnded(slide int) {
	s.mu.Lock()
	if s.view != Article {
		s.mu.Unlock()
		return
	}

	next := slide + 1
	if !s.index.HasSlide(next) {
		s.mu.Unlock()
		s.logger.Info("reached end of deck", "slide", slide)
		s.publishPlayState(false)
		return
	}

	s.slide = next
	if s.be.Scroller != nil {
		s.be.Scroller.ScrollToSlide(next)
	}
	s.scheduleAutoplayLocked(Article, next, s.opts.ArticleAdvanceDelay)
	s.mu.Unlock()

	s.hl.SetActiveSlide(next)
}

// PresentationEnded advances the slideshow and plays the next slide's audio.
func (s *Session) PresentationEnded() {
	s.mu.Lock()
	if s.view != Presentation {
		s.mu.Unlock()
		return
	}

	next := s.slide + 1
	if !s.index.HasSlide(next) {
		last := s.slide
		s.mu.Unlock()
		s.logger.Info("reached end of deck", "slide", last)
		s.publishPlayState(false)
		return
	}

	s.slide = next
	if s.be.Slideshow != nil {
		s.be.Slideshow.RenderSlide(next - 1)
	}
	if a := s.be.SlideshowAudio; a != nil && s.loadedAudio != next {
		a.Load(next)
		s.loadedAudio = next
	}
	s.scheduleAutoplayLocked(Presentation, next, s.opts.PresentationAdvanceDelay)
	s.mu.Unlock()

	s.hl.SetActiveSlide(next)
}

func (s *Session) scheduleAutoplayLocked(view ViewMode, slide int, delay time.Duration) {
	s.stopAutoplayLocked()

	gen := s.gen
	s.logger.Debug("scheduling autoplay", "view", view, "slide", slide, "delay", delay)
	s.autoplay = time.AfterFunc(delay, func() {
		s.autoplayFire(gen, view, slide)
	})
}

func (s *Session) autoplayFire(gen uint64, view ViewMode, slide int) {
	s.mu.Lock()
	if s.gen != gen || s.view != view || s.slide != slide {
		s.mu.Unlock()
		return
	}
	s.autoplay = nil

	var h backend.Handle
	switch view {
	case Article:
		h = s.be.ArticleAudio[slide]
		s.pauseArticleExceptLocked(slide)
	case Presentation:
		if s.be.SlideshowAudio != nil {
			h = s.be.SlideshowAudio
		}
	}
	if h != nil {
		h.Play()
	}
	s.mu.Unlock()

	if h != nil {
		s.publishPlayState(true)
	}
}

// SlideChanged handles the slideshow reporting a new 0-based slide.
func (s *Session) SlideChanged(index int) {
	slide := index + 1

	s.mu.Lock()
	if s.view != Presentation || !s.index.HasSlide(slide) {
		s.mu.Unlock()
		return
	}

	s.slide = slide
	s.fragment = -1
	if a := s.be.SlideshowAudio; a != nil && s.loadedAudio != slide {
		a.Load(slide)
		s.loadedAudio = slide
	}
	current := s.hl.Current().Line
	s.mu.Unlock()

	s.hl.SetActiveSlide(slide)
	s.hl.Expand(slide)
	if current != nil && current.Slide != slide {
		s.hl.ClearLine()
	}
}

// ArticleScrolled handles the article reporting the slide in view.
func (s *Session) ArticleScrolled(slide int) {
	s.mu.Lock()
	if s.view != Article || !s.index.HasSlide(slide) {
		s.mu.Unlock()
		return
	}
	s.slide = slide
	s.mu.Unlock()

	s.hl.SetActiveSlide(slide)
}

// FragmentShown records a revealed fragment.
func (s *Session) FragmentShown(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragment = index
}

// FragmentHidden records a hidden fragment.
func (s *Session) FragmentHidden(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragment = index - 1
}

// VideoStateChanged handles the player's state callback.
func (s *Session) VideoStateChanged(state backend.PlayerState) {
	s.mu.Lock()
	active := s.view == Video
	s.mu.Unlock()

	if active {
		s.publishPlayState(state == backend.StatePlaying)
	}
}
