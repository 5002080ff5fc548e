package player

import (
	"context"
	"math"

	"github.com/agleyzer/slidecast/internal/narration"
)

// TogglePlayPause plays or pauses the active view's backend and returns
// whether it is now playing.
func (s *Session) TogglePlayPause() bool {
	s.mu.Lock()
	h := s.activeHandleLocked()
	if h == nil {
		view := s.view
		s.mu.Unlock()
		s.logger.Debug("no playable backend", "view", view)
		return false
	}

	playing := !h.Playing()
	if playing {
		if s.view == Article {
			s.pauseArticleExceptLocked(s.slide)
		}
		h.Play()
	} else {
		h.Pause()
	}
	s.mu.Unlock()

	s.publishPlayState(playing)
	return playing
}

// SeekGlobal moves playback to a fraction of the whole deck. The fraction is
// clamped to [0, 1].
func (s *Session) SeekGlobal(ctx context.Context, fraction float64) Outcome {
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	s.mu.Lock()
	target := fraction * s.index.TotalDuration()
	line := s.lookup.ResolveVideoTime(target)
	slide := s.index.FirstSlide()
	if line != nil {
		slide = line.Slide
	}
	crossing := slide != s.slide
	view := s.view
	t := s.beginLocked(ctx)
	s.mu.Unlock()

	s.logger.Info("seeking",
		"fraction", fraction,
		"time", target,
		"slide", slide,
		"crossesSlides", crossing,
	)

	var o Outcome
	switch view {
	case Video:
		o = s.cueVideo(t, slide, target, line)
	default:
		audioSlide, audioTime, ok := s.lookup.VideoToAudio(target)
		if !ok || audioSlide != slide {
			audioSlide, audioTime = slide, 0
		}
		c := cue{slide: audioSlide, at: audioTime, rewind: true, play: true, anchor: line}
		if view == Article {
			if crossing {
				c.settle = s.opts.ArticleSettle
			}
			o = s.cueArticle(t, c)
		} else {
			if crossing {
				c.settle = s.opts.PresentationSettle
			}
			o = s.cuePresentation(t, c)
		}
	}
	return s.finish(t, o)
}

// Next activates the line after the highlighted one, or the first line when
// nothing is highlighted. At the last line it is a no-op.
func (s *Session) Next(ctx context.Context) Outcome {
	return s.step(ctx, 1)
}

// Previous activates the line before the highlighted one, or the first line
// when nothing is highlighted. At the first line it is a no-op.
func (s *Session) Previous(ctx context.Context) Outcome {
	return s.step(ctx, -1)
}

func (s *Session) step(ctx context.Context, dir int) Outcome {
	if s.index.Len() == 0 {
		return s.setOutcome(OutcomeNoop)
	}

	var target *narration.Line
	current := s.hl.Current().Line
	if pos := s.index.Position(current); pos < 0 {
		target = s.index.At(0)
	} else {
		target = s.index.At(pos + dir)
	}

	if target == nil {
		s.logger.Debug("no line to step to", "direction", dir)
		return s.setOutcome(OutcomeNoop)
	}
	return s.ActivateLine(ctx, target)
}

// ActivateLine plays line in the active view, the same as clicking it.
func (s *Session) ActivateLine(ctx context.Context, line *narration.Line) Outcome {
	if s.index.Position(line) < 0 {
		s.logger.Warn("ignoring unknown line")
		return s.setOutcome(OutcomeNoop)
	}

	s.mu.Lock()
	t := s.beginLocked(ctx)
	view := s.view
	crossing := line.Slide != s.slide
	s.mu.Unlock()

	s.logger.Debug("activating line", "view", view, "slide", line.Slide, "seq", line.Seq)
	s.hl.Apply(line.Slide, line)

	var o Outcome
	switch view {
	case Article:
		o = s.cueArticle(t, cue{
			slide:  line.Slide,
			at:     line.Audio.Start,
			rewind: true,
			play:   true,
			anchor: line,
		})
	case Presentation:
		c := cue{
			slide:  line.Slide,
			at:     line.Audio.Start,
			rewind: true,
			play:   true,
			anchor: line,
		}
		if crossing {
			c.settle = s.opts.PresentationSettle
		}
		o = s.cuePresentation(t, c)
	case Video:
		at := line.Video.Start
		if !line.Video.Valid {
			at, _ = s.lookup.AudioToVideo(line.Slide, line.Audio.Start)
		}
		o = s.cueVideo(t, line.Slide, at, line)
	}
	return s.finish(t, o)
}

// NavigateToSlide makes slide current in the active view without starting
// playback.
func (s *Session) NavigateToSlide(ctx context.Context, slide int) Outcome {
	if !s.index.HasSlide(slide) {
		s.logger.Warn("ignoring unknown slide", "slide", slide)
		return s.setOutcome(OutcomeNoop)
	}

	s.mu.Lock()
	t := s.beginLocked(ctx)
	s.slide = slide
	view := s.view
	o := OutcomeSynced

	switch view {
	case Article:
		s.pauseArticleExceptLocked(slide)
		if s.be.Scroller != nil {
			s.be.Scroller.ScrollToSlide(slide)
		}
	case Presentation:
		if s.be.Slideshow != nil {
			s.be.Slideshow.RenderSlide(slide - 1)
		}
		if a := s.be.SlideshowAudio; a != nil && s.loadedAudio != slide {
			a.Load(slide)
			s.loadedAudio = slide
		}
	case Video:
		if v := s.be.Video; v != nil && v.Ready() {
			start, _ := s.index.SlideVideoStart(slide)
			v.Seek(start)
			s.timestamp = start
		} else {
			o = OutcomeDegraded
		}
	}
	s.mu.Unlock()

	// A line from the slide we left no longer matches what is shown.
	if current := s.hl.Current().Line; current != nil && current.Slide != slide {
		s.hl.ClearLine()
	}
	s.hl.SetActiveSlide(slide)
	s.hl.Expand(slide)
	s.publishTimestamp()

	if o == OutcomeDegraded {
		s.logger.Warn("video player not ready, slide seek skipped", "slide", slide)
	}
	return s.finish(t, o)
}
