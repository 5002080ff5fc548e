package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agleyzer/slidecast/internal/backend"
	"github.com/agleyzer/slidecast/internal/narration"
)

// SwitchView makes target the active view and carries the current position
// over to it. It blocks until the new view is synced, degraded or
// superseded by a later operation.
func (s *Session) SwitchView(ctx context.Context, target ViewMode) Outcome {
	s.mu.Lock()
	if target == s.view {
		s.outcome = OutcomeNoop
		s.mu.Unlock()
		s.logger.Debug("already in view", "view", target)
		return OutcomeNoop
	}

	from := s.view
	carry := s.captureCarryLocked()
	t := s.beginLocked(ctx)
	s.stopAllMediaLocked()
	s.view = target
	s.carry, s.hasCarry = carry, true
	attempt := s.startInitLocked(target)
	s.mu.Unlock()

	s.hl.ClearLine()
	s.publishPlayState(false)

	s.logger.Info("switching view",
		"from", from,
		"to", target,
		"slide", carry.Slide,
		"audioTime", carry.AudioTime,
		"videoTime", carry.VideoTime,
		"resume", carry.Resume,
	)

	if err := s.awaitInit(t, attempt); err != nil {
		if errors.Is(err, errSuperseded) {
			return s.finish(t, OutcomeSuperseded)
		}
		return s.finish(t, s.degrade(t, carry, "view init failed, continuing degraded", "error", err))
	}
	return s.finish(t, s.syncTo(t, target, carry))
}

// SyncTo cues the active view at pos. It returns OutcomeNoop when mode is
// not the active view.
func (s *Session) SyncTo(ctx context.Context, mode ViewMode, pos Position) Outcome {
	s.mu.Lock()
	if mode != s.view {
		s.outcome = OutcomeNoop
		s.mu.Unlock()
		s.logger.Debug("sync ignored for inactive view", "view", mode)
		return OutcomeNoop
	}
	pos = s.normalizeLocked(pos)
	t := s.beginLocked(ctx)
	attempt := s.startInitLocked(mode)
	s.mu.Unlock()

	if err := s.awaitInit(t, attempt); err != nil {
		if errors.Is(err, errSuperseded) {
			return s.finish(t, OutcomeSuperseded)
		}
		return s.finish(t, s.degrade(t, pos, "view init failed, continuing degraded", "error", err))
	}
	return s.finish(t, s.syncTo(t, mode, pos))
}

// captureCarryLocked takes the position to restore in the next view.
func (s *Session) captureCarryLocked() Position {
	if line := s.hl.Current().Line; line != nil {
		pos := Position{Slide: line.Slide, Resume: true, Line: line}
		if line.Audio.Valid {
			pos.AudioTime = line.Audio.Start
		}
		if line.Video.Valid {
			pos.VideoTime = line.Video.Start
		} else if v, ok := s.lookup.AudioToVideo(line.Slide, pos.AudioTime); ok {
			pos.VideoTime = v
		}
		return s.normalizeLocked(pos)
	}

	if s.hasCarry && s.carry.Slide == s.slide {
		return s.carry
	}
	return s.normalizeLocked(Position{Slide: s.slide})
}

func (s *Session) syncTo(t *task, mode ViewMode, pos Position) Outcome {
	switch mode {
	case Article:
		return s.cueArticle(t, cue{
			slide:  pos.Slide,
			at:     pos.AudioTime,
			play:   pos.Resume,
			settle: s.opts.ArticleSettle,
			anchor: pos.Line,
		})
	case Presentation:
		return s.cuePresentation(t, cue{
			slide:  pos.Slide,
			at:     pos.AudioTime,
			play:   pos.Resume,
			settle: s.opts.PresentationSettle,
			anchor: pos.Line,
		})
	case Video:
		at := pos.VideoTime
		if at <= 0 {
			at, _ = s.index.SlideVideoStart(pos.Slide)
		}
		return s.cueVideo(t, pos.Slide, at, pos.Line)
	default:
		return OutcomeNoop
	}
}

// cue describes where to put an audio backend.
type cue struct {
	slide int
	at    float64
	// rewind seeks even when at is zero.
	rewind bool
	play   bool
	settle time.Duration
	// anchor is the line expected at the cue point.
	anchor *narration.Line
}

func (c cue) seeks() bool {
	return c.at > 0 || c.rewind
}

func (s *Session) cueArticle(t *task, c cue) Outcome {
	s.mu.Lock()
	if s.staleLocked(t) {
		s.mu.Unlock()
		return OutcomeSuperseded
	}
	s.slide = c.slide
	if s.be.Scroller != nil {
		s.be.Scroller.ScrollToSlide(c.slide)
	}
	s.mu.Unlock()
	s.hl.SetActiveSlide(c.slide)

	if !s.sleep(t, c.settle) {
		return OutcomeSuperseded
	}

	s.mu.Lock()
	if s.staleLocked(t) {
		s.mu.Unlock()
		return OutcomeSuperseded
	}
	h, ok := s.be.ArticleAudio[c.slide]
	if !ok {
		s.mu.Unlock()
		return s.degrade(t, Position{Slide: c.slide}, "no article audio for slide")
	}
	if c.seeks() {
		h.Seek(c.at)
	}
	if c.play {
		s.pauseArticleExceptLocked(c.slide)
		h.Play()
	}
	s.mu.Unlock()

	if c.play {
		s.publishPlayState(true)
	}
	s.rederiveAudio(t, c.slide, h, c.anchor, c.play || c.seeks())
	return OutcomeSynced
}

func (s *Session) cuePresentation(t *task, c cue) Outcome {
	s.mu.Lock()
	if s.staleLocked(t) {
		s.mu.Unlock()
		return OutcomeSuperseded
	}
	s.slide = c.slide
	if s.be.Slideshow != nil {
		s.be.Slideshow.RenderSlide(c.slide - 1)
	}
	audio := s.be.SlideshowAudio
	if audio != nil && s.loadedAudio != c.slide {
		audio.Load(c.slide)
		s.loadedAudio = c.slide
	}
	attempt := s.startInitLocked(Presentation)
	s.mu.Unlock()
	s.hl.SetActiveSlide(c.slide)

	if o, ok := s.awaitView(t, attempt, c.slide); !ok {
		return o
	}
	if !s.sleep(t, c.settle) {
		return OutcomeSuperseded
	}
	if audio == nil {
		return s.degrade(t, Position{Slide: c.slide}, "no presentation audio")
	}

	switch err := s.waitReady(t, audio, s.opts.AudioPollInterval); {
	case errors.Is(err, errNotReady):
		return s.degrade(t, Position{Slide: c.slide}, "presentation audio not ready, seek skipped",
			"timeout", s.opts.ReadyTimeout)
	case err != nil:
		return OutcomeSuperseded
	}

	s.mu.Lock()
	if s.staleLocked(t) {
		s.mu.Unlock()
		return OutcomeSuperseded
	}
	if c.seeks() {
		audio.Seek(c.at)
	}
	if c.play {
		audio.Play()
	}
	s.mu.Unlock()

	if c.play {
		s.publishPlayState(true)
	}
	s.rederiveAudio(t, c.slide, audio, c.anchor, c.play || c.seeks())
	return OutcomeSynced
}

func (s *Session) cueVideo(t *task, slide int, at float64, anchor *narration.Line) Outcome {
	s.mu.Lock()
	if s.staleLocked(t) {
		s.mu.Unlock()
		return OutcomeSuperseded
	}
	s.slide = slide
	v := s.be.Video
	attempt := s.startInitLocked(Video)
	s.mu.Unlock()
	s.hl.SetActiveSlide(slide)

	if o, ok := s.awaitView(t, attempt, slide); !ok {
		return o
	}
	if v == nil {
		return s.degrade(t, Position{Slide: slide}, "no video player")
	}

	switch err := s.waitReady(t, v, s.opts.VideoPollInterval); {
	case errors.Is(err, errNotReady):
		return s.degrade(t, Position{Slide: slide}, "video player not ready, seek skipped",
			"timeout", s.opts.ReadyTimeout)
	case err != nil:
		return OutcomeSuperseded
	}

	s.mu.Lock()
	if s.staleLocked(t) {
		s.mu.Unlock()
		return OutcomeSuperseded
	}
	v.Seek(at)
	v.Play()
	s.timestamp = at
	s.mu.Unlock()

	s.publishPlayState(true)
	s.publishTimestamp()

	// The player may land away from the requested time.
	if !s.sleep(t, s.opts.VideoSettle) {
		return OutcomeSuperseded
	}
	s.rederiveVideo(t, v, anchor)
	return OutcomeSynced
}

// rederiveAudio updates the timestamp from the time the audio actually
// reports, and the highlight too when mark is set.
func (s *Session) rederiveAudio(t *task, slide int, h backend.Handle, anchor *narration.Line, mark bool) {
	s.mu.Lock()
	if s.staleLocked(t) {
		s.mu.Unlock()
		return
	}
	now := h.CurrentTime()
	line := s.resolveAudioLocked(slide, now, anchor)
	if v, ok := s.lookup.AudioToVideo(slide, now); ok {
		s.timestamp = v
	}
	s.mu.Unlock()

	if mark {
		s.hl.Apply(slide, line)
	}
	s.publishTimestamp()
}

// rederiveVideo sets the highlight from the time the player reports.
func (s *Session) rederiveVideo(t *task, v backend.Handle, anchor *narration.Line) {
	s.mu.Lock()
	if s.staleLocked(t) {
		s.mu.Unlock()
		return
	}
	now := v.CurrentTime()
	line := s.resolveVideoLocked(now, anchor)
	s.timestamp = now
	slide := s.slide
	if line != nil {
		slide = line.Slide
		s.slide = slide
	}
	s.mu.Unlock()

	s.logger.Debug("video position settled", "time", now, "slide", slide)

	s.hl.Apply(slide, line)
	s.publishTimestamp()
}

// resolveAudioLocked prefers the anchor when it still contains t, so a
// shared boundary between two lines does not step back a line.
func (s *Session) resolveAudioLocked(slide int, t float64, anchor *narration.Line) *narration.Line {
	if anchor != nil && anchor.Slide == slide && anchor.Audio.Contains(t) {
		return anchor
	}
	return s.lookup.FindByAudioTime(slide, t)
}

// resolveVideoLocked follows FindByVideoTime, so overlapping slides resolve
// to the highest one. The anchor only wins over a line of its own slide,
// where it shares a boundary with the line before it.
func (s *Session) resolveVideoLocked(t float64, anchor *narration.Line) *narration.Line {
	line := s.lookup.FindByVideoTime(t)
	if line != nil && anchor != nil && anchor.Slide >= line.Slide && anchor.Video.Contains(t) {
		return anchor
	}
	return line
}

// degrade settles on the start of pos.Slide after a backend failed to get
// ready.
func (s *Session) degrade(t *task, pos Position, msg string, args ...any) Outcome {
	s.mu.Lock()
	if s.staleLocked(t) {
		s.mu.Unlock()
		return OutcomeSuperseded
	}
	view := s.view
	s.slide = pos.Slide
	start, _ := s.index.SlideVideoStart(pos.Slide)
	s.timestamp = start
	s.mu.Unlock()

	s.hl.SetActiveSlide(pos.Slide)
	s.publishTimestamp()

	s.logger.Warn(msg, append([]any{"view", view, "slide", pos.Slide}, args...)...)
	return OutcomeDegraded
}

// waitReady polls h until it is ready, the retry budget runs out
// (errNotReady), or t is superseded (errSuperseded).
func (s *Session) waitReady(t *task, h backend.Handle, interval time.Duration) error {
	retries := uint64(s.opts.ReadyTimeout / interval)
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), retries),
		t.ctx,
	)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		if s.stale(t) {
			return backoff.Permanent(errSuperseded)
		}
		if !h.Ready() {
			return errNotReady
		}
		return nil
	}, b)

	if attempts > 1 {
		s.logger.Debug("waited for backend", "attempts", attempts, "interval", interval, "error", err)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNotReady):
		return errNotReady
	default:
		return errSuperseded
	}
}

// startInitLocked returns the pending init of mode, starting it if needed.
// It returns nil when the view is already ready.
func (s *Session) startInitLocked(mode ViewMode) *initAttempt {
	vi, ok := s.inits[mode]
	if !ok {
		return nil
	}

	switch vi.state {
	case Ready:
		return nil
	case Initializing:
		return vi.attempt
	}

	a := &initAttempt{done: make(chan struct{})}
	vi.state = Initializing
	vi.attempt = a

	s.logger.Info("initializing view", "view", mode)
	go s.runInit(mode, vi, a)

	return a
}

func (s *Session) runInit(mode ViewMode, vi *viewInit, a *initAttempt) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.InitTimeout)
	defer cancel()

	started := time.Now()
	err := vi.init.Init(ctx)

	s.mu.Lock()
	vi.attempt = nil
	if err != nil {
		vi.state = Uninitialized
	} else {
		vi.state = Ready
	}
	s.mu.Unlock()

	if err != nil {
		a.err = fmt.Errorf("init %s view: %w", mode, err)
		s.logger.Warn("view init failed", "view", mode, "error", err)
	} else {
		s.logger.Info("view initialized", "view", mode, "elapsed", time.Since(started))
	}
	close(a.done)
}

// awaitView waits for a pending init of the view being cued. A failed init
// degrades to the start of slide; ok is false when the cue must stop.
func (s *Session) awaitView(t *task, a *initAttempt, slide int) (o Outcome, ok bool) {
	err := s.awaitInit(t, a)
	switch {
	case err == nil:
		return OutcomeSynced, true
	case errors.Is(err, errSuperseded):
		return OutcomeSuperseded, false
	}
	return s.degrade(t, Position{Slide: slide}, "view init failed, continuing degraded", "error", err), false
}

// awaitInit blocks until a finishes or t is superseded.
func (s *Session) awaitInit(t *task, a *initAttempt) error {
	if a == nil {
		return nil
	}

	select {
	case <-a.done:
		if a.err != nil {
			return a.err
		}
		if s.stale(t) {
			return errSuperseded
		}
		return nil
	case <-t.ctx.Done():
		return errSuperseded
	}
}
