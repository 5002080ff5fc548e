package player

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agleyzer/slidecast/internal/backend"
	"github.com/agleyzer/slidecast/internal/highlight"
	"github.com/agleyzer/slidecast/internal/narration"
	"github.com/agleyzer/slidecast/internal/timeline"
)

var (
	errNotReady   = errors.New("backend not ready")
	errSuperseded = errors.New("superseded by a newer operation")
)

// Backends are the collaborators a session drives. Any of them may be nil;
// operations needing a missing backend degrade instead of failing.
type Backends struct {
	// Scroller scrolls the article view.
	Scroller backend.Scroller
	// ArticleAudio holds the per-slide audio of the article view.
	ArticleAudio map[int]backend.Handle
	// ArticleSlides holds the per-slide embedded slideshows of the article
	// view, used for fragment navigation.
	ArticleSlides map[int]backend.Slideshow
	// Slideshow is the presentation view.
	Slideshow backend.Slideshow
	// SlideshowAudio is the audio element of the presentation view.
	SlideshowAudio backend.SharedAudio
	// Video is the external video player.
	Video backend.Handle
}

type viewInit struct {
	state   InitState
	init    backend.Initializer
	attempt *initAttempt
}

type initAttempt struct {
	done chan struct{}
	err  error
}

// task is one user-initiated operation. A newer task supersedes it.
type task struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Session is the single source of truth for the current view, slide and
// time. It is created once and mutated only through its methods.
type Session struct {
	ID string

	index  *narration.Index
	lookup *timeline.Lookup
	hl     *highlight.Broadcaster
	be     Backends
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	view        ViewMode
	slide       int
	timestamp   float64
	carry       Position
	hasCarry    bool
	fragment    int
	loadedAudio int
	playing     bool
	gen         uint64
	cancel      context.CancelFunc
	autoplay    *time.Timer
	inits       map[ViewMode]*viewInit
	outcome     Outcome

	listenerMu    sync.Mutex
	tsListeners   []func(current, total float64)
	playListeners []func(playing bool)
}

// New creates a session positioned at the first slide of the deck.
func New(lookup *timeline.Lookup, hl *highlight.Broadcaster, be Backends, opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	s := &Session{
		ID:       uuid.NewString(),
		index:    lookup.Index(),
		lookup:   lookup,
		hl:       hl,
		be:       be,
		opts:     opts,
		view:     opts.InitialView,
		fragment: -1,
		inits:    make(map[ViewMode]*viewInit, len(Modes)),
	}
	s.slide = s.index.FirstSlide()
	s.logger = logger.With("session", s.ID)

	s.inits[Article] = &viewInit{state: Ready}
	s.inits[Presentation] = newViewInit(be.Slideshow)
	s.inits[Video] = newViewInit(be.Video)

	s.logger.Info("created player session",
		"view", s.view,
		"slides", s.index.SlideCount(),
		"lines", s.index.Len(),
		"totalDuration", s.index.TotalDuration(),
	)

	return s
}

func newViewInit(b any) *viewInit {
	if init, ok := b.(backend.Initializer); ok && init != nil {
		return &viewInit{state: Uninitialized, init: init}
	}
	return &viewInit{state: Ready}
}

// Start prepares the initial view and cues it at the current slide without
// starting playback.
func (s *Session) Start(ctx context.Context) Outcome {
	s.mu.Lock()
	t := s.beginLocked(ctx)
	mode := s.view
	pos := Position{Slide: s.slide}
	attempt := s.startInitLocked(mode)
	s.mu.Unlock()

	if err := s.awaitInit(t, attempt); err != nil {
		if errors.Is(err, errSuperseded) {
			return s.finish(t, OutcomeSuperseded)
		}
		return s.finish(t, s.degrade(t, pos, "view init failed"))
	}
	return s.finish(t, s.syncTo(t, mode, pos))
}

// Index returns the narration index.
func (s *Session) Index() *narration.Index {
	return s.index
}

// Lookup returns the timeline lookup.
func (s *Session) Lookup() *timeline.Lookup {
	return s.lookup
}

// Highlight returns the highlight broadcaster.
func (s *Session) Highlight() *highlight.Broadcaster {
	return s.hl
}

// View returns the active view.
func (s *Session) View() ViewMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Slide returns the current slide.
func (s *Session) Slide() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slide
}

// InitState returns the init state of a view.
func (s *Session) InitState(mode ViewMode) InitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vi, ok := s.inits[mode]; ok {
		return vi.state
	}
	return Uninitialized
}

// LastOutcome returns the outcome of the latest operation.
func (s *Session) LastOutcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Carry returns the last carried-over position.
func (s *Session) Carry() (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carry, s.hasCarry
}

// OnTimestamp registers a listener for global timestamp updates.
func (s *Session) OnTimestamp(fn func(current, total float64)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.tsListeners = append(s.tsListeners, fn)
}

// OnPlayState registers a listener for play/pause changes.
func (s *Session) OnPlayState(fn func(playing bool)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.playListeners = append(s.playListeners, fn)
}

// LineRef identifies a narration line in snapshots.
type LineRef struct {
	Slide int    `json:"slide"`
	Seq   int    `json:"seq"`
	Text  string `json:"text"`
}

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	ID          string            `json:"id"`
	View        string            `json:"view"`
	Slide       int               `json:"slide"`
	Timestamp   float64           `json:"timestamp"`
	Progress    Progress          `json:"progress"`
	Playing     bool              `json:"playing"`
	Fragment    int               `json:"fragment"`
	Init        map[string]string `json:"init"`
	LastOutcome string            `json:"lastOutcome"`
	Generation  uint64            `json:"generation"`
	Line        *LineRef          `json:"line,omitempty"`
}

// State returns a snapshot of the session.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ID:          s.ID,
		View:        s.view.String(),
		Slide:       s.slide,
		Timestamp:   s.timestamp,
		Progress:    newProgress(s.timestamp, s.index.TotalDuration()),
		Fragment:    s.fragment,
		Init:        make(map[string]string, len(s.inits)),
		LastOutcome: s.outcome.String(),
		Generation:  s.gen,
	}
	if h := s.activeHandleLocked(); h != nil {
		snap.Playing = h.Playing()
	}
	for mode, vi := range s.inits {
		snap.Init[mode.String()] = vi.state.String()
	}
	s.mu.Unlock()

	if line := s.hl.Current().Line; line != nil {
		snap.Line = &LineRef{Slide: line.Slide, Seq: line.Seq, Text: line.Text}
	}
	return snap
}

// GlobalTimestamp returns the current absolute time in seconds.
func (s *Session) GlobalTimestamp() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timestamp
}

// Progress returns the progress bar state.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newProgress(s.timestamp, s.index.TotalDuration())
}

// beginLocked starts a task, superseding the previous one.
func (s *Session) beginLocked(parent context.Context) *task {
	if s.cancel != nil {
		s.cancel()
	}
	s.stopAutoplayLocked()

	s.gen++
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	return &task{gen: s.gen, ctx: ctx, cancel: cancel}
}

func (s *Session) staleLocked(t *task) bool {
	return t.gen != s.gen || t.ctx.Err() != nil
}

func (s *Session) stale(t *task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleLocked(t)
}

// sleep waits d and reports whether t is still current.
func (s *Session) sleep(t *task, d time.Duration) bool {
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-t.ctx.Done():
			return false
		case <-timer.C:
		}
	}
	return !s.stale(t)
}

// finish records the outcome of t unless a newer task exists.
func (s *Session) finish(t *task, o Outcome) Outcome {
	s.mu.Lock()
	if t.gen == s.gen {
		s.outcome = o
	}
	s.mu.Unlock()

	t.cancel()

	if o == OutcomeSuperseded {
		s.logger.Debug("operation superseded", "generation", t.gen)
	}
	return o
}

func (s *Session) setOutcome(o Outcome) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = o
	return o
}

func (s *Session) stopAutoplayLocked() {
	if s.autoplay != nil {
		s.autoplay.Stop()
		s.autoplay = nil
	}
}

// activeHandleLocked returns the handle playback controls act on.
func (s *Session) activeHandleLocked() backend.Handle {
	switch s.view {
	case Article:
		if h, ok := s.be.ArticleAudio[s.slide]; ok {
			return h
		}
	case Presentation:
		if s.be.SlideshowAudio != nil {
			return s.be.SlideshowAudio
		}
	case Video:
		if s.be.Video != nil && s.be.Video.Ready() {
			return s.be.Video
		}
	}
	return nil
}

// pauseArticleExceptLocked keeps at most one article audio playing.
func (s *Session) pauseArticleExceptLocked(slide int) {
	for _, sl := range s.index.Slides() {
		if sl.Index == slide {
			continue
		}
		if h, ok := s.be.ArticleAudio[sl.Index]; ok && h.Playing() {
			h.Pause()
		}
	}
}

// stopAllMediaLocked pauses every backend and rewinds the audio.
func (s *Session) stopAllMediaLocked() {
	for _, sl := range s.index.Slides() {
		if h, ok := s.be.ArticleAudio[sl.Index]; ok {
			h.Pause()
			h.Seek(0)
		}
	}
	if a := s.be.SlideshowAudio; a != nil {
		a.Pause()
		a.Seek(0)
	}
	if v := s.be.Video; v != nil && v.Ready() {
		v.Pause()
	}
}

func (s *Session) normalizeLocked(pos Position) Position {
	if !s.index.HasSlide(pos.Slide) {
		pos.Slide = s.index.FirstSlide()
		pos.Line = nil
	}
	if pos.Line != nil && pos.Line.Slide != pos.Slide {
		pos.Line = nil
	}
	if pos.AudioTime < 0 {
		pos.AudioTime = 0
	}
	if pos.VideoTime < 0 {
		pos.VideoTime = 0
	}
	return pos
}

func (s *Session) publishTimestamp() {
	s.mu.Lock()
	current, total := s.timestamp, s.index.TotalDuration()
	s.mu.Unlock()

	s.listenerMu.Lock()
	listeners := make([]func(float64, float64), len(s.tsListeners))
	copy(listeners, s.tsListeners)
	s.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(current, total)
	}
}

func (s *Session) publishPlayState(playing bool) {
	s.mu.Lock()
	changed := s.playing != playing
	s.playing = playing
	s.mu.Unlock()

	if !changed {
		return
	}

	s.listenerMu.Lock()
	listeners := make([]func(bool), len(s.playListeners))
	copy(listeners, s.playListeners)
	s.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(playing)
	}
}
