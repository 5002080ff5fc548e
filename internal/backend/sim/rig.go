package sim

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/agleyzer/slidecast/internal/backend"
	"github.com/agleyzer/slidecast/internal/narration"
)

// Events receives backend events.
type Events interface {
	ArticleTimeUpdate(slide int, t float64)
	ArticleEnded(slide int)
	ArticleScrolled(slide int)
	PresentationTimeUpdate(t float64)
	PresentationEnded()
	SlideChanged(index int)
	FragmentShown(index int)
	FragmentHidden(index int)
	VideoStateChanged(state backend.PlayerState)
}

// RigConfig describes a full set of simulated backends.
type RigConfig struct {
	// Durations maps slide index to its audio length in seconds.
	Durations map[int]float64
	// Fragments maps slide index to its fragment count.
	Fragments map[int]int
	// SharedReadyDelay is how long the presentation audio takes to load.
	SharedReadyDelay time.Duration
	// SlideshowInit is how long the presentation takes to initialize.
	SlideshowInit time.Duration
	Video         VideoConfig
	Tick          time.Duration
}

// Rig is every simulated backend the player needs, sharing one recorder
// and one clock.
type Rig struct {
	Recorder      *Recorder
	Article       *Article
	ArticleAudio  map[int]*Audio
	ArticleSlides map[int]*Slideshow
	Slideshow     *Slideshow
	SharedAudio   *Audio
	VideoPlayer   *Video
	Video         *backend.Video
	Clock         *Clock
}

// NewRig builds the backends described by cfg.
func NewRig(cfg RigConfig, logger *slog.Logger) *Rig {
	if logger == nil {
		logger = slog.Default()
	}
	tick := cfg.Tick
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}

	rec := &Recorder{}
	r := &Rig{
		Recorder:      rec,
		Article:       NewArticle(rec),
		ArticleAudio:  make(map[int]*Audio, len(cfg.Durations)),
		ArticleSlides: make(map[int]*Slideshow, len(cfg.Durations)),
		SharedAudio:   NewSharedAudio("shared", cfg.Durations, cfg.SharedReadyDelay, rec),
		VideoPlayer:   NewVideo(cfg.Video, rec),
	}
	r.Video = backend.NewVideo(r.VideoPlayer, logger)
	r.Clock = NewClock(tick, logger, r.SharedAudio, r.VideoPlayer)

	// Fragment counts are keyed by 0-based slide in the slideshow.
	zeroBased := make(map[int]int, len(cfg.Fragments))
	for slide, n := range cfg.Fragments {
		zeroBased[slide-1] = n
	}
	r.Slideshow = NewSlideshow("presentation", zeroBased, cfg.SlideshowInit, rec)

	for slide, d := range cfg.Durations {
		a := NewAudio(audioName(slide), d, rec)
		r.ArticleAudio[slide] = a
		r.Clock.Add(a)

		// Each article slide embeds its own slideshow showing only that slide.
		r.ArticleSlides[slide] = NewSlideshow(slideshowName(slide), map[int]int{0: cfg.Fragments[slide]}, 0, rec)
	}

	r.VideoPlayer.OnReady(r.Video.MarkReady)
	r.VideoPlayer.OnStateChange(r.Video.StateChanged)

	return r
}

// Connect routes every backend event to ev.
func (r *Rig) Connect(ev Events) {
	r.Article.OnScroll(ev.ArticleScrolled)
	r.Slideshow.OnSlideChanged(ev.SlideChanged)
	r.Slideshow.OnFragment(ev.FragmentShown, ev.FragmentHidden)
	r.SharedAudio.OnTimeUpdate(ev.PresentationTimeUpdate)
	r.SharedAudio.OnEnded(ev.PresentationEnded)
	r.Video.OnStateChange(ev.VideoStateChanged)

	for slide, a := range r.ArticleAudio {
		slide := slide
		a.OnTimeUpdate(func(t float64) { ev.ArticleTimeUpdate(slide, t) })
		a.OnEnded(func() { ev.ArticleEnded(slide) })
	}
}

// AudioHandles returns the article audio players keyed by slide.
func (r *Rig) AudioHandles() map[int]backend.Handle {
	out := make(map[int]backend.Handle, len(r.ArticleAudio))
	for slide, a := range r.ArticleAudio {
		out[slide] = a
	}
	return out
}

// SlideSlideshows returns the embedded article slideshows keyed by slide.
func (r *Rig) SlideSlideshows() map[int]backend.Slideshow {
	out := make(map[int]backend.Slideshow, len(r.ArticleSlides))
	for slide, s := range r.ArticleSlides {
		out[slide] = s
	}
	return out
}

// Durations returns the audio length of every slide: the probed length when
// known, else the end of its last narration line.
func Durations(idx *narration.Index) map[int]float64 {
	out := make(map[int]float64, idx.SlideCount())
	for _, slide := range idx.Slides() {
		d := slide.AudioDuration
		if d <= 0 {
			for _, line := range slide.Lines {
				if line.Audio.Valid && line.Audio.End > d {
					d = line.Audio.End
				}
			}
		}
		out[slide.Index] = d
	}
	return out
}

func audioName(slide int) string {
	return "audio" + strconv.Itoa(slide)
}

func slideshowName(slide int) string {
	return "reveal" + strconv.Itoa(slide)
}
