// Package player keeps the article, presentation and video views of a
// narrated deck on the same slide and time, and exposes the playback
// controls shared by all three.
package player

import (
	"fmt"
	"strings"
	"time"

	"github.com/agleyzer/slidecast/internal/narration"
)

// ViewMode selects which backend is driving playback.
type ViewMode int

const (
	Article ViewMode = iota
	Presentation
	Video
)

// Modes lists every view mode.
var Modes = []ViewMode{Article, Presentation, Video}

func (m ViewMode) String() string {
	switch m {
	case Article:
		return "article"
	case Presentation:
		return "presentation"
	case Video:
		return "video"
	default:
		return fmt.Sprintf("view(%d)", int(m))
	}
}

// ParseViewMode parses a view mode name, case-insensitively.
func ParseViewMode(s string) (ViewMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "article":
		return Article, nil
	case "presentation":
		return Presentation, nil
	case "video":
		return Video, nil
	default:
		return 0, fmt.Errorf("unknown view mode %q", s)
	}
}

// InitState tracks one-time backend setup per view.
type InitState int

const (
	Uninitialized InitState = iota
	Initializing
	Ready
)

func (s InitState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Outcome is the result of a synchronizing operation.
type Outcome int

const (
	// OutcomeNoop means nothing had to change and no command was issued.
	OutcomeNoop Outcome = iota
	// OutcomeSynced means the backend reached the requested position.
	OutcomeSynced
	// OutcomeDegraded means the backend never became ready; the slide was
	// set but the seek was skipped.
	OutcomeDegraded
	// OutcomeSuperseded means a newer operation took over.
	OutcomeSuperseded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoop:
		return "noop"
	case OutcomeSynced:
		return "synced"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Position is a playback position carried from one view to another.
type Position struct {
	Slide int
	// AudioTime is slide-local.
	AudioTime float64
	// VideoTime is absolute.
	VideoTime float64
	// Resume is set when the position came from a highlighted line and
	// playback should continue there.
	Resume bool
	// Line is the highlighted line the position was taken from, if any.
	Line *narration.Line
}

// Options tunes the settle delays and readiness polling.
// Zero fields take the defaults from DefaultOptions.
type Options struct {
	InitialView ViewMode

	ArticleSettle      time.Duration
	PresentationSettle time.Duration
	VideoSettle        time.Duration

	AudioPollInterval time.Duration
	VideoPollInterval time.Duration
	ReadyTimeout      time.Duration
	InitTimeout       time.Duration

	ArticleAdvanceDelay      time.Duration
	PresentationAdvanceDelay time.Duration

	TrackInterval time.Duration
}

// DefaultOptions returns the timings used by the viewer.
func DefaultOptions() Options {
	return Options{
		InitialView:              Article,
		ArticleSettle:            300 * time.Millisecond,
		PresentationSettle:       400 * time.Millisecond,
		VideoSettle:              300 * time.Millisecond,
		AudioPollInterval:        50 * time.Millisecond,
		VideoPollInterval:        100 * time.Millisecond,
		ReadyTimeout:             5 * time.Second,
		InitTimeout:              30 * time.Second,
		ArticleAdvanceDelay:      500 * time.Millisecond,
		PresentationAdvanceDelay: 300 * time.Millisecond,
		TrackInterval:            100 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&o.ArticleSettle, d.ArticleSettle)
	fill(&o.PresentationSettle, d.PresentationSettle)
	fill(&o.VideoSettle, d.VideoSettle)
	fill(&o.AudioPollInterval, d.AudioPollInterval)
	fill(&o.VideoPollInterval, d.VideoPollInterval)
	fill(&o.ReadyTimeout, d.ReadyTimeout)
	fill(&o.InitTimeout, d.InitTimeout)
	fill(&o.ArticleAdvanceDelay, d.ArticleAdvanceDelay)
	fill(&o.PresentationAdvanceDelay, d.PresentationAdvanceDelay)
	fill(&o.TrackInterval, d.TrackInterval)
	return o
}
