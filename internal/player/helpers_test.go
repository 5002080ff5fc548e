package player

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/agleyzer/slidecast/internal/backend/sim"
	"github.com/agleyzer/slidecast/internal/highlight"
	"github.com/agleyzer/slidecast/internal/narration"
	"github.com/agleyzer/slidecast/internal/timeline"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), &slog.HandlerOptions{Level: slog.LevelError}))
}

func fastOptions() Options {
	return Options{
		InitialView:              Article,
		ArticleSettle:            2 * time.Millisecond,
		PresentationSettle:       2 * time.Millisecond,
		VideoSettle:              5 * time.Millisecond,
		AudioPollInterval:        2 * time.Millisecond,
		VideoPollInterval:        2 * time.Millisecond,
		ReadyTimeout:             200 * time.Millisecond,
		InitTimeout:              time.Second,
		ArticleAdvanceDelay:      10 * time.Millisecond,
		PresentationAdvanceDelay: 10 * time.Millisecond,
		TrackInterval:            5 * time.Millisecond,
	}
}

// sixSlideDeck has two lines on most slides; slide 3 starts at 362s.
func sixSlideDeck() []narration.RawSlide {
	return []narration.RawSlide{
		{Index: 1, Lines: []narration.RawLine{
			{Text: "1.1", Start: "0", End: "30", StartVideo: "0", EndVideo: "30"},
			{Text: "1.2", Start: "30", End: "120", StartVideo: "30", EndVideo: "120"},
		}},
		{Index: 2, Lines: []narration.RawLine{
			{Text: "2.1", Start: "0", End: "100", StartVideo: "120", EndVideo: "220"},
			{Text: "2.2", Start: "100", End: "241", StartVideo: "220", EndVideo: "361"},
		}},
		{Index: 3, Lines: []narration.RawLine{
			{Text: "3.1", Start: "0", End: "20", StartVideo: "362", EndVideo: "382"},
			{Text: "3.2", Start: "20", End: "50", StartVideo: "382", EndVideo: "412"},
		}},
		{Index: 4, Lines: []narration.RawLine{
			{Text: "4.1", Start: "0", End: "40", StartVideo: "412", EndVideo: "452"},
		}},
		{Index: 5, Lines: []narration.RawLine{
			{Text: "5.1", Start: "0", End: "40", StartVideo: "452", EndVideo: "492"},
		}},
		{Index: 6, Lines: []narration.RawLine{
			{Text: "6.1", Start: "0", End: "30", StartVideo: "492", EndVideo: "522"},
			{Text: "6.2", Start: "30", End: "60", StartVideo: "522", EndVideo: "552"},
		}},
	}
}

type harness struct {
	t       *testing.T
	index   *narration.Index
	rig     *sim.Rig
	hl      *highlight.Broadcaster
	proj    *highlight.Projection
	session *Session
}

type harnessConfig struct {
	raw       []narration.RawSlide
	opts      Options
	rig       sim.RigConfig
	noConnect bool
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()

	logger := createTestLogger()
	if cfg.raw == nil {
		cfg.raw = sixSlideDeck()
	}
	if cfg.opts == (Options{}) {
		cfg.opts = fastOptions()
	}

	idx := narration.Build(cfg.raw, logger)
	if cfg.rig.Durations == nil {
		cfg.rig.Durations = sim.Durations(idx)
	}
	rig := sim.NewRig(cfg.rig, logger)

	hl := highlight.NewBroadcaster(logger)
	proj := highlight.NewProjection(idx)
	proj.Record()
	hl.AddRenderer(proj)

	be := Backends{
		Scroller:       rig.Article,
		ArticleAudio:   rig.AudioHandles(),
		ArticleSlides:  rig.SlideSlideshows(),
		Slideshow:      rig.Slideshow,
		SlideshowAudio: rig.SharedAudio,
		Video:          rig.Video,
	}

	session := New(timeline.New(idx, logger), hl, be, cfg.opts, logger)
	if !cfg.noConnect {
		rig.Connect(session)
	}

	return &harness{
		t:       t,
		index:   idx,
		rig:     rig,
		hl:      hl,
		proj:    proj,
		session: session,
	}
}

func (h *harness) line(slide, seq int) *narration.Line {
	h.t.Helper()
	line := h.index.Line(slide, seq)
	if line == nil {
		h.t.Fatalf("no line %d.%d", slide, seq)
	}
	return line
}

func (h *harness) current() *narration.Line {
	return h.hl.Current().Line
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func near(a, b float64) bool {
	d := a - b
	return d > -0.01 && d < 0.01
}

// commandsAfter returns the recorded commands following the last occurrence
// of marker, or nil when marker was never recorded.
func commandsAfter(cmds []string, marker string) []string {
	for i := len(cmds) - 1; i >= 0; i-- {
		if cmds[i] == marker {
			return cmds[i+1:]
		}
	}
	return nil
}
