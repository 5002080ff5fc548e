package player

import (
	"context"
	"testing"
	"time"

	"github.com/agleyzer/slidecast/internal/backend/sim"
	"github.com/agleyzer/slidecast/internal/narration"
)

func TestFragmentFor(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	tests := []struct {
		slide, seq int
		want       int
	}{
		{1, 1, -1},
		{1, 2, 0},
		{3, 2, 0},
	}
	for _, tt := range tests {
		if got := fragmentFor(h.line(tt.slide, tt.seq)); got != tt.want {
			t.Errorf("fragmentFor(%d.%d) = %d, want %d", tt.slide, tt.seq, got, tt.want)
		}
	}
}

func TestArticleTimeUpdate_MovesHighlightAndFragment(t *testing.T) {
	h := newHarness(t, harnessConfig{rig: sim.RigConfig{Fragments: map[int]int{3: 2}}})
	ctx := context.Background()

	h.session.ActivateLine(ctx, h.line(3, 1))
	h.rig.ArticleAudio[3].Advance(25)

	if h.current() != h.line(3, 2) {
		t.Fatalf("highlight = %v, want 3.2", h.current())
	}
	if got := h.rig.ArticleSlides[3].Fragment(); got != 0 {
		t.Errorf("article slideshow fragment = %d, want 0", got)
	}
	if got := h.session.GlobalTimestamp(); got != 387 {
		t.Errorf("timestamp = %v, want 387", got)
	}
}

func TestArticleTimeUpdate_GapClearsHighlight(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	h.session.ActivateLine(ctx, h.line(3, 2))
	h.session.ArticleTimeUpdate(3, 55)

	if h.current() != nil {
		t.Errorf("highlight = %v, want none past the last line", h.current())
	}
	if !h.hl.Current().Expanded[3] {
		t.Error("clearing the line should keep the panel open")
	}
}

func TestTimeUpdate_InactiveViewIgnored(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	h.session.ActivateLine(ctx, h.line(1, 1))
	h.session.PresentationTimeUpdate(35)
	h.session.VideoTimeUpdate(400)

	if h.current() != h.line(1, 1) {
		t.Errorf("highlight = %v, want 1.1", h.current())
	}
	if got := h.session.GlobalTimestamp(); got != 0 {
		t.Errorf("timestamp = %v, want 0", got)
	}
}

func TestVideoTimeUpdate_OverlapPrefersHighestSlide(t *testing.T) {
	raw := []narration.RawSlide{
		{Index: 1, Lines: []narration.RawLine{
			{Text: "1.1", Start: "0", End: "50", StartVideo: "0", EndVideo: "50"},
		}},
		{Index: 2, Lines: []narration.RawLine{
			{Text: "2.1", Start: "0", End: "40", StartVideo: "40", EndVideo: "80"},
		}},
	}
	h := newHarness(t, harnessConfig{raw: raw})
	ctx := context.Background()

	h.session.SwitchView(ctx, Video)
	h.session.ActivateLine(ctx, h.line(1, 1))
	h.session.VideoTimeUpdate(10)
	if h.current() != h.line(1, 1) {
		t.Fatalf("highlight at 10 = %v, want 1.1", h.current())
	}

	// 1.1 still contains 45, but slide 2 wins the overlap.
	h.session.VideoTimeUpdate(45)
	if h.current() != h.line(2, 1) {
		t.Errorf("highlight at 45 = %v, want 2.1", h.current())
	}
	if h.session.Slide() != 2 {
		t.Errorf("slide = %d, want 2", h.session.Slide())
	}
}

func TestVideoTimeUpdate_KeepsLineAtSameSlideBoundary(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	h.session.SwitchView(ctx, Video)
	h.session.ActivateLine(ctx, h.line(3, 2))

	// 3.1 ends where 3.2 starts; the highlighted 3.2 stays.
	h.session.VideoTimeUpdate(382)
	if h.current() != h.line(3, 2) {
		t.Errorf("highlight at 382 = %v, want 3.2", h.current())
	}

	// 1.2 ends where 2.1 starts; the higher slide takes over.
	h.session.ActivateLine(ctx, h.line(1, 2))
	h.session.VideoTimeUpdate(120)
	if h.current() != h.line(2, 1) {
		t.Errorf("highlight at 120 = %v, want 2.1", h.current())
	}
}

func TestPresentationTimeUpdate_AdvancesFragments(t *testing.T) {
	h := newHarness(t, harnessConfig{rig: sim.RigConfig{Fragments: map[int]int{1: 1}}})
	ctx := context.Background()

	h.session.SwitchView(ctx, Presentation)
	h.session.ActivateLine(ctx, h.line(1, 1))
	h.rig.SharedAudio.Advance(35)

	if h.current() != h.line(1, 2) {
		t.Fatalf("highlight = %v, want 1.2", h.current())
	}
	if got := h.rig.Slideshow.Fragment(); got != 0 {
		t.Errorf("slideshow fragment = %d, want 0", got)
	}
	waitFor(t, "fragment event", func() bool { return h.session.State().Fragment == 0 })
}

func TestArticleEnded_PlaysNextSlide(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	h.session.ActivateLine(ctx, h.line(1, 2))
	h.rig.ArticleAudio[1].Advance(100)

	waitFor(t, "next slide audio", h.rig.ArticleAudio[2].Playing)

	if h.session.Slide() != 2 {
		t.Errorf("slide = %d, want 2", h.session.Slide())
	}
	if h.rig.Article.Slide() != 2 {
		t.Errorf("article scrolled to %d, want 2", h.rig.Article.Slide())
	}
	if h.rig.ArticleAudio[1].Playing() {
		t.Error("finished audio should not be playing")
	}
}

func TestArticleEnded_LastSlideStops(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	h.session.ActivateLine(ctx, h.line(6, 2))
	h.rig.ArticleAudio[6].Advance(100)
	time.Sleep(30 * time.Millisecond)

	if h.session.Slide() != 6 {
		t.Errorf("slide = %d, want 6", h.session.Slide())
	}
	for slide, a := range h.rig.ArticleAudio {
		if a.Playing() {
			t.Errorf("audio%d playing after the deck ended", slide)
		}
	}
}

func TestArticleEnded_AutoplayCancelledByNavigation(t *testing.T) {
	opts := fastOptions()
	opts.ArticleAdvanceDelay = 50 * time.Millisecond
	h := newHarness(t, harnessConfig{opts: opts})
	ctx := context.Background()

	h.session.ActivateLine(ctx, h.line(1, 2))
	h.rig.ArticleAudio[1].Advance(100)
	h.session.NavigateToSlide(ctx, 4)
	time.Sleep(80 * time.Millisecond)

	if h.rig.ArticleAudio[2].Playing() {
		t.Error("autoplay fired after the user navigated away")
	}
	if h.session.Slide() != 4 {
		t.Errorf("slide = %d, want 4", h.session.Slide())
	}
}

func TestPresentationEnded_AdvancesSlideshow(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	h.session.SwitchView(ctx, Presentation)
	if !h.session.TogglePlayPause() {
		t.Fatal("toggle should start the presentation audio")
	}
	h.rig.SharedAudio.Advance(200)

	waitFor(t, "next slide audio", func() bool {
		return h.rig.SharedAudio.Slide() == 2 && h.rig.SharedAudio.Playing()
	})

	if h.rig.Slideshow.Slide() != 1 {
		t.Errorf("slideshow at %d, want 1", h.rig.Slideshow.Slide())
	}
	if h.session.Slide() != 2 {
		t.Errorf("slide = %d, want 2", h.session.Slide())
	}
	if got := h.hl.Current().ActiveSlide; got != 2 {
		t.Errorf("active slide = %d, want 2", got)
	}
}

func TestSlideChanged_LoadsAudioAndClearsForeignLine(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	h.session.SwitchView(ctx, Presentation)
	h.session.ActivateLine(ctx, h.line(1, 2))

	h.rig.Slideshow.RenderSlide(2)

	waitFor(t, "slide change", func() bool {
		return h.session.Slide() == 3 && h.current() == nil
	})
	if h.rig.SharedAudio.Slide() != 3 {
		t.Errorf("shared audio slide = %d, want 3", h.rig.SharedAudio.Slide())
	}
	st := h.hl.Current()
	if st.ActiveSlide != 3 || !st.Expanded[3] {
		t.Errorf("highlight state = %+v, want slide 3 active and expanded", st)
	}
	if h.session.State().Fragment != -1 {
		t.Errorf("fragment = %d, want reset to -1", h.session.State().Fragment)
	}
}

func TestSlideChanged_IgnoredOutsidePresentation(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	h.session.SlideChanged(3)
	if h.session.Slide() != 1 {
		t.Errorf("slide = %d, want 1", h.session.Slide())
	}
}

func TestFragmentEvents(t *testing.T) {
	h := newHarness(t, harnessConfig{noConnect: true})

	h.session.FragmentShown(2)
	if got := h.session.State().Fragment; got != 2 {
		t.Errorf("after shown(2) fragment = %d, want 2", got)
	}
	h.session.FragmentHidden(2)
	if got := h.session.State().Fragment; got != 1 {
		t.Errorf("after hidden(2) fragment = %d, want 1", got)
	}
	h.session.FragmentHidden(0)
	if got := h.session.State().Fragment; got != -1 {
		t.Errorf("after hidden(0) fragment = %d, want -1", got)
	}
}

func TestVideoStateChanged_PublishesPlayState(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	states := make(chan bool, 8)
	h.session.OnPlayState(func(playing bool) { states <- playing })

	h.session.SwitchView(ctx, Video)
	h.rig.VideoPlayer.Pause()

	timeout := time.After(time.Second)
	for {
		select {
		case playing := <-states:
			if !playing && !h.rig.Video.Playing() {
				return
			}
		case <-timeout:
			t.Fatal("pause was not published")
		}
	}
}

func TestRunVideoTracker(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	h.session.SwitchView(ctx, Video)

	trackCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- h.session.RunVideoTracker(trackCtx) }()

	h.rig.VideoPlayer.Advance(35)
	waitFor(t, "tracked highlight", func() bool { return h.current() == h.line(1, 2) })

	if got := h.session.GlobalTimestamp(); got != 35 {
		t.Errorf("timestamp = %v, want 35", got)
	}

	h.rig.VideoPlayer.Advance(330)
	waitFor(t, "tracked slide change", func() bool { return h.session.Slide() == 3 })
	if h.current() != h.line(3, 1) {
		t.Errorf("highlight = %v, want 3.1", h.current())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunVideoTracker returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("tracker did not stop")
	}
}
