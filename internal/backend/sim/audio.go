package sim

import (
	"sync"
	"time"
)

// Audio is a simulated audio element. A shared audio element switches its
// source with Load and becomes ready after a delay.
type Audio struct {
	name string
	rec  *Recorder

	mu         sync.Mutex
	durations  map[int]float64
	duration   float64
	current    float64
	playing    bool
	ready      bool
	readyDelay time.Duration
	slide      int
	loads      uint64
	onTime     func(t float64)
	onEnded    func()
}

// NewAudio creates a ready audio element of the given length in seconds.
func NewAudio(name string, duration float64, rec *Recorder) *Audio {
	return &Audio{
		name:     name,
		rec:      rec,
		duration: duration,
		ready:    true,
	}
}

// NewSharedAudio creates an audio element whose source follows the slide.
// durations maps slide index to source length.
func NewSharedAudio(name string, durations map[int]float64, readyDelay time.Duration, rec *Recorder) *Audio {
	return &Audio{
		name:       name,
		rec:        rec,
		durations:  durations,
		readyDelay: readyDelay,
	}
}

// OnTimeUpdate registers the timeupdate callback.
func (a *Audio) OnTimeUpdate(fn func(t float64)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onTime = fn
}

// OnEnded registers the ended callback.
func (a *Audio) OnEnded(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEnded = fn
}

// SetReady forces the readiness flag.
func (a *Audio) SetReady(ready bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ready = ready
}

// Load switches the source to the audio of slide.
func (a *Audio) Load(slide int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rec.record("%s load %d", a.name, slide)

	a.slide = slide
	a.duration = a.durations[slide]
	a.current = 0
	a.playing = false
	a.loads++

	if a.readyDelay <= 0 {
		a.ready = true
		return
	}

	a.ready = false
	load := a.loads
	time.AfterFunc(a.readyDelay, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.loads == load {
			a.ready = true
		}
	})
}

// Slide returns the slide of the loaded source.
func (a *Audio) Slide() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slide
}

func (a *Audio) Play() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rec.record("%s play", a.name)
	a.playing = true
}

func (a *Audio) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rec.record("%s pause", a.name)
	a.playing = false
}

func (a *Audio) Seek(t float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rec.record("%s seek %g", a.name, t)

	if t < 0 {
		t = 0
	}
	if a.duration > 0 && t > a.duration {
		t = a.duration
	}
	a.current = t
}

func (a *Audio) CurrentTime() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *Audio) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

func (a *Audio) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing
}

// Advance plays dt seconds of audio and reports the new time. Reaching the
// end stops playback and reports ended.
func (a *Audio) Advance(dt float64) {
	a.mu.Lock()
	if !a.playing || !a.ready {
		a.mu.Unlock()
		return
	}

	a.current += dt
	ended := false
	if a.duration > 0 && a.current >= a.duration {
		a.current = a.duration
		a.playing = false
		ended = true
	}
	now, onTime, onEnded := a.current, a.onTime, a.onEnded
	a.mu.Unlock()

	if onTime != nil {
		onTime(now)
	}
	if ended && onEnded != nil {
		onEnded()
	}
}
