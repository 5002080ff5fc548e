package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agleyzer/slidecast/internal/backend"
)

// Video is a simulated external video player.
// Seeks land Drift seconds away from the target, like a player snapping to
// the nearest keyframe.
type Video struct {
	rec *Recorder
	d   dispatcher

	mu         sync.Mutex
	duration   float64
	current    float64
	state      backend.PlayerState
	drift      float64
	initDelay  time.Duration
	readyDelay time.Duration
	initErr    error
	onReady    func()
	onState    func(backend.PlayerState)
}

// VideoConfig configures a simulated video player.
type VideoConfig struct {
	Duration   float64
	Drift      float64
	InitDelay  time.Duration
	ReadyDelay time.Duration
	InitErr    error
}

// NewVideo creates a video player.
func NewVideo(cfg VideoConfig, rec *Recorder) *Video {
	return &Video{
		rec:        rec,
		duration:   cfg.Duration,
		state:      backend.StateUnstarted,
		drift:      cfg.Drift,
		initDelay:  cfg.InitDelay,
		readyDelay: cfg.ReadyDelay,
		initErr:    cfg.InitErr,
	}
}

// OnReady registers the ready callback.
func (v *Video) OnReady(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onReady = fn
}

// OnStateChange registers the state callback.
func (v *Video) OnStateChange(fn func(backend.PlayerState)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onState = fn
}

// Init loads the player. The ready callback fires ReadyDelay after Init
// returns successfully.
func (v *Video) Init(ctx context.Context) error {
	v.mu.Lock()
	initDelay, readyDelay, initErr := v.initDelay, v.readyDelay, v.initErr
	v.mu.Unlock()

	v.rec.record("video init")

	if initDelay > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("video init: %w", ctx.Err())
		case <-time.After(initDelay):
		}
	}
	if initErr != nil {
		return initErr
	}

	time.AfterFunc(readyDelay, func() {
		v.d.post(func() {
			v.mu.Lock()
			fn := v.onReady
			v.mu.Unlock()
			if fn != nil {
				fn()
			}
		})
	})
	return nil
}

// SetInitErr changes the error returned by the next Init.
func (v *Video) SetInitErr(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.initErr = err
}

func (v *Video) SeekTo(t float64, allowSeekAhead bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rec.record("video seek %g", t)

	t += v.drift
	if t < 0 {
		t = 0
	}
	if v.duration > 0 && t > v.duration {
		t = v.duration
	}
	v.current = t
}

func (v *Video) Play() {
	v.setState("video play", backend.StatePlaying)
}

func (v *Video) Pause() {
	v.setState("video pause", backend.StatePaused)
}

func (v *Video) setState(cmd string, state backend.PlayerState) {
	v.mu.Lock()
	v.rec.record("%s", cmd)
	changed := v.state != state
	v.state = state
	fn := v.onState
	v.mu.Unlock()

	if changed && fn != nil {
		v.d.post(func() { fn(state) })
	}
}

func (v *Video) CurrentTime() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

func (v *Video) State() backend.PlayerState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Advance plays dt seconds of video.
func (v *Video) Advance(dt float64) {
	v.mu.Lock()
	if v.state != backend.StatePlaying {
		v.mu.Unlock()
		return
	}

	v.current += dt
	if v.duration <= 0 || v.current < v.duration {
		v.mu.Unlock()
		return
	}

	v.current = v.duration
	v.state = backend.StateEnded
	fn := v.onState
	v.mu.Unlock()

	if fn != nil {
		fn(backend.StateEnded)
	}
}
