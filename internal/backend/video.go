package backend

import (
	"context"
	"log/slog"
	"sync"
)

// PlayerState is the state reported by an external video player.
type PlayerState int

const (
	StateUnstarted PlayerState = -1
	StateEnded     PlayerState = 0
	StatePlaying   PlayerState = 1
	StatePaused    PlayerState = 2
	StateBuffering PlayerState = 3
	StateCued      PlayerState = 5
)

func (s PlayerState) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateEnded:
		return "ended"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateCued:
		return "cued"
	default:
		return "unknown"
	}
}

// VideoPlayer is the external video player API.
type VideoPlayer interface {
	SeekTo(t float64, allowSeekAhead bool)
	Play()
	Pause()
	CurrentTime() float64
	State() PlayerState
}

// Video adapts a VideoPlayer to a Handle. The player is unusable until
// MarkReady is called from its ready callback.
type Video struct {
	player VideoPlayer
	logger *slog.Logger

	mu        sync.RWMutex
	ready     bool
	state     PlayerState
	listeners []func(PlayerState)
}

// NewVideo wraps player.
func NewVideo(player VideoPlayer, logger *slog.Logger) *Video {
	if logger == nil {
		logger = slog.Default()
	}
	return &Video{
		player: player,
		logger: logger,
		state:  StateUnstarted,
	}
}

// Init runs the player's own setup when it has one.
func (v *Video) Init(ctx context.Context) error {
	if init, ok := v.player.(Initializer); ok {
		return init.Init(ctx)
	}
	return nil
}

// MarkReady is the player's onReady callback.
func (v *Video) MarkReady() {
	v.mu.Lock()
	v.ready = true
	v.mu.Unlock()

	v.logger.Info("video player ready")
}

// StateChanged is the player's onStateChange callback.
func (v *Video) StateChanged(state PlayerState) {
	v.mu.Lock()
	v.state = state
	listeners := make([]func(PlayerState), len(v.listeners))
	copy(listeners, v.listeners)
	v.mu.Unlock()

	v.logger.Debug("video state changed", "state", state)

	for _, fn := range listeners {
		fn(state)
	}
}

// OnStateChange registers a listener for player state changes.
func (v *Video) OnStateChange(fn func(PlayerState)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listeners = append(v.listeners, fn)
}

// Ready implements Handle.
func (v *Video) Ready() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ready
}

// Play implements Handle. Commands before ready are dropped.
func (v *Video) Play() {
	if !v.Ready() {
		v.logger.Debug("video not ready, dropping play")
		return
	}
	v.player.Play()
}

// Pause implements Handle.
func (v *Video) Pause() {
	if !v.Ready() {
		return
	}
	v.player.Pause()
}

// Seek implements Handle, allowing the player to fetch ahead.
func (v *Video) Seek(t float64) {
	if !v.Ready() {
		v.logger.Debug("video not ready, dropping seek", "time", t)
		return
	}
	v.player.SeekTo(t, true)
}

// CurrentTime implements Handle. It is the time the player reports, which
// may differ from the last seek target.
func (v *Video) CurrentTime() float64 {
	if !v.Ready() {
		return 0
	}
	return v.player.CurrentTime()
}

// Playing implements Handle.
func (v *Video) Playing() bool {
	if !v.Ready() {
		return false
	}
	return v.player.State() == StatePlaying
}

// LastState returns the state from the most recent StateChanged callback.
func (v *Video) LastState() PlayerState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}
