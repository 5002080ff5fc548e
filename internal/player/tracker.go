package player

import (
	"context"
	"time"
)

// RunVideoTracker polls the video player, which has no progress event,
// while the video view is active. It returns when ctx is cancelled.
func (s *Session) RunVideoTracker(ctx context.Context) error {
	s.logger.Info("starting video time tracking", "interval", s.opts.TrackInterval)

	ticker := time.NewTicker(s.opts.TrackInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping video time tracking")
			return nil
		case <-ticker.C:
			s.trackVideo()
		}
	}
}

func (s *Session) trackVideo() {
	s.mu.Lock()
	v := s.be.Video
	if s.view != Video || v == nil || !v.Ready() || !v.Playing() {
		s.mu.Unlock()
		return
	}
	now := v.CurrentTime()
	s.mu.Unlock()

	s.VideoTimeUpdate(now)
}
