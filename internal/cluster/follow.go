package cluster

import (
	"context"
	"errors"
	"time"
)

// RunPublisher samples the local position every interval and publishes it
// while this node leads. Unchanged positions are not republished.
func (m *Manager) RunPublisher(ctx context.Context, interval time.Duration, source func() Position) error {
	m.logger.Info("starting position publisher", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Position
	published := false

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("stopping position publisher")
			return nil
		case <-ticker.C:
			if !m.IsLeader() {
				published = false
				continue
			}

			pos := source()
			if published && pos == last {
				continue
			}

			if err := m.Publish(pos); err != nil {
				if !errors.Is(err, ErrNotLeader) {
					m.logger.Warn("failed to publish position", "error", err)
				}
				continue
			}
			last, published = pos, true
		}
	}
}

// Follow polls the replicated state every interval and calls apply with
// each new revision while this node is a follower.
func (m *Manager) Follow(ctx context.Context, interval time.Duration, apply func(PresenterState)) error {
	m.logger.Info("following presenter", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seen uint64

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("stopping presenter follow")
			return nil
		case <-ticker.C:
			state := m.GetState()
			if m.IsLeader() {
				seen = state.Revision
				continue
			}
			if state.Revision == 0 || state.Revision == seen {
				continue
			}

			m.logger.Debug("applying presenter position",
				"revision", state.Revision,
				"slide", state.Position.Slide,
				"seq", state.Position.Seq,
			)
			seen = state.Revision
			apply(state)
		}
	}
}
