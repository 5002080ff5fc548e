// Package cluster replicates the presenter's playback position to follower
// viewers over Raft.
package cluster

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hashicorp/raft"
)

func init() {
	// Register types for gob encoding/decoding
	gob.Register(PublishCommand{})
	gob.Register(InitializeCommand{})
}

// Position is where the presenter is in the deck.
type Position struct {
	// View is the presenter's view mode name.
	View string
	// Slide is the 1-based current slide.
	Slide int
	// Seq is the highlighted line within Slide, 0 for none.
	Seq int
	// Timestamp is the absolute deck time in seconds.
	Timestamp float64
	Playing   bool
}

// PresenterState is the state shared by all cluster nodes.
type PresenterState struct {
	Position Position
	// Revision increases with every published position.
	Revision uint64
	// SlideCount bounds valid slides; 0 disables the check.
	SlideCount int
}

// CommandType identifies the type of Raft command.
type CommandType uint8

const (
	// CommandPublish replaces the presenter position.
	CommandPublish CommandType = 1
	// CommandInitialize initializes the FSM state.
	CommandInitialize CommandType = 2
)

// Command represents a Raft log command.
type Command struct {
	Type CommandType
	Data any
}

// PublishCommand publishes a new presenter position.
type PublishCommand struct {
	Position Position
}

// InitializeCommand sets the initial state.
type InitializeCommand struct {
	State PresenterState
}

// PositionFSM implements the raft.FSM interface for the presenter position.
type PositionFSM struct {
	mu     sync.RWMutex
	state  PresenterState
	logger *slog.Logger
}

// NewPositionFSM creates a new PositionFSM.
func NewPositionFSM(logger *slog.Logger) *PositionFSM {
	return &PositionFSM{
		state:  PresenterState{Position: Position{Slide: 1}},
		logger: logger,
	}
}

// Apply applies a Raft log entry to the FSM.
func (f *PositionFSM) Apply(log *raft.Log) any {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(log.Data)).Decode(&cmd); err != nil {
		f.logger.Error("failed to decode command", "error", err)
		return fmt.Errorf("decode command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Type {
	case CommandPublish:
		return f.applyPublish(cmd.Data)
	case CommandInitialize:
		return f.applyInitialize(cmd.Data)
	default:
		f.logger.Error("unknown command type", "type", cmd.Type)
		return fmt.Errorf("unknown command type: %d", cmd.Type)
	}
}

func (f *PositionFSM) applyPublish(data any) any {
	pub, ok := data.(PublishCommand)
	if !ok {
		return fmt.Errorf("invalid publish command data")
	}

	pos := pub.Position
	if pos.Slide < 1 || (f.state.SlideCount > 0 && pos.Slide > f.state.SlideCount) {
		f.logger.Warn("rejected position with unknown slide", "slide", pos.Slide, "slides", f.state.SlideCount)
		return fmt.Errorf("slide %d out of range", pos.Slide)
	}
	if pos.Timestamp < 0 {
		pos.Timestamp = 0
	}

	f.state.Position = pos
	f.state.Revision++
	f.logger.Debug("published position",
		"revision", f.state.Revision,
		"view", pos.View,
		"slide", pos.Slide,
		"seq", pos.Seq,
		"timestamp", pos.Timestamp,
	)
	return nil
}

func (f *PositionFSM) applyInitialize(data any) any {
	initCmd, ok := data.(InitializeCommand)
	if !ok {
		return fmt.Errorf("invalid initialize command data")
	}

	f.state = initCmd.State
	f.logger.Info("initialized FSM state", "slides", f.state.SlideCount, "revision", f.state.Revision)
	return nil
}

// Snapshot returns an FSMSnapshot for creating a point-in-time snapshot.
func (f *PositionFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return &fsmSnapshot{state: f.state}, nil
}

// Restore restores the FSM state from a snapshot.
func (f *PositionFSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var state PresenterState
	if err := gob.NewDecoder(snapshot).Decode(&state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	f.state = state
	f.mu.Unlock()

	f.logger.Info("restored FSM state from snapshot", "revision", state.Revision, "slide", state.Position.Slide)
	return nil
}

// GetState returns a copy of the current FSM state.
func (f *PositionFSM) GetState() PresenterState {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.state
}

// fsmSnapshot implements raft.FSMSnapshot.
type fsmSnapshot struct {
	state PresenterState
}

// Persist writes the snapshot to the given sink.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := sink.Write(buf.Bytes()); err != nil {
		sink.Cancel()
		return fmt.Errorf("write snapshot: %w", err)
	}

	return sink.Close()
}

// Release releases any resources held by the snapshot.
func (s *fsmSnapshot) Release() {}

// EncodeCommand encodes a command for Raft submission.
func EncodeCommand(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}
