// Package cluster replicates the presenter's position to follower nodes over
// Raft, so several slidecast instances show the same slide and line.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/raft"
)

// ErrNotLeader is returned when a follower tries to publish.
var ErrNotLeader = errors.New("not the cluster leader")

var (
	errNotStarted = errors.New("cluster not started")
	errClosed     = errors.New("cluster is shut down")
)

const (
	applyTimeout     = 5 * time.Second
	transportTimeout = 10 * time.Second
	transportPool    = 3
	leaderPoll       = 100 * time.Millisecond
)

// Manager owns one Raft node and its PositionFSM.
type Manager struct {
	cfg    Config
	fsm    *PositionFSM
	logger *slog.Logger

	mu        sync.RWMutex
	node      *raft.Raft
	transport *raft.NetworkTransport
	closed    bool
}

// NewManager validates cfg and returns an unstarted manager.
func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Manager{
		cfg:    cfg,
		fsm:    NewPositionFSM(logger),
		logger: logger.With("raft_id", cfg.RaftID),
	}, nil
}

// Start opens the transport, starts Raft on in-memory stores and
// bootstraps the configured voters. Bootstrapping an already formed
// cluster is not an error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}
	if m.node != nil {
		return fmt.Errorf("cluster already started")
	}

	transport, err := m.listen()
	if err != nil {
		return err
	}

	store := raft.NewInmemStore()
	node, err := raft.NewRaft(m.raftConfig(), m.fsm, store, store, raft.NewInmemSnapshotStore(), transport)
	if err != nil {
		transport.Close()
		return fmt.Errorf("create raft: %w", err)
	}
	m.node, m.transport = node, transport

	if err := node.BootstrapCluster(m.voters()).Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
		// A node restarted into a running cluster can still join it.
		m.logger.Error("failed to bootstrap cluster", "error", err)
	}

	m.logger.Info("cluster started", "bind", m.cfg.BindAddr, "peers", len(m.cfg.Peers))
	return nil
}

func (m *Manager) raftConfig() *raft.Config {
	rc := raft.DefaultConfig()
	// Server IDs are addresses so every node derives the same voter set.
	rc.LocalID = raft.ServerID(m.cfg.BindAddr)
	rc.HeartbeatTimeout = m.cfg.HeartbeatTimeout
	rc.ElectionTimeout = m.cfg.ElectionTimeout
	rc.LeaderLeaseTimeout = m.cfg.HeartbeatTimeout
	rc.SnapshotInterval = m.cfg.SnapshotInterval
	rc.SnapshotThreshold = m.cfg.SnapshotThreshold
	rc.Logger = raftLogger(os.Stderr, m.cfg.LogLevel)
	return rc
}

func (m *Manager) listen() (*raft.NetworkTransport, error) {
	addr, err := net.ResolveTCPAddr("tcp", m.cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}

	t, err := raft.NewTCPTransport(m.cfg.BindAddr, addr, transportPool, transportTimeout, nil)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	return t, nil
}

func (m *Manager) voters() raft.Configuration {
	servers := make([]raft.Server, len(m.cfg.Peers))
	for i, peer := range m.cfg.Peers {
		servers[i] = raft.Server{
			ID:       raft.ServerID(peer),
			Address:  raft.ServerAddress(peer),
			Suffrage: raft.Voter,
		}
	}
	return raft.Configuration{Servers: servers}
}

// Publish replicates pos to every node. Only the leader may publish.
func (m *Manager) Publish(pos Position) error {
	node, err := m.running()
	if err != nil {
		return err
	}
	if node.State() != raft.Leader {
		return ErrNotLeader
	}

	return m.apply(node, Command{Type: CommandPublish, Data: PublishCommand{Position: pos}})
}

// Initialize resets the replicated state, normally to the deck's slide
// count with no position yet.
func (m *Manager) Initialize(state PresenterState) error {
	node, err := m.running()
	if err != nil {
		return err
	}

	return m.apply(node, Command{Type: CommandInitialize, Data: InitializeCommand{State: state}})
}

func (m *Manager) apply(node *raft.Raft, cmd Command) error {
	data, err := EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	f := node.Apply(data, applyTimeout)
	if err := f.Error(); err != nil {
		return fmt.Errorf("apply command: %w", err)
	}
	// The FSM reports rejected commands through the response.
	if err, ok := f.Response().(error); ok && err != nil {
		return fmt.Errorf("apply command: %w", err)
	}
	return nil
}

// running returns the Raft node or why there is none.
func (m *Manager) running() (*raft.Raft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case m.closed:
		return nil, errClosed
	case m.node == nil:
		return nil, errNotStarted
	}
	return m.node, nil
}

func (m *Manager) raftNode() *raft.Raft {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.node
}

// GetState returns the locally applied presenter state.
func (m *Manager) GetState() PresenterState {
	return m.fsm.GetState()
}

// IsLeader reports whether this node currently leads.
func (m *Manager) IsLeader() bool {
	node := m.raftNode()
	return node != nil && node.State() == raft.Leader
}

// LeaderAddr returns the Raft address of the current leader, or "".
func (m *Manager) LeaderAddr() string {
	node := m.raftNode()
	if node == nil {
		return ""
	}
	addr, _ := node.LeaderWithID()
	return string(addr)
}

// State names the node's Raft role: Follower, Candidate, Leader,
// Shutdown, or NotStarted.
func (m *Manager) State() string {
	node := m.raftNode()
	if node == nil {
		return "NotStarted"
	}
	return node.State().String()
}

// Peers returns the configured voter addresses.
func (m *Manager) Peers() []string {
	return m.cfg.Peers
}

// NodeID returns the configured node name.
func (m *Manager) NodeID() string {
	return m.cfg.RaftID
}

// Shutdown stops Raft and closes the transport. It is safe to call twice.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.node != nil {
		if err := m.node.Shutdown().Error(); err != nil {
			m.logger.Error("failed to shutdown raft", "error", err)
			return fmt.Errorf("shutdown raft: %w", err)
		}
	}
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			m.logger.Error("failed to close transport", "error", err)
			return fmt.Errorf("close transport: %w", err)
		}
	}

	m.logger.Info("cluster shut down")
	return nil
}

// WaitForLeader blocks until some node is known to lead or ctx ends.
func (m *Manager) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(leaderPoll)
	defer ticker.Stop()

	for m.LeaderAddr() == "" {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
