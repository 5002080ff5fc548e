package cluster

import (
	"fmt"
	"net"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-hclog"
)

// Defaults applied by NewManager to zero timing fields.
const (
	DefaultHeartbeatTimeout  = time.Second
	DefaultElectionTimeout   = time.Second
	DefaultSnapshotInterval  = 2 * time.Minute
	DefaultSnapshotThreshold = 8192
)

// Config describes one presenter node.
type Config struct {
	// RaftID names the node in logs and on /cluster.
	RaftID string `validate:"required"`
	// BindAddr is both the Raft listen address and the node's server ID,
	// so it must match one entry of Peers.
	BindAddr string `validate:"required,raftaddr"`
	// Peers lists every voter, this node included.
	Peers []string `validate:"required,min=1,dive,raftaddr"`

	HeartbeatTimeout  time.Duration `validate:"gte=0"`
	ElectionTimeout   time.Duration `validate:"gte=0"`
	SnapshotInterval  time.Duration `validate:"gte=0"`
	SnapshotThreshold uint64

	// LogLevel turns on Raft's own hclog output. Empty keeps it silent.
	LogLevel string `validate:"omitempty,hclevel"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// hostname_port rejects port 0, which tests bind to.
	_ = v.RegisterValidation("raftaddr", func(fl validator.FieldLevel) bool {
		_, _, err := net.SplitHostPort(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("hclevel", func(fl validator.FieldLevel) bool {
		return hclog.LevelFromString(fl.Field().String()) != hclog.NoLevel
	})
	return v
}

// Validate checks c and fills in the timing defaults.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("cluster config: %w", err)
	}

	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.ElectionTimeout == 0 {
		c.ElectionTimeout = DefaultElectionTimeout
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = DefaultSnapshotInterval
	}
	if c.SnapshotThreshold == 0 {
		c.SnapshotThreshold = DefaultSnapshotThreshold
	}
	return nil
}
