package cluster

import (
	"io"

	"github.com/hashicorp/go-hclog"
)

// raftLogger returns the hclog logger handed to Raft. An empty level
// discards everything; Raft is chatty at info during elections.
func raftLogger(out io.Writer, level string) hclog.Logger {
	opts := &hclog.LoggerOptions{
		Name:   "raft",
		Level:  hclog.Off,
		Output: io.Discard,
	}
	if level != "" {
		opts.Level = hclog.LevelFromString(level)
		opts.Output = out
	}
	if opts.Level == hclog.NoLevel {
		opts.Level = hclog.Info
	}
	return hclog.New(opts)
}
