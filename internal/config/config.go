// Package config loads daemon settings from SLIDECAST_* environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix.
const Prefix = "SLIDECAST"

// Config holds the daemon configuration.
type Config struct {
	Port    int    `envconfig:"PORT" default:"8080" validate:"gte=1,lte=65535"`
	View    string `envconfig:"VIEW" default:"article" validate:"oneof=article presentation video"`
	Verbose bool   `envconfig:"VERBOSE" default:"false"`
	// Video overrides the deck's video reference in the chapter playlist.
	Video   string `envconfig:"VIDEO"`

	Playback PlaybackConfig
	Raft     RaftConfig
}

// PlaybackConfig tunes the simulated backends and readiness polling.
type PlaybackConfig struct {
	Tick              time.Duration `envconfig:"TICK" default:"100ms" validate:"gt=0"`
	ReadyTimeout      time.Duration `envconfig:"READY_TIMEOUT" default:"5s" validate:"gt=0"`
	InitTimeout       time.Duration `envconfig:"INIT_TIMEOUT" default:"30s" validate:"gt=0"`
	VideoPollInterval time.Duration `envconfig:"VIDEO_POLL" default:"100ms" validate:"gt=0"`
	AudioPollInterval time.Duration `envconfig:"AUDIO_POLL" default:"50ms" validate:"gt=0"`
	// VideoReadyDelay is how long the simulated video player takes to
	// report ready once loaded.
	VideoReadyDelay   time.Duration `envconfig:"VIDEO_READY_DELAY" default:"200ms" validate:"gte=0"`
	SharedReadyDelay  time.Duration `envconfig:"SHARED_READY_DELAY" default:"100ms" validate:"gte=0"`
}

// RaftConfig enables presenter position replication when ID is set.
type RaftConfig struct {
	ID              string        `envconfig:"ID"`
	Bind            string        `envconfig:"BIND" validate:"required_with=ID"`
	Peers           []string      `envconfig:"PEERS" validate:"required_with=ID,dive,hostname_port"`
	LogLevel        string        `envconfig:"LOG" validate:"omitempty,oneof=trace debug info warn error"`
	PublishInterval time.Duration `envconfig:"PUBLISH_INTERVAL" default:"250ms" validate:"gt=0"`
}

// Enabled reports whether clustering is configured.
func (r RaftConfig) Enabled() bool {
	return r.ID != ""
}

var validate = validator.New()

// Load reads envFile (ignored when empty or missing), then the environment,
// and validates the result. Variables already set in the environment win
// over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints. Call it again after applying flag
// overrides.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
