package session

import (
	"errors"
	"time"

	"github.com/teslashibe/go-gaze/pkg/analytics"
	"github.com/teslashibe/go-gaze/pkg/eyetracker"
	"github.com/teslashibe/go-gaze/pkg/interaction"
)

// Config holds every engine threshold plus orchestrator limits.
type Config struct {
	Tracker     eyetracker.Config
	Interaction interaction.Config
	Analytics   analytics.Config

	MaxSessions      int           // Open beyond this fails with a CapacityError
	IdleTimeout      time.Duration // Sessions without samples for this long are evicted
	GCInterval       time.Duration // How often idle sessions are checked
	SnapshotInterval time.Duration // Attention snapshot and heatmap compaction period
	InboxSize        int           // Per-session queue depth
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		Tracker:          eyetracker.DefaultConfig(),
		Interaction:      interaction.DefaultConfig(),
		Analytics:        analytics.DefaultConfig(),
		MaxSessions:      256,
		IdleTimeout:      2 * time.Minute,
		GCInterval:       10 * time.Second,
		SnapshotInterval: time.Second,
		InboxSize:        512,
	}
}

// Validate checks the orchestrator limits and every component config.
func (c Config) Validate() error {
	if err := c.Tracker.Validate(); err != nil {
		return err
	}
	if err := c.Interaction.Validate(); err != nil {
		return err
	}
	if err := c.Analytics.Validate(); err != nil {
		return err
	}
	switch {
	case c.MaxSessions < 1:
		return errors.New("session: MaxSessions must be at least 1")
	case c.IdleTimeout <= 0 || c.GCInterval <= 0:
		return errors.New("session: IdleTimeout and GCInterval must be positive")
	case c.SnapshotInterval <= 0:
		return errors.New("session: SnapshotInterval must be positive")
	case c.InboxSize < 1:
		return errors.New("session: InboxSize must be at least 1")
	}
	return nil
}
