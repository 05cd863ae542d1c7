// Package config loads and validates gazed's service configuration from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-gaze/pkg/analytics"
	"github.com/teslashibe/go-gaze/pkg/ingest"
	"github.com/teslashibe/go-gaze/pkg/interaction"
	"github.com/teslashibe/go-gaze/pkg/mqttbridge"
	"github.com/teslashibe/go-gaze/pkg/server"
	"github.com/teslashibe/go-gaze/pkg/session"
)

// Interaction presets selectable with INTERACTION_PRESET.
const (
	PresetDefault    = "default"
	PresetFast       = "fast"
	PresetAccessible = "accessible"
)

// Config holds service configuration loaded from the environment.
type Config struct {
	// Addr is the HTTP listen address (e.g. :8080).
	Addr string `mapstructure:"GAZED_ADDR"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Debug enables per-request logging.
	Debug bool `mapstructure:"GAZED_DEBUG"`

	MaxSessions        int           `mapstructure:"MAX_SESSIONS"`
	SessionIdleTimeout time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`
	SnapshotInterval   time.Duration `mapstructure:"SNAPSHOT_INTERVAL"`

	// InteractionPreset picks the dwell baseline; DWELL_THRESHOLD and
	// FOCUS_THRESHOLD override it when set. DwellResetOnBlink ends a dwell
	// when the eyes close instead of pausing it.
	InteractionPreset string        `mapstructure:"INTERACTION_PRESET"`
	DwellThreshold    time.Duration `mapstructure:"DWELL_THRESHOLD"`
	FocusThreshold    time.Duration `mapstructure:"FOCUS_THRESHOLD"`
	NavigationEnabled bool          `mapstructure:"NAVIGATION_ENABLED"`
	DwellResetOnBlink bool          `mapstructure:"DWELL_RESET_ON_BLINK"`

	AnalyticsWindow time.Duration `mapstructure:"ANALYTICS_WINDOW"`
	// LoadWeights is a comma list of four cognitive-load weights: pupil
	// variability, short fixations, saccade rate, blink rate.
	LoadWeights string `mapstructure:"LOAD_WEIGHTS"`

	// MQTT is disabled when MQTTBroker is empty.
	MQTTBroker      string `mapstructure:"MQTT_BROKER"`
	MQTTClientID    string `mapstructure:"MQTT_CLIENT_ID"`
	MQTTUsername    string `mapstructure:"MQTT_USERNAME"`
	MQTTPassword    string `mapstructure:"MQTT_PASSWORD"`
	MQTTSampleTopic string `mapstructure:"MQTT_SAMPLE_TOPIC"`
	MQTTEventTopic  string `mapstructure:"MQTT_EVENT_TOPIC"`
	MQTTAutoOpen    bool   `mapstructure:"MQTT_AUTO_OPEN"`
	MQTTDevice      string `mapstructure:"MQTT_DEVICE"`

	// OTelEndpoint is the OTLP/gRPC collector; metrics export is disabled
	// when empty.
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads the given .env files (".env" when none are given, missing
// files are ignored), then builds and validates Config from the environment
// via Viper. Variables already set in the environment win over .env.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	v.AutomaticEnv()

	bridge := mqttbridge.DefaultConfig()
	sess := session.DefaultConfig()

	v.SetDefault("GAZED_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("GAZED_DEBUG", false)
	v.SetDefault("MAX_SESSIONS", sess.MaxSessions)
	v.SetDefault("SESSION_IDLE_TIMEOUT", sess.IdleTimeout)
	v.SetDefault("SNAPSHOT_INTERVAL", sess.SnapshotInterval)
	v.SetDefault("INTERACTION_PRESET", PresetDefault)
	v.SetDefault("DWELL_THRESHOLD", time.Duration(0))
	v.SetDefault("FOCUS_THRESHOLD", time.Duration(0))
	v.SetDefault("NAVIGATION_ENABLED", false)
	v.SetDefault("DWELL_RESET_ON_BLINK", false)
	v.SetDefault("ANALYTICS_WINDOW", time.Duration(sess.Analytics.WindowMs)*time.Millisecond)
	v.SetDefault("LOAD_WEIGHTS", "")
	v.SetDefault("MQTT_BROKER", "")
	v.SetDefault("MQTT_CLIENT_ID", bridge.ClientID)
	v.SetDefault("MQTT_USERNAME", "")
	v.SetDefault("MQTT_PASSWORD", "")
	v.SetDefault("MQTT_SAMPLE_TOPIC", bridge.SampleTopic)
	v.SetDefault("MQTT_EVENT_TOPIC", bridge.EventTopic)
	v.SetDefault("MQTT_AUTO_OPEN", false)
	v.SetDefault("MQTT_DEVICE", string(bridge.Device))
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SERVICE_NAME", "gazed")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field, including the derived engine configuration.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("config: GAZED_ADDR must be set")
	case c.MaxSessions < 1:
		return errors.New("config: MAX_SESSIONS must be positive")
	case c.SessionIdleTimeout <= 0:
		return errors.New("config: SESSION_IDLE_TIMEOUT must be positive")
	case c.SnapshotInterval <= 0:
		return errors.New("config: SNAPSHOT_INTERVAL must be positive")
	case c.DwellThreshold < 0 || c.FocusThreshold < 0:
		return errors.New("config: DWELL_THRESHOLD and FOCUS_THRESHOLD must not be negative")
	case c.AnalyticsWindow < time.Second:
		return errors.New("config: ANALYTICS_WINDOW must be at least 1s")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown LOG_LEVEL %q", c.LogLevel)
	}

	if _, err := c.SessionConfig(); err != nil {
		return err
	}
	if c.MQTTEnabled() {
		if err := c.MQTTConfig().Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// Weights parses LoadWeights. An empty value returns the defaults.
func (c *Config) Weights() (analytics.Weights, error) {
	if strings.TrimSpace(c.LoadWeights) == "" {
		return analytics.DefaultWeights(), nil
	}
	parts := strings.Split(c.LoadWeights, ",")
	if len(parts) != 4 {
		return analytics.Weights{}, fmt.Errorf("config: LOAD_WEIGHTS needs 4 values, got %d", len(parts))
	}
	var vals [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return analytics.Weights{}, fmt.Errorf("config: LOAD_WEIGHTS value %d: %w", i+1, err)
		}
		vals[i] = f
	}
	w := analytics.Weights{
		PupilVariability: vals[0],
		ShortFixation:    vals[1],
		HighSaccade:      vals[2],
		BlinkRate:        vals[3],
	}
	if err := w.Validate(); err != nil {
		return analytics.Weights{}, fmt.Errorf("config: LOAD_WEIGHTS: %w", err)
	}
	return w, nil
}

// SessionConfig builds the engine configuration.
func (c *Config) SessionConfig() (session.Config, error) {
	cfg := session.DefaultConfig()
	cfg.MaxSessions = c.MaxSessions
	cfg.IdleTimeout = c.SessionIdleTimeout
	cfg.SnapshotInterval = c.SnapshotInterval

	switch strings.ToLower(c.InteractionPreset) {
	case "", PresetDefault:
		cfg.Interaction = interaction.DefaultConfig()
	case PresetFast:
		cfg.Interaction = interaction.FastDwellConfig()
	case PresetAccessible:
		cfg.Interaction = interaction.AccessibleConfig()
	default:
		return session.Config{}, fmt.Errorf("config: unknown INTERACTION_PRESET %q", c.InteractionPreset)
	}
	if c.DwellThreshold > 0 {
		cfg.Interaction.DwellThresholdMs = c.DwellThreshold.Milliseconds()
	}
	if c.FocusThreshold > 0 {
		cfg.Interaction.FocusThresholdMs = c.FocusThreshold.Milliseconds()
	}
	cfg.Interaction.Navigation.Enabled = c.NavigationEnabled
	cfg.Interaction.ResetOnBlink = c.DwellResetOnBlink

	cfg.Analytics.WindowMs = c.AnalyticsWindow.Milliseconds()
	w, err := c.Weights()
	if err != nil {
		return session.Config{}, err
	}
	cfg.Analytics.Weights = w

	if err := cfg.Validate(); err != nil {
		return session.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ServerConfig builds the HTTP server configuration.
func (c *Config) ServerConfig(version string) server.Config {
	cfg := server.DefaultConfig()
	cfg.Addr = c.Addr
	cfg.Version = version
	cfg.Debug = c.Debug
	return cfg
}

// MQTTEnabled reports whether the MQTT bridge should run.
func (c *Config) MQTTEnabled() bool {
	return strings.TrimSpace(c.MQTTBroker) != ""
}

// MQTTConfig builds the MQTT bridge configuration.
func (c *Config) MQTTConfig() mqttbridge.Config {
	cfg := mqttbridge.DefaultConfig()
	cfg.Broker = c.MQTTBroker
	cfg.ClientID = c.MQTTClientID
	cfg.Username = c.MQTTUsername
	cfg.Password = c.MQTTPassword
	cfg.SampleTopic = c.MQTTSampleTopic
	cfg.EventTopic = c.MQTTEventTopic
	cfg.AutoOpen = c.MQTTAutoOpen
	cfg.Device = ingest.DeviceClass(c.MQTTDevice)
	return cfg
}
