package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// gazeEnv lists every variable Load reads, so tests start from a clean slate.
var gazeEnv = []string{
	"GAZED_ADDR", "LOG_LEVEL", "GAZED_DEBUG", "MAX_SESSIONS", "SESSION_IDLE_TIMEOUT",
	"SNAPSHOT_INTERVAL", "INTERACTION_PRESET", "DWELL_THRESHOLD", "FOCUS_THRESHOLD",
	"NAVIGATION_ENABLED", "DWELL_RESET_ON_BLINK", "ANALYTICS_WINDOW", "LOAD_WEIGHTS", "MQTT_BROKER",
	"MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_SAMPLE_TOPIC",
	"MQTT_EVENT_TOPIC", "MQTT_AUTO_OPEN", "MQTT_DEVICE", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_SERVICE_NAME",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range gazeEnv {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.MaxSessions != 256 {
		t.Errorf("MaxSessions = %d, want 256", cfg.MaxSessions)
	}
	if cfg.SessionIdleTimeout != 2*time.Minute {
		t.Errorf("SessionIdleTimeout = %v, want 2m", cfg.SessionIdleTimeout)
	}
	if cfg.AnalyticsWindow != time.Minute {
		t.Errorf("AnalyticsWindow = %v, want 1m", cfg.AnalyticsWindow)
	}
	if cfg.MQTTEnabled() {
		t.Error("MQTT should be disabled without a broker")
	}

	sess, err := cfg.SessionConfig()
	if err != nil {
		t.Fatalf("SessionConfig: %v", err)
	}
	if sess.Interaction.DwellThresholdMs != 800 || sess.Interaction.FocusThresholdMs != 300 {
		t.Errorf("dwell/focus = %d/%d, want 800/300", sess.Interaction.DwellThresholdMs, sess.Interaction.FocusThresholdMs)
	}
	if sess.Interaction.ResetOnBlink {
		t.Error("closed eyes should pause dwell by default")
	}
	if w := sess.Analytics.Weights; w.PupilVariability != 0.3 || w.BlinkRate != 0.2 {
		t.Errorf("weights = %+v, want defaults", w)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("GAZED_ADDR", ":9090")
	t.Setenv("MAX_SESSIONS", "4")
	t.Setenv("SESSION_IDLE_TIMEOUT", "30s")
	t.Setenv("INTERACTION_PRESET", "accessible")
	t.Setenv("FOCUS_THRESHOLD", "400ms")
	t.Setenv("NAVIGATION_ENABLED", "true")
	t.Setenv("DWELL_RESET_ON_BLINK", "true")
	t.Setenv("ANALYTICS_WINDOW", "2m")
	t.Setenv("LOAD_WEIGHTS", "0.25, 0.25, 0.25, 0.25")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_DEVICE", "vr-headset")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sess, err := cfg.SessionConfig()
	if err != nil {
		t.Fatalf("SessionConfig: %v", err)
	}

	if sess.MaxSessions != 4 || sess.IdleTimeout != 30*time.Second {
		t.Errorf("limits = %d/%v", sess.MaxSessions, sess.IdleTimeout)
	}
	if sess.Interaction.DwellThresholdMs != 1200 {
		t.Errorf("DwellThresholdMs = %d, want accessible 1200", sess.Interaction.DwellThresholdMs)
	}
	if sess.Interaction.FocusThresholdMs != 400 {
		t.Errorf("FocusThresholdMs = %d, want 400", sess.Interaction.FocusThresholdMs)
	}
	if !sess.Interaction.Navigation.Enabled {
		t.Error("navigation should be enabled")
	}
	if !sess.Interaction.ResetOnBlink {
		t.Error("ResetOnBlink should be enabled")
	}
	if sess.Analytics.WindowMs != 120000 {
		t.Errorf("WindowMs = %d, want 120000", sess.Analytics.WindowMs)
	}
	if sess.Analytics.Weights.HighSaccade != 0.25 {
		t.Errorf("weights = %+v", sess.Analytics.Weights)
	}

	mq := cfg.MQTTConfig()
	if !cfg.MQTTEnabled() || mq.Broker != "tcp://broker:1883" || mq.Device != "vr-headset" {
		t.Errorf("mqtt = %+v", mq)
	}
	if mq.SampleTopic != "gaze/+/samples" {
		t.Errorf("SampleTopic = %q", mq.SampleTopic)
	}

	srv := cfg.ServerConfig("1.2.3")
	if srv.Addr != ":9090" || srv.Version != "1.2.3" {
		t.Errorf("server = %+v", srv)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"zero sessions", "MAX_SESSIONS", "0", "MAX_SESSIONS"},
		{"bad duration", "SESSION_IDLE_TIMEOUT", "soon", "config"},
		{"short window", "ANALYTICS_WINDOW", "500ms", "ANALYTICS_WINDOW"},
		{"weights count", "LOAD_WEIGHTS", "0.5,0.5", "4 values"},
		{"weights sum", "LOAD_WEIGHTS", "0.5,0.5,0.5,0.5", "LOAD_WEIGHTS"},
		{"weights number", "LOAD_WEIGHTS", "a,b,c,d", "LOAD_WEIGHTS"},
		{"focus above dwell", "FOCUS_THRESHOLD", "900ms", "FocusThresholdMs"},
		{"preset", "INTERACTION_PRESET", "turbo", "INTERACTION_PRESET"},
		{"log level", "LOG_LEVEL", "loud", "LOG_LEVEL"},
		{"mqtt topic", "MQTT_SAMPLE_TOPIC", "gaze/samples", "mqttbridge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if tt.key == "MQTT_SAMPLE_TOPIC" {
				t.Setenv("MQTT_BROKER", "tcp://broker:1883")
			}
			_, err := Load()
			if err == nil {
				t.Fatalf("Load with %s=%q should fail", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "gazed.env")
	if err := os.WriteFile(path, []byte("GAZED_ADDR=:7070\nMAX_SESSIONS=8\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// The environment wins over the file
	t.Setenv("MAX_SESSIONS", "16")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7070" {
		t.Errorf("Addr = %q, want :7070 from file", cfg.Addr)
	}
	if cfg.MaxSessions != 16 {
		t.Errorf("MaxSessions = %d, want 16 from environment", cfg.MaxSessions)
	}
}
