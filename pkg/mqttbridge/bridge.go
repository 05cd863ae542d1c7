// Package mqttbridge carries gaze samples and outbound events over MQTT.
//
// Samples arrive on a per-user topic such as gaze/{user_id}/samples and are
// routed to that user's session. Outbound events are published to
// gaze/{user_id}/events.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/ingest"
	"github.com/teslashibe/go-gaze/pkg/protocol"
	"github.com/teslashibe/go-gaze/pkg/session"
	"github.com/teslashibe/go-gaze/pkg/stream"
)

// UserPlaceholder is replaced with the user id in EventTopic.
const UserPlaceholder = "{user_id}"

// Config holds broker and topic settings.
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string

	SampleTopic string // Single-level wildcard marks the user id, e.g. gaze/+/samples
	EventTopic  string // e.g. gaze/{user_id}/events
	QoS         byte

	// AutoOpen opens a session for unknown users with Device.
	AutoOpen bool
	Device   ingest.DeviceClass

	ConnectTimeout time.Duration
	SubmitTimeout  time.Duration
}

// DefaultConfig returns the bridge defaults.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       "gazed",
		SampleTopic:    "gaze/+/samples",
		EventTopic:     "gaze/" + UserPlaceholder + "/events",
		Device:         ingest.DeviceGeneric,
		ConnectTimeout: 5 * time.Second,
		SubmitTimeout:  time.Second,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Broker == "":
		return errors.New("mqttbridge: broker is required")
	case c.SampleTopic == "" || wildcardIndex(c.SampleTopic) < 0:
		return errors.New("mqttbridge: sample topic needs a '+' segment for the user id")
	case c.EventTopic != "" && !strings.Contains(c.EventTopic, UserPlaceholder):
		return fmt.Errorf("mqttbridge: event topic must contain %s", UserPlaceholder)
	case c.QoS > 2:
		return errors.New("mqttbridge: QoS must be 0, 1 or 2")
	}
	return nil
}

// Stats contains bridge counters
type Stats struct {
	Received  uint64 `json:"received"`
	Accepted  uint64 `json:"accepted"`
	Rejected  uint64 `json:"rejected"`
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
}

// Bridge routes MQTT samples into sessions and session events back out.
type Bridge struct {
	client mqtt.Client
	orch   *session.Orchestrator
	config Config
	logger *slog.Logger

	received  atomic.Uint64
	accepted  atomic.Uint64
	rejected  atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
}

// New wraps an existing client. A nil logger uses the global logger.
func New(client mqtt.Client, orch *session.Orchestrator, cfg Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = log.L()
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultConfig().SubmitTimeout
	}
	return &Bridge{
		client: client,
		orch:   orch,
		config: cfg,
		logger: logger.With("component", "mqtt"),
	}
}

// Connect dials the broker and returns a bridge over the connection.
func Connect(cfg Config, orch *session.Orchestrator, logger *slog.Logger) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.L()
	}
	l := logger.With("component", "mqtt", "broker", cfg.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		l.Info("mqtt connection established", "client_id", cfg.ClientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		l.Warn("mqtt connection lost, will auto-reconnect", "error", err)
	})

	client := mqtt.NewClient(opts)
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ConnectTimeout
	}
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqttbridge: connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttbridge: connect to %s: %w", cfg.Broker, err)
	}
	return New(client, orch, cfg, logger), nil
}

// Run subscribes to the sample topic and publishes outbound events until
// ctx is done. It disconnects the client on return.
func (b *Bridge) Run(ctx context.Context) error {
	token := b.client.Subscribe(b.config.SampleTopic, b.config.QoS, b.handleSamples)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqttbridge: subscribe %s: %w", b.config.SampleTopic, token.Error())
	}
	b.logger.Info("subscribed", "topic", b.config.SampleTopic)

	defer func() {
		b.client.Unsubscribe(b.config.SampleTopic).WaitTimeout(time.Second)
		b.client.Disconnect(250)
	}()

	if b.config.EventTopic == "" {
		<-ctx.Done()
		return nil
	}
	return b.publishEvents(ctx, b.orch.Bus())
}

// Stats returns bridge counters
func (b *Bridge) Stats() Stats {
	return Stats{
		Received:  b.received.Load(),
		Accepted:  b.accepted.Load(),
		Rejected:  b.rejected.Load(),
		Published: b.published.Load(),
		Failed:    b.failed.Load(),
	}
}

// handleSamples accepts either one sample object or an array of samples,
// oldest first.
func (b *Bridge) handleSamples(_ mqtt.Client, msg mqtt.Message) {
	b.received.Add(1)

	userID := userFromTopic(b.config.SampleTopic, msg.Topic())
	if userID == "" {
		b.rejected.Add(1)
		b.logger.Debug("no user id in topic", "topic", msg.Topic())
		return
	}

	raws, err := decodeSamples(msg.Payload())
	if err != nil {
		b.rejected.Add(1)
		b.logger.Debug("malformed sample payload", "user_id", userID, "error", err)
		return
	}

	sess, err := b.session(userID)
	if err != nil {
		b.rejected.Add(uint64(len(raws)))
		b.logger.Debug("dropping samples", "user_id", userID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.config.SubmitTimeout)
	defer cancel()
	for _, raw := range raws {
		if raw.UserID == "" {
			raw.UserID = userID
		}
		if raw.UserID != userID {
			b.rejected.Add(1)
			continue
		}
		sample, err := ingest.Normalize(raw, sess.Capability())
		if err != nil {
			b.rejected.Add(1)
			b.logger.Debug("invalid sample", "user_id", userID, "error", err)
			continue
		}
		if err := sess.Submit(ctx, sample); err != nil {
			b.rejected.Add(1)
			b.logger.Debug("submit failed", "user_id", userID, "error", err)
			return
		}
		b.accepted.Add(1)
	}
}

func (b *Bridge) session(userID string) (*session.Session, error) {
	sess, err := b.orch.Session(userID)
	if err == nil || !b.config.AutoOpen || !errors.Is(err, session.ErrSessionNotFound) {
		return sess, err
	}
	sess, err = b.orch.Open(userID, b.config.Device)
	if errors.Is(err, session.ErrSessionExists) {
		return b.orch.Session(userID)
	}
	return sess, err
}

// publishEvents forwards bus messages to each user's event topic.
func (b *Bridge) publishEvents(ctx context.Context, bus *stream.Bus) error {
	id := "mqtt-" + uuid.NewString()
	ch := make(chan stream.Message, 1024)
	if err := bus.Subscribe(id, "", ch); err != nil {
		return err
	}
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-ch:
			b.publish(m)
		}
	}
}

func (b *Bridge) publish(m stream.Message) {
	msg, err := protocol.FromStream(m)
	if err != nil {
		b.logger.Debug("skipping stream message", "kind", m.Kind, "error", err)
		return
	}
	payload, err := msg.Bytes()
	if err != nil {
		b.failed.Add(1)
		return
	}

	// QoS 0 publishes are fire-and-forget
	token := b.client.Publish(EventTopic(b.config.EventTopic, m.UserID), b.config.QoS, false, payload)
	if b.config.QoS > 0 && token.WaitTimeout(2*time.Second) && token.Error() != nil {
		b.failed.Add(1)
		b.logger.Debug("publish failed", "user_id", m.UserID, "error", token.Error())
		return
	}
	b.published.Add(1)
}

// EventTopic expands the user placeholder in pattern.
func EventTopic(pattern, userID string) string {
	return strings.ReplaceAll(pattern, UserPlaceholder, userID)
}

// userFromTopic returns the segment of topic matched by the '+' in pattern.
func userFromTopic(pattern, topic string) string {
	idx := wildcardIndex(pattern)
	if idx < 0 {
		return ""
	}
	ps := strings.Split(pattern, "/")
	ts := strings.Split(topic, "/")
	if len(ps) != len(ts) {
		return ""
	}
	for i := range ps {
		if i != idx && ps[i] != ts[i] {
			return ""
		}
	}
	return ts[idx]
}

func wildcardIndex(pattern string) int {
	for i, seg := range strings.Split(pattern, "/") {
		if seg == "+" {
			return i
		}
	}
	return -1
}

func decodeSamples(payload []byte) ([]ingest.Raw, error) {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "[") {
		var raws []ingest.Raw
		if err := json.Unmarshal(payload, &raws); err != nil {
			return nil, err
		}
		return raws, nil
	}
	var raw ingest.Raw
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	return []ingest.Raw{raw}, nil
}
