package mqttbridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/eyetracker"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/ingest"
	"github.com/teslashibe/go-gaze/pkg/protocol"
	"github.com/teslashibe/go-gaze/pkg/session"
	"github.com/teslashibe/go-gaze/pkg/stream"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

var closed = make(chan struct{})

func init() { close(closed) }

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{}          { return closed }
func (doneToken) Error() error                   { return nil }

type published struct {
	topic   string
	payload []byte
}

// fakeClient records subscriptions and publishes.
type fakeClient struct {
	mu         sync.Mutex
	handlers   map[string]mqtt.MessageHandler
	published  []published
	disconnect bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }
func (c *fakeClient) Connect() mqtt.Token    { return doneToken{} }

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnect = true
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = cb
	return doneToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, cb mqtt.MessageHandler) mqtt.Token {
	for topic := range filters {
		c.Subscribe(topic, 0, cb)
	}
	return doneToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.handlers, t)
	}
	return doneToken{}
}

func (c *fakeClient) AddRoute(string, mqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *fakeClient) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[topic]
	return ok
}

func (c *fakeClient) publishes() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

// =============================================================================
// Helpers
// =============================================================================

func newOrchestrator(t *testing.T) *session.Orchestrator {
	t.Helper()
	o, err := session.New(session.DefaultConfig(), session.WithLogger(log.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Shutdown)
	return o
}

func calibrate(t *testing.T, o *session.Orchestrator, userID string) {
	t.Helper()
	var pts []eyetracker.CalibrationPoint
	for _, yaw := range []float64{-15, 0, 15} {
		for _, pitch := range []float64{-10, 0, 10} {
			d := gaze.FromYawPitch(yaw, pitch)
			pts = append(pts, eyetracker.CalibrationPoint{Target: d, Measured: d})
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := o.Calibrate(ctx, userID, pts); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
}

func rawAt(ts int64) ingest.Raw {
	dir := gaze.Forward
	return ingest.Raw{TimestampMs: ts, Direction: &dir, PupilMm: 4, Confidence: 1}
}

func payload(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestUserFromTopic(t *testing.T) {
	tests := []struct {
		pattern, topic, want string
	}{
		{"gaze/+/samples", "gaze/alice/samples", "alice"},
		{"gaze/+/samples", "gaze/alice/events", ""},
		{"gaze/+/samples", "gaze/alice/samples/extra", ""},
		{"site/a/+/gaze", "site/a/bob/gaze", "bob"},
		{"gaze/samples", "gaze/samples", ""},
	}
	for _, tt := range tests {
		if got := userFromTopic(tt.pattern, tt.topic); got != tt.want {
			t.Errorf("userFromTopic(%q, %q) = %q, want %q", tt.pattern, tt.topic, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := []func(*Config){
		func(c *Config) { c.Broker = "" },
		func(c *Config) { c.SampleTopic = "gaze/samples" },
		func(c *Config) { c.EventTopic = "gaze/events" },
		func(c *Config) { c.QoS = 3 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		if cfg.Validate() == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestHandleSamplesRoutesToSession(t *testing.T) {
	o := newOrchestrator(t)
	if _, err := o.Open("alice", ingest.DeviceHeadset); err != nil {
		t.Fatal(err)
	}
	calibrate(t, o, "alice")

	b := New(newFakeClient(), o, DefaultConfig(), log.Nop())

	// Single object, then a batch
	b.handleSamples(nil, &fakeMessage{topic: "gaze/alice/samples", payload: payload(t, rawAt(0))})
	b.handleSamples(nil, &fakeMessage{topic: "gaze/alice/samples", payload: payload(t, []ingest.Raw{rawAt(11), rawAt(22)})})

	waitFor(t, "samples processed", func() bool {
		info, _ := o.SessionInfo("alice")
		return info.SamplesReceived == 3
	})
	if got := b.Stats().Accepted; got != 3 {
		t.Errorf("Accepted = %d, want 3", got)
	}
}

func TestHandleSamplesRejects(t *testing.T) {
	o := newOrchestrator(t)
	if _, err := o.Open("alice", ingest.DeviceGeneric); err != nil {
		t.Fatal(err)
	}
	b := New(newFakeClient(), o, DefaultConfig(), log.Nop())

	foreign := rawAt(0)
	foreign.UserID = "bob"
	noDirection := ingest.Raw{TimestampMs: 5, Confidence: 1}

	b.handleSamples(nil, &fakeMessage{topic: "gaze/alice/samples", payload: []byte("{not json")})
	b.handleSamples(nil, &fakeMessage{topic: "other/alice", payload: payload(t, rawAt(0))})
	b.handleSamples(nil, &fakeMessage{topic: "gaze/alice/samples", payload: payload(t, foreign)})
	b.handleSamples(nil, &fakeMessage{topic: "gaze/alice/samples", payload: payload(t, noDirection)})
	b.handleSamples(nil, &fakeMessage{topic: "gaze/carol/samples", payload: payload(t, rawAt(0))})

	stats := b.Stats()
	if stats.Received != 5 || stats.Rejected != 5 || stats.Accepted != 0 {
		t.Errorf("stats = %+v, want 5 received, 5 rejected", stats)
	}
	if _, err := o.Session("carol"); err == nil {
		t.Error("unknown user should not open a session without AutoOpen")
	}
}

func TestAutoOpen(t *testing.T) {
	o := newOrchestrator(t)
	cfg := DefaultConfig()
	cfg.AutoOpen = true
	cfg.Device = ingest.DeviceMobileAR
	b := New(newFakeClient(), o, cfg, log.Nop())

	b.handleSamples(nil, &fakeMessage{topic: "gaze/dave/samples", payload: payload(t, rawAt(0))})

	info, err := o.SessionInfo("dave")
	if err != nil {
		t.Fatalf("session not opened: %v", err)
	}
	if info.Device.Class != ingest.DeviceMobileAR {
		t.Errorf("Device = %s, want mobile-ar", info.Device.Class)
	}
}

func TestRunPublishesEvents(t *testing.T) {
	o := newOrchestrator(t)
	client := newFakeClient()
	b := New(client, o, DefaultConfig(), log.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	waitFor(t, "subscription", func() bool {
		return client.subscribed("gaze/+/samples") && o.Bus().SubscriberCount() == 1
	})

	o.Bus().Publish(stream.Message{
		UserID:  "alice",
		Kind:    stream.Kind(gaze.KindSelection),
		Ts:      800,
		Payload: gaze.SelectionEvent{TargetID: "button", DwellMs: 800, Ts: 800},
	})

	waitFor(t, "publish", func() bool { return len(client.publishes()) == 1 })
	pub := client.publishes()[0]
	if pub.topic != "gaze/alice/events" {
		t.Errorf("topic = %q", pub.topic)
	}
	msg, err := protocol.ParseMessage(pub.payload)
	if err != nil {
		t.Fatal(err)
	}
	sel, err := msg.GetSelectionEvent()
	if err != nil || sel.TargetID != "button" {
		t.Errorf("selection = %+v, %v", sel, err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
	if client.subscribed("gaze/+/samples") {
		t.Error("Run should unsubscribe on exit")
	}
}
