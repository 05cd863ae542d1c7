package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/protocol"
	"github.com/teslashibe/go-gaze/pkg/stream"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", log.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

// testClient registers a connectionless client.
func testClient(t *testing.T, h *Hub, userID string, buffer int) *Client {
	t.Helper()
	c := &Client{hub: h, filter: Filter{UserID: userID}, send: make(chan Message, buffer)}
	if !h.attach(c) {
		t.Fatal("hub not running")
	}
	return c
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case m, ok := <-c.send:
		return m, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}, false
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastFiltersByUser(t *testing.T) {
	h, _ := startHub(t)
	all := testClient(t, h, "", 8)
	alice := testClient(t, h, "alice", 8)
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	h.Broadcast(NewMessage("bob", "selection", []byte(`{"n":1}`)))
	h.Broadcast(NewMessage("alice", "selection", []byte(`{"n":2}`)))

	if m, _ := receive(t, all); m.UserID != "bob" {
		t.Errorf("all: first message for %q", m.UserID)
	}
	if m, _ := receive(t, all); m.UserID != "alice" {
		t.Errorf("all: second message for %q", m.UserID)
	}
	if m, _ := receive(t, alice); m.UserID != "alice" {
		t.Errorf("alice got message for %q", m.UserID)
	}
	if len(alice.send) != 0 {
		t.Error("alice received another user's message")
	}
}

func TestKindFilter(t *testing.T) {
	h, _ := startHub(t)
	c := testClient(t, h, "", 8)
	waitFor(t, func() bool { return h.ClientCount() == 1 })
	h.setFilter(c, Filter{UserID: "alice", Kinds: ParseKinds(" selection, focus ,")})

	h.Broadcast(NewMessage("alice", "saccade", []byte("1")))
	h.Broadcast(NewMessage("bob", "selection", []byte("2")))
	h.Broadcast(NewMessage("alice", "focus", []byte("3")))

	if m, _ := receive(t, c); string(m.Data) != "3" {
		t.Errorf("got %s, want only the focus event", m.Data)
	}
	if len(c.send) != 0 {
		t.Error("filtered messages were delivered")
	}
}

func TestFilterAllows(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		msg    Message
		want   bool
	}{
		{"zero filter", Filter{}, NewMessage("bob", "blink", nil), true},
		{"other user", Filter{UserID: "alice"}, NewMessage("bob", "blink", nil), false},
		{"untargeted", Filter{UserID: "alice"}, NewMessage("", "blink", nil), true},
		{"kind listed", Filter{Kinds: []string{"blink"}}, NewMessage("bob", "blink", nil), true},
		{"kind not listed", Filter{Kinds: []string{"selection"}}, NewMessage("bob", "blink", nil), false},
		{"unkinded", Filter{Kinds: []string{"selection"}}, NewMessage("bob", "", nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.allows(tt.msg); got != tt.want {
				t.Errorf("allows = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSlowClientDropped(t *testing.T) {
	h, _ := startHub(t)
	slow := testClient(t, h, "", 1)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.Broadcast(NewMessage("", "", []byte("1")))
	h.Broadcast(NewMessage("", "", []byte("2")))

	waitFor(t, func() bool { return h.ClientCount() == 0 })
	if h.Stats().SlowDropped != 1 {
		t.Errorf("stats = %+v", h.Stats())
	}
	if _, ok := receive(t, slow); !ok {
		t.Fatal("expected the buffered message before close")
	}
	if _, ok := receive(t, slow); ok {
		t.Error("send channel should be closed")
	}
}

func TestDetachAndStop(t *testing.T) {
	h, cancel := startHub(t)
	c := testClient(t, h, "", 4)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.detach(c)
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	c2 := testClient(t, h, "", 4)
	waitFor(t, func() bool { return h.ClientCount() == 1 })
	cancel()
	if _, ok := receive(t, c2); ok {
		t.Error("client channel should close on stop")
	}
	waitFor(t, func() bool { return !h.IsRunning() })

	// Detach and attach after stop must not block
	h.detach(c2)
	if h.attach(&Client{send: make(chan Message, 1)}) {
		t.Error("attach succeeded on stopped hub")
	}
}

func TestFeedForwardsStreamEvents(t *testing.T) {
	h, _ := startHub(t)
	bus := stream.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Feed(ctx, bus)

	c := testClient(t, h, "alice", 8)
	waitFor(t, func() bool { return bus.SubscriberCount() == 1 && h.ClientCount() == 1 })

	bus.Publish(stream.Message{
		UserID:  "alice",
		Kind:    stream.Kind(gaze.KindSelection),
		Ts:      800,
		Payload: gaze.SelectionEvent{TargetID: "button", DwellMs: 800, Ts: 800},
	})

	m, _ := receive(t, c)
	var msg protocol.Message
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != protocol.TypeSelection || msg.UserID != "alice" {
		t.Errorf("msg = %+v", msg)
	}
}
