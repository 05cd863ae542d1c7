// Package stream distributes outbound gaze events to subscribers.
//
// Publishing never blocks: a subscriber whose channel is full misses the
// message and its dropped counter is incremented. Recent events matter more
// than a backlog of stale ones.
package stream

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("stream: subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with an unknown id.
	ErrSubscriberNotFound = errors.New("stream: subscriber id not found")

	// ErrNilChannel is returned when Subscribe is given a nil channel.
	ErrNilChannel = errors.New("stream: subscriber channel cannot be nil")

	// ErrBusClosed is returned when subscribing to a closed bus.
	ErrBusClosed = errors.New("stream: bus is closed")
)

// Kind names an outbound message type.
type Kind string

// KindAttention is the periodic attention snapshot. Gaze events use their
// gaze.EventKind value.
const KindAttention Kind = "attention"

// Message is one outbound event for one user.
type Message struct {
	UserID  string
	Kind    Kind
	Ts      int64
	Payload any
}

// Stats contains global and per-subscriber counters.
type Stats struct {
	TotalPublished uint64                     `json:"total_published"`
	TotalSent      uint64                     `json:"total_sent"`
	TotalDropped   uint64                     `json:"total_dropped"`
	Subscribers    map[string]SubscriberStats `json:"subscribers"`
}

// SubscriberStats tracks delivery for one subscriber.
type SubscriberStats struct {
	UserID  string `json:"user_id,omitempty"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

type subscriber struct {
	userID  string // Empty receives every user
	ch      chan<- Message
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus fans messages out to subscribers. It is safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool

	published atomic.Uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers ch under id. A non-empty userID restricts delivery to
// that user's messages.
func (b *Bus) Subscribe(id, userID string, ch chan<- Message) error {
	if ch == nil {
		return ErrNilChannel
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	b.subscribers[id] = &subscriber{userID: userID, ch: ch}
	return nil
}

// Unsubscribe removes a subscriber. The channel is not closed.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	return nil
}

// Publish delivers msg to every matching subscriber without blocking.
// Publishing to a closed bus is a no-op.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.published.Add(1)

	for _, sub := range b.subscribers {
		if sub.userID != "" && sub.userID != msg.UserID {
			continue
		}
		select {
		case sub.ch <- msg:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
		}
	}
}

// Stats returns a snapshot of the counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{
		TotalPublished: b.published.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(b.subscribers)),
	}
	for id, sub := range b.subscribers {
		ss := SubscriberStats{UserID: sub.userID, Sent: sub.sent.Load(), Dropped: sub.dropped.Load()}
		s.Subscribers[id] = ss
		s.TotalSent += ss.Sent
		s.TotalDropped += ss.Dropped
	}
	return s
}

// SubscriberCount returns the number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close stops delivery and removes every subscriber. It is idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subscribers = make(map[string]*subscriber)
	return nil
}
