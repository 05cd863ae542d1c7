// Package hub fans encoded gaze events out to websocket subscribers over
// channels owned by a single goroutine.
package hub

import (
	"slices"
	"strings"
)

// Message is one encoded event queued for subscribers.
type Message struct {
	UserID string // Empty reaches every subscriber
	Kind   string
	Data   []byte
}

// NewMessage wraps pre-encoded JSON.
func NewMessage(userID, kind string, data []byte) Message {
	return Message{UserID: userID, Kind: kind, Data: data}
}

// Filter selects what a subscriber receives. The zero value receives
// everything.
type Filter struct {
	UserID string   `json:"user,omitempty"`
	Kinds  []string `json:"kinds,omitempty"`
}

// ParseKinds splits a comma list such as "selection,focus".
func ParseKinds(list string) []string {
	var kinds []string
	for _, k := range strings.Split(list, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (f Filter) allows(m Message) bool {
	if f.UserID != "" && m.UserID != "" && m.UserID != f.UserID {
		return false
	}
	return len(f.Kinds) == 0 || m.Kind == "" || slices.Contains(f.Kinds, m.Kind)
}
