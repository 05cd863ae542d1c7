package interaction

import "github.com/teslashibe/go-gaze/pkg/gaze"

// history is a fixed-capacity ring of recent selections.
type history struct {
	buf   []gaze.SelectionEvent
	start int
	n     int
}

func newHistory(capacity int) *history {
	if capacity < 1 {
		capacity = 1
	}
	return &history{buf: make([]gaze.SelectionEvent, capacity)}
}

func (h *history) push(e gaze.SelectionEvent) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = e
		h.n++
		return
	}
	h.buf[h.start] = e
	h.start = (h.start + 1) % len(h.buf)
}

// items returns the retained selections, oldest first.
func (h *history) items() []gaze.SelectionEvent {
	out := make([]gaze.SelectionEvent, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}
