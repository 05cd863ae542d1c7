package session

import (
	"time"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Drop reasons reported to an Observer.
const (
	DropNotActive  = "not_active"
	DropOutOfOrder = "out_of_order"
)

// Observer receives operational signals from sessions. Implementations must
// be safe for concurrent use and must not block.
type Observer interface {
	SessionOpened()
	SessionClosed(reason string)
	SessionRejected()
	SampleProcessed(latency time.Duration)
	SampleDropped(reason string)
	EventEmitted(kind gaze.EventKind)
	CalibrationCompleted(quality float64, err error)
}

type nopObserver struct{}

func (nopObserver) SessionOpened()                      {}
func (nopObserver) SessionClosed(string)                {}
func (nopObserver) SessionRejected()                    {}
func (nopObserver) SampleProcessed(time.Duration)       {}
func (nopObserver) SampleDropped(string)                {}
func (nopObserver) EventEmitted(gaze.EventKind)         {}
func (nopObserver) CalibrationCompleted(float64, error) {}
