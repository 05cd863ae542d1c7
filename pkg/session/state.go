package session

// State is a session lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateCalibrating
	StateActive
	StateRecalibrating
	StateDisconnected
)

var stateNames = [...]string{
	StateUninitialized: "uninitialized",
	StateCalibrating:    "calibrating",
	StateActive:         "active",
	StateRecalibrating:  "recalibrating",
	StateDisconnected:   "disconnected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
