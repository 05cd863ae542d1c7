package interaction

import "errors"

var (
	// ErrDuplicateTargetID is returned when a target id is already registered.
	ErrDuplicateTargetID = errors.New("interaction: duplicate target id")

	// ErrInvalidTargetGeometry is returned for non-finite positions or non-positive radii.
	ErrInvalidTargetGeometry = errors.New("interaction: invalid target geometry")

	// ErrEmptyTargetID is returned when registering a target without an id.
	ErrEmptyTargetID = errors.New("interaction: target id is required")

	// ErrUnknownTarget is returned when unregistering an id that is not registered.
	ErrUnknownTarget = errors.New("interaction: unknown target")
)
