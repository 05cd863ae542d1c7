package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-gaze/pkg/eyetracker"
	"github.com/teslashibe/go-gaze/pkg/ingest"
	"github.com/teslashibe/go-gaze/pkg/interaction"
	"github.com/teslashibe/go-gaze/pkg/session"
)

// errBadRequest wraps body and message decoding failures.
var errBadRequest = errors.New("server: malformed request")

// statusFor maps a domain error to its HTTP status code.
func statusFor(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, errBadRequest),
		errors.Is(err, ingest.ErrInvalidSample),
		errors.Is(err, interaction.ErrInvalidTargetGeometry),
		errors.Is(err, interaction.ErrEmptyTargetID),
		errors.Is(err, session.ErrEmptyUserID),
		eyetracker.IsCalibrationFailure(err):
		return fiber.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, interaction.ErrUnknownTarget):
		return fiber.StatusNotFound
	case errors.Is(err, session.ErrSessionExists),
		errors.Is(err, interaction.ErrDuplicateTargetID),
		errors.Is(err, session.ErrNotActive):
		return fiber.StatusConflict
	case session.IsCapacity(err):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}

// fail writes err as a JSON error body.
func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}
