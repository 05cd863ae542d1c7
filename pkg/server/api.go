package server

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-gaze/pkg/ingest"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// openRequest opens a session over REST.
type openRequest struct {
	UserID string             `json:"user_id"`
	Device ingest.DeviceClass `json:"device"`
}

// registerAPI registers the session management and pull query routes.
func (s *Server) registerAPI(api fiber.Router) {
	api.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"server": s.Stats(),
			"events": s.events.Stats(),
			"bus":    s.orch.Bus().Stats(),
		})
	})

	api.Get("/devices", func(c *fiber.Ctx) error {
		classes := ingest.Classes()
		devices := make([]ingest.Capability, 0, len(classes))
		for _, class := range classes {
			devices = append(devices, ingest.Resolve(class))
		}
		return c.JSON(fiber.Map{"devices": devices})
	})

	sessions := api.Group("/sessions")

	// List open sessions
	sessions.Get("/", func(c *fiber.Ctx) error {
		ids := s.orch.ActiveSessions()
		return c.JSON(fiber.Map{
			"sessions": ids,
			"count":    len(ids),
		})
	})

	sessions.Post("/", func(c *fiber.Ctx) error {
		var req openRequest
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		}
		sess, err := s.orch.Open(req.UserID, req.Device)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(sess.Info())
	})

	sessions.Get("/:user", func(c *fiber.Ctx) error {
		info, err := s.orch.SessionInfo(c.Params("user"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(info)
	})

	sessions.Delete("/:user", func(c *fiber.Ctx) error {
		if err := s.orch.Close(c.Params("user")); err != nil {
			return fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	sessions.Post("/:user/calibrate", func(c *fiber.Ctx) error {
		var req protocol.CalibrateData
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		}
		ctx, cancel := s.commandContext()
		defer cancel()
		profile, err := s.orch.Calibrate(ctx, c.Params("user"), req.Points)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(profile)
	})

	// Batch ingest. Samples before the first invalid one stay queued.
	sessions.Post("/:user/samples", func(c *fiber.Ctx) error {
		userID := c.Params("user")
		var req protocol.SamplesData
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		}
		sess, err := s.orch.Session(userID)
		if err != nil {
			return fail(c, err)
		}

		ctx, cancel := s.commandContext()
		defer cancel()
		for i, raw := range req.Samples {
			if raw.UserID == "" {
				raw.UserID = userID
			}
			if raw.UserID != userID {
				s.samplesRejected.Add(1)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error":    fmt.Sprintf("sample %d: user_id %q does not match %q", i, raw.UserID, userID),
					"accepted": i,
				})
			}
			sample, err := ingest.Normalize(raw, sess.Capability())
			if err == nil {
				err = sess.Submit(ctx, sample)
			}
			if err != nil {
				if statusFor(err) == fiber.StatusBadRequest {
					s.samplesRejected.Add(1)
				}
				return c.Status(statusFor(err)).JSON(fiber.Map{
					"error":    fmt.Sprintf("sample %d: %v", i, err),
					"accepted": i,
				})
			}
			s.samplesAccepted.Add(1)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": len(req.Samples)})
	})

	sessions.Post("/:user/targets", func(c *fiber.Ctx) error {
		var req protocol.TargetData
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		}
		ctx, cancel := s.commandContext()
		defer cancel()
		if err := s.orch.RegisterTarget(ctx, c.Params("user"), req.ID, req.Position, req.HitRadius); err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(req)
	})

	sessions.Delete("/:user/targets/:target", func(c *fiber.Ctx) error {
		ctx, cancel := s.commandContext()
		defer cancel()
		if err := s.orch.UnregisterTarget(ctx, c.Params("user"), c.Params("target")); err != nil {
			return fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	sessions.Put("/:user/navigation", func(c *fiber.Ctx) error {
		var req protocol.NavigationData
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		}
		ctx, cancel := s.commandContext()
		defer cancel()
		if err := s.orch.SetNavigation(ctx, c.Params("user"), req.Enabled); err != nil {
			return fail(c, err)
		}
		return c.JSON(req)
	})

	// Pull queries
	sessions.Get("/:user/statistics", func(c *fiber.Ctx) error {
		stats, err := s.orch.Statistics(c.Params("user"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(stats)
	})

	sessions.Get("/:user/heatmap", func(c *fiber.Ctx) error {
		top := c.QueryInt("top", 10)
		points, err := s.orch.Heatmap(c.Params("user"), top)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"points": points, "count": len(points)})
	})

	sessions.Get("/:user/targets/:target/stats", func(c *fiber.Ctx) error {
		stats, err := s.orch.GazeStats(c.Params("user"), c.Params("target"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(stats)
	})

	sessions.Get("/:user/issues", func(c *fiber.Ctx) error {
		issues, err := s.orch.Issues(c.Params("user"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"issues": issues, "count": len(issues)})
	})

	sessions.Get("/:user/attention", func(c *fiber.Ctx) error {
		metrics, err := s.orch.Attention(c.Params("user"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(metrics)
	})
}
