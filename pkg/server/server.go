// Package server exposes gaze sessions over HTTP: a websocket sample
// stream per device, a websocket event stream for subscribers, and the
// REST pull query API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	reqlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/session"
)

// Config holds server settings.
type Config struct {
	Addr           string
	Version        string
	Debug          bool          // Log every request
	CommandTimeout time.Duration // Bound on blocking session commands
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		Version:        "dev",
		CommandTimeout: 5 * time.Second,
	}
}

// Stats contains server counters
type Stats struct {
	Devices          int64  `json:"devices"`
	Sessions         int    `json:"sessions"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	SamplesAccepted  uint64 `json:"samples_accepted"`
	SamplesRejected  uint64 `json:"samples_rejected"`
}

// Server routes device streams and queries to the orchestrator.
type Server struct {
	config Config
	app    *fiber.App
	orch   *session.Orchestrator
	events *hub.Hub
	logger *slog.Logger

	devices          atomic.Int64
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	samplesAccepted  atomic.Uint64
	samplesRejected  atomic.Uint64
}

// New creates a server with all routes registered. A nil logger uses the
// global logger.
func New(orch *session.Orchestrator, events *hub.Hub, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = log.L()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultConfig().CommandTimeout
	}

	s := &Server{
		config: cfg,
		orch:   orch,
		events: events,
		logger: logger.With("component", "server"),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "gazed",
		DisableStartupMessage: true,
	})

	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if cfg.Debug {
		s.app.Use(reqlog.New())
	}

	s.app.Get("/health", s.handleHealth)
	s.app.Get("/metrics", s.handleMetrics)
	s.registerStreams()
	s.registerAPI(s.app.Group("/api"))
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Start listens on the configured address. It blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.config.Addr)
	return s.app.Listen(s.config.Addr)
}

// Serve accepts connections on ln. It blocks until shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Stats returns server counters
func (s *Server) Stats() Stats {
	return Stats{
		Devices:          s.devices.Load(),
		Sessions:         s.orch.Len(),
		MessagesReceived: s.messagesReceived.Load(),
		MessagesSent:     s.messagesSent.Load(),
		SamplesAccepted:  s.samplesAccepted.Load(),
		SamplesRejected:  s.samplesRejected.Load(),
	}
}

func (s *Server) registerStreams() {
	// WebSocket upgrade middleware
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.app.Get("/ws/gaze/:user", websocket.New(s.handleDevice))
	s.app.Get("/ws/events", websocket.New(s.handleEvents))
}

// handleEvents streams outbound events to a subscriber. The optional user
// and kinds (comma list) query parameters narrow the stream.
func (s *Server) handleEvents(c *websocket.Conn) {
	client := hub.NewClient(s.events, c, hub.Filter{
		UserID: c.Query("user"),
		Kinds:  hub.ParseKinds(c.Query("kinds")),
	})
	if client == nil {
		return
	}
	client.Run()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "ok",
		"version":     s.config.Version,
		"sessions":    s.orch.Len(),
		"subscribers": s.events.ClientCount(),
	})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	stats := s.Stats()
	events := s.events.Stats()
	bus := s.orch.Bus().Stats()
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(fmt.Sprintf(`# HELP gazed_sessions Open session count
# TYPE gazed_sessions gauge
gazed_sessions %d

# HELP gazed_devices Connected device streams
# TYPE gazed_devices gauge
gazed_devices %d

# HELP gazed_subscribers Connected event subscribers
# TYPE gazed_subscribers gauge
gazed_subscribers %d

# HELP gazed_messages_received Total device messages received
# TYPE gazed_messages_received counter
gazed_messages_received %d

# HELP gazed_messages_sent Total device replies sent
# TYPE gazed_messages_sent counter
gazed_messages_sent %d

# HELP gazed_samples_accepted Total samples queued to a session
# TYPE gazed_samples_accepted counter
gazed_samples_accepted %d

# HELP gazed_samples_rejected Total samples rejected by validation
# TYPE gazed_samples_rejected counter
gazed_samples_rejected %d

# HELP gazed_events_published Total outbound events published
# TYPE gazed_events_published counter
gazed_events_published %d

# HELP gazed_events_dropped Total outbound events dropped for slow subscribers
# TYPE gazed_events_dropped counter
gazed_events_dropped %d
`, stats.Sessions, stats.Devices, events.Clients,
		stats.MessagesReceived, stats.MessagesSent,
		stats.SamplesAccepted, stats.SamplesRejected,
		bus.TotalPublished, bus.TotalDropped+events.SlowDropped+events.Overflow))
}

func (s *Server) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.config.CommandTimeout)
}
