// gazesim: Simulated eye-tracker for gazed
// Connects as a device, calibrates, registers targets and streams synthetic
// fixations, saccades and blinks at the device sample rate
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/eyetracker"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/ingest"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

var (
	server  = flag.String("server", "ws://localhost:8080", "gazed base URL")
	user    = flag.String("user", "sim-user", "User id")
	device  = flag.String("device", string(ingest.DeviceHeadset), "Device class")
	noise   = flag.Float64("noise", 0.3, "Angular noise in degrees")
	batch   = flag.Int("batch", 9, "Samples per message")
	verbose = flag.Bool("v", false, "Log every event")
)

// target is a simulated interactive element.
type target struct {
	id     string
	yaw    float64
	pitch  float64
	radius float64
}

var targets = []target{
	{id: "play", yaw: 14, pitch: 0, radius: 0.15},
	{id: "menu", yaw: -14, pitch: 0, radius: 0.15},
	{id: "settings", yaw: 0, pitch: -12, radius: 0.12},
}

const targetDistance = 2.0

func main() {
	flag.Parse()
	log.Init("info")

	capability := ingest.Resolve(ingest.DeviceClass(*device))
	url := fmt.Sprintf("%s/ws/gaze/%s?device=%s", *server, *user, capability.Class)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.Dial(url, nil)
	if err != nil {
		log.Error("failed to connect", "url", url, "error", err)
		os.Exit(1)
	}
	defer ws.Close()
	log.Info("connected", "url", url, "rate_hz", capability.SampleRateHz)

	sim := &simulator{
		ws:         ws,
		capability: capability,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 7)),
		quit:       make(chan struct{}),
	}
	go sim.readLoop(ws)

	// Gaze events are published on the event stream, not the device stream
	events, _, err := dialer.Dial(fmt.Sprintf("%s/ws/events?user=%s", *server, *user), nil)
	if err != nil {
		log.Warn("event stream unavailable", "error", err)
	} else {
		defer events.Close()
		go sim.readLoop(events)
	}

	for _, t := range targets {
		pos := gaze.FromYawPitch(t.yaw, t.pitch).Scale(targetDistance)
		if err := sim.send(protocol.NewTargetMessage(t.id, pos, t.radius)); err != nil {
			log.Error("register target", "id", t.id, "error", err)
			os.Exit(1)
		}
	}
	if err := sim.send(protocol.NewCalibrateMessage(sim.calibration())); err != nil {
		log.Error("calibrate", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		sim.stop()
	}()

	sim.run()
	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	log.Info("done", "samples", sim.sent)
}

type simulator struct {
	ws         *websocket.Conn
	capability ingest.Capability
	rng        *rand.Rand

	writeMu sync.Mutex
	quit    chan struct{}
	once    sync.Once

	ts      int64
	yaw     float64
	pitch   float64
	pending []ingest.Raw
	sent    int
}

func (s *simulator) stop() {
	s.once.Do(func() { close(s.quit) })
}

func (s *simulator) stopped() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// calibration returns a 9-point grid with small measurement error.
func (s *simulator) calibration() []eyetracker.CalibrationPoint {
	var pts []eyetracker.CalibrationPoint
	for _, yaw := range []float64{-15, 0, 15} {
		for _, pitch := range []float64{-10, 0, 10} {
			pts = append(pts, eyetracker.CalibrationPoint{
				Target:   gaze.FromYawPitch(yaw, pitch),
				Measured: gaze.FromYawPitch(yaw+s.jitter(), pitch+s.jitter()),
			})
		}
	}
	return pts
}

func (s *simulator) jitter() float64 {
	return s.rng.NormFloat64() * *noise
}

// run cycles through the targets: dwell long enough to select, blink,
// saccade to the next one.
func (s *simulator) run() {
	period := time.Duration(s.capability.NominalPeriodMs() * float64(time.Millisecond))
	ticker := time.NewTicker(period * time.Duration(*batch))
	defer ticker.Stop()

	script := s.script()
	for i := 0; ; i++ {
		st := script[i%len(script)]
		total := st.samples(s.capability)
		for n := 0; n < total; {
			select {
			case <-s.quit:
				return
			case <-ticker.C:
			}
			for k := 0; k < *batch && n < total; k, n = k+1, n+1 {
				s.emit(st)
			}
			if err := s.flush(); err != nil {
				log.Error("send samples", "error", err)
				return
			}
		}
		if s.stopped() {
			return
		}
	}
}

// step is one phase of the scripted gaze path.
type step struct {
	kind       string // fixate, move, blink
	yaw, pitch float64
	durationMs float64
}

func (st step) samples(c ingest.Capability) int {
	n := int(st.durationMs / c.NominalPeriodMs())
	if n < 1 {
		n = 1
	}
	return n
}

func (s *simulator) script() []step {
	var out []step
	for _, t := range targets {
		out = append(out,
			step{kind: "move", yaw: t.yaw, pitch: t.pitch, durationMs: 40},
			step{kind: "fixate", yaw: t.yaw, pitch: t.pitch, durationMs: 1200},
			step{kind: "blink", durationMs: 150},
			step{kind: "fixate", yaw: t.yaw, pitch: t.pitch, durationMs: 300},
		)
	}
	return out
}

func (s *simulator) emit(st step) {
	s.ts += int64(s.capability.NominalPeriodMs())
	raw := ingest.Raw{
		UserID:      *user,
		TimestampMs: s.ts,
		PupilMm:     3.5 + s.rng.NormFloat64()*0.1,
		Confidence:  0.95,
	}

	switch st.kind {
	case "move":
		// Cover the remaining distance in equal steps
		steps := float64(st.samples(s.capability))
		s.yaw += (st.yaw - s.yaw) / steps
		s.pitch += (st.pitch - s.pitch) / steps
	case "fixate":
		s.yaw, s.pitch = st.yaw, st.pitch
	case "blink":
		raw.Confidence = 0.05
		raw.PupilMm = 0
	}

	dir := gaze.FromYawPitch(s.yaw+s.jitter()*0.2, s.pitch+s.jitter()*0.2)
	raw.Direction = &dir
	s.pending = append(s.pending, raw)
}

func (s *simulator) flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	var err error
	if len(s.pending) == 1 {
		err = s.send(protocol.NewSampleMessage(s.pending[0]))
	} else {
		err = s.send(protocol.NewSamplesMessage(s.pending))
	}
	s.sent += len(s.pending)
	s.pending = s.pending[:0]
	return err
}

func (s *simulator) send(msg *protocol.Message, err error) error {
	if err != nil {
		return err
	}
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.ws.WriteMessage(websocket.TextMessage, data)
}

func (s *simulator) readLoop(conn *websocket.Conn) {
	defer s.stop()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Warn("connection closed", "error", err)
			}
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			log.Warn("invalid message", "error", err)
			continue
		}
		s.report(msg)
	}
}

func (s *simulator) report(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeWelcome:
		if w, err := msg.GetWelcomeData(); err == nil {
			log.Info("session opened", "session_id", w.SessionID, "device", w.Device.Class)
		}
	case protocol.TypeCalibrated:
		if c, err := msg.GetCalibratedData(); err == nil {
			if c.Accepted {
				log.Info("calibrated", "quality", c.Profile.Quality)
			} else {
				log.Warn("calibration rejected", "reason", c.Reason)
			}
		}
	case protocol.TypeAck:
		log.Debug("ack", "data", string(msg.Data))
	case protocol.TypeError:
		if e, err := msg.GetErrorData(); err == nil {
			log.Warn("server error", "command", e.Command, "code", e.Code, "message", e.Message)
		}
	case protocol.TypeSelection:
		if ev, err := msg.GetSelectionEvent(); err == nil {
			log.Info("selected", "target", ev.TargetID, "dwell_ms", ev.DwellMs)
		}
	default:
		if *verbose {
			log.Info("event", "type", msg.Type, "data", string(msg.Data))
		}
	}
}
