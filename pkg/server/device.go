package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-gaze/pkg/eyetracker"
	"github.com/teslashibe/go-gaze/pkg/ingest"
	"github.com/teslashibe/go-gaze/pkg/protocol"
	"github.com/teslashibe/go-gaze/pkg/session"
)

const writeWait = 10 * time.Second

// device is one connected sample stream. Only the handler goroutine
// writes to conn.
type device struct {
	server  *Server
	conn    *websocket.Conn
	userID  string
	session *session.Session
	logger  *slog.Logger
}

// handleDevice runs a device's sample stream. The session is opened on
// connect and closed when the connection drops.
func (s *Server) handleDevice(c *websocket.Conn) {
	userID := c.Params("user")
	class := ingest.DeviceClass(c.Query("device", string(ingest.DeviceGeneric)))

	d := &device{
		server: s,
		conn:   c,
		userID: userID,
		logger: s.logger.With("user_id", userID),
	}

	sess, err := s.orch.Open(userID, class)
	if err != nil {
		d.logger.Warn("device rejected", "error", err)
		d.fail(protocol.TypeHello, err)
		return
	}
	d.session = sess

	s.devices.Add(1)
	d.logger.Debug("device connected", "session_id", sess.ID(), "device", sess.Capability().Class)

	defer func() {
		s.devices.Add(-1)
		// An idle-evicted session may have been replaced by a newer stream
		if cur, err := s.orch.Session(userID); err == nil && cur == sess {
			s.orch.Close(userID)
		}
		d.logger.Debug("device disconnected", "session_id", sess.ID())
	}()

	d.send(protocol.NewWelcomeMessage(sess.ID(), userID, sess.Capability()))

	// Read loop
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		s.messagesReceived.Add(1)
		if err := d.handle(data); err != nil {
			d.logger.Debug("device stream ended", "error", err)
			return
		}
	}
}

// handle dispatches one inbound message. A non-nil return ends the stream.
func (d *device) handle(data []byte) error {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		d.fail("", fmt.Errorf("%w: %v", errBadRequest, err))
		return nil
	}

	switch msg.Type {
	case protocol.TypeHello:
		hello, err := msg.GetHelloData()
		if err != nil {
			return d.reject(msg.Type, err)
		}
		if hello.UserID != "" && hello.UserID != d.userID {
			return d.reject(msg.Type, fmt.Errorf("%w: hello for %q on stream of %q", errBadRequest, hello.UserID, d.userID))
		}
		d.send(protocol.NewWelcomeMessage(d.session.ID(), d.userID, d.session.Capability()))

	case protocol.TypeSample:
		raw, err := msg.GetSampleData()
		if err != nil {
			return d.reject(msg.Type, err)
		}
		return d.submit(*raw)

	case protocol.TypeSamples:
		batch, err := msg.GetSamplesData()
		if err != nil {
			return d.reject(msg.Type, err)
		}
		for _, raw := range batch.Samples {
			if err := d.submit(raw); err != nil {
				return err
			}
		}

	case protocol.TypeCalibrate:
		cal, err := msg.GetCalibrateData()
		if err != nil {
			return d.reject(msg.Type, err)
		}
		ctx, cancel := d.server.commandContext()
		profile, err := d.session.Calibrate(ctx, cal.Points)
		cancel()
		switch {
		case err == nil:
			d.send(protocol.NewCalibratedMessage(&profile, nil))
		case eyetracker.IsCalibrationFailure(err):
			d.send(protocol.NewCalibratedMessage(nil, err))
		default:
			return d.fail(msg.Type, err)
		}

	case protocol.TypeTarget:
		target, err := msg.GetTargetData()
		if err != nil {
			return d.reject(msg.Type, err)
		}
		return d.command(msg.Type, func(ctx context.Context) error {
			return d.session.RegisterTarget(ctx, target.ID, target.Position, target.HitRadius)
		})

	case protocol.TypeUntarget:
		target, err := msg.GetUntargetData()
		if err != nil {
			return d.reject(msg.Type, err)
		}
		return d.command(msg.Type, func(ctx context.Context) error {
			return d.session.UnregisterTarget(ctx, target.ID)
		})

	case protocol.TypeNavigation:
		nav, err := msg.GetNavigationData()
		if err != nil {
			return d.reject(msg.Type, err)
		}
		return d.command(msg.Type, func(ctx context.Context) error {
			return d.session.SetNavigation(ctx, nav.Enabled)
		})

	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return d.reject(msg.Type, err)
		}
		pingTS := ping.Timestamp
		if pingTS == 0 {
			pingTS = msg.Timestamp
		}
		d.send(protocol.NewPongMessage(ping.ID, pingTS, time.Now().UnixMilli()))

	default:
		d.fail(msg.Type, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unsupported message type %q", msg.Type)))
	}
	return nil
}

// submit validates and queues one sample. Samples are not acknowledged;
// only rejections are reported.
func (d *device) submit(raw ingest.Raw) error {
	if raw.UserID == "" {
		raw.UserID = d.userID
	}
	if raw.UserID != d.userID {
		d.server.samplesRejected.Add(1)
		d.fail(protocol.TypeSample, fmt.Errorf("%w: sample for %q on stream of %q", errBadRequest, raw.UserID, d.userID))
		return nil
	}

	sample, err := ingest.Normalize(raw, d.session.Capability())
	if err != nil {
		d.server.samplesRejected.Add(1)
		d.fail(protocol.TypeSample, err)
		return nil
	}

	// Blocks while the session inbox is full
	if err := d.session.Submit(context.Background(), sample); err != nil {
		return d.fail(protocol.TypeSample, err)
	}
	d.server.samplesAccepted.Add(1)
	return nil
}

// command runs a blocking session command and acknowledges it.
func (d *device) command(cmd protocol.MessageType, fn func(ctx context.Context) error) error {
	ctx, cancel := d.server.commandContext()
	defer cancel()
	if err := fn(ctx); err != nil {
		return d.fail(cmd, err)
	}
	d.send(protocol.NewAckMessage(cmd))
	return nil
}

// reject reports a payload that could not be decoded.
func (d *device) reject(cmd protocol.MessageType, err error) error {
	d.fail(cmd, fmt.Errorf("%w: %v", errBadRequest, err))
	return nil
}

// fail reports err to the device. It returns err again when the session is
// gone and the stream should end.
func (d *device) fail(cmd protocol.MessageType, err error) error {
	code := statusFor(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	d.send(protocol.NewErrorMessage(cmd, code, err.Error()))
	if errors.Is(err, session.ErrSessionClosed) {
		return err
	}
	return nil
}

func (d *device) send(msg *protocol.Message, err error) {
	if err != nil {
		d.logger.Warn("encode reply", "error", err)
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		d.logger.Warn("encode reply", "error", err)
		return
	}
	d.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := d.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		d.logger.Debug("write reply", "error", err)
		return
	}
	d.server.messagesSent.Add(1)
}
