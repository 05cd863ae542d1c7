package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gaze/pkg/analytics"
	"github.com/teslashibe/go-gaze/pkg/eyetracker"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/ingest"
	"github.com/teslashibe/go-gaze/pkg/interaction"
	"github.com/teslashibe/go-gaze/pkg/stream"
)

// AttentionSnapshot is the periodic outbound attention message.
type AttentionSnapshot struct {
	UserID       string            `json:"user_id"`
	SessionID    string            `json:"session_id"`
	Ts           int64             `json:"ts"`
	Metrics      analytics.Metrics `json:"metrics"`
	TrackingLost bool              `json:"tracking_lost"`
}

// Info describes a session for operators.
type Info struct {
	SessionID       string              `json:"session_id"`
	UserID          string              `json:"user_id"`
	State           State               `json:"state"`
	Device          ingest.Capability   `json:"device"`
	Profile         *eyetracker.Profile `json:"profile,omitempty"`
	TrackingLost    bool                `json:"tracking_lost"`
	NavigationMode  bool                `json:"navigation_mode"`
	Targets         int                 `json:"targets"`
	SamplesReceived uint64              `json:"samples_received"`
	SamplesDropped  uint64              `json:"samples_dropped"`
	CreatedAt       time.Time           `json:"created_at"`
	LastActivity    time.Time           `json:"last_activity"`
}

// Inbox messages. Every mutation of pipeline state goes through the inbox
// so that a single goroutine owns it.
type (
	sampleMsg struct {
		sample gaze.Sample
	}
	calibrateMsg struct {
		points []eyetracker.CalibrationPoint
		reply  chan calibrateResult
	}
	calibrateResult struct {
		profile eyetracker.Profile
		err     error
	}
	registerMsg struct {
		target interaction.Target
		reply  chan error
	}
	unregisterMsg struct {
		id    string
		reply chan error
	}
	navigationMsg struct {
		enabled bool
		reply   chan error
	}
	syncMsg struct {
		reply chan struct{}
	}
)

// Session is one user's processing unit. A dedicated goroutine owns the
// pipeline; queries read atomically published state and never block it.
type Session struct {
	id         string
	userID     string
	capability ingest.Capability
	createdAt  time.Time

	config   Config
	logger   *slog.Logger
	bus      *stream.Bus
	observer Observer
	clock    func() time.Time

	inbox     chan any
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the run goroutine
	pipeline    *Pipeline
	closeReason string

	// Published for readers
	state        atomic.Int32
	lastActivity atomic.Int64
	received     atomic.Uint64
	dropped      atomic.Uint64
	trackingLost atomic.Bool
	navigation   atomic.Bool
	targets      atomic.Int32
	stats        atomic.Pointer[Statistics]
	snapshot     atomic.Pointer[analytics.Snapshot]
	profile      atomic.Pointer[eyetracker.Profile]
}

func newSession(userID string, capability ingest.Capability, cfg Config, bus *stream.Bus, observer Observer, clock func() time.Time, logger *slog.Logger) *Session {
	id := uuid.New().String()
	s := &Session{
		id:         id,
		userID:     userID,
		capability: capability,
		createdAt:  clock(),
		config:     cfg,
		logger:     logger.With("user_id", userID, "session_id", id),
		bus:        bus,
		observer:   observer,
		clock:      clock,
		inbox:      make(chan any, cfg.InboxSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.pipeline = NewPipeline(userID, capability, cfg, s.logger)
	s.navigation.Store(cfg.Interaction.Navigation.Enabled)
	s.stats.Store(&Statistics{})
	s.snapshot.Store(analytics.EmptySnapshot())
	s.touch()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// UserID returns the owning user.
func (s *Session) UserID() string { return s.userID }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Capability returns the device capability resolved at open.
func (s *Session) Capability() ingest.Capability { return s.capability }

// Done is closed once the session has disconnected.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) touch() {
	s.lastActivity.Store(s.clock().UnixNano())
}

func (s *Session) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastActivity.Load()))
}

// run is the session's processing loop.
func (s *Session) run() {
	ticker := time.NewTicker(s.config.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			s.shutdown()
			return
		case m := <-s.inbox:
			s.handle(m)
		case <-ticker.C:
			s.publishSnapshot()
		}
	}
}

func (s *Session) handle(m any) {
	switch msg := m.(type) {
	case sampleMsg:
		s.processSample(msg.sample)
	case calibrateMsg:
		profile, err := s.calibrate(msg.points)
		msg.reply <- calibrateResult{profile: profile, err: err}
	case registerMsg:
		err := s.pipeline.Interaction().RegisterTarget(msg.target.ID, msg.target.Position, msg.target.HitRadius)
		s.targets.Store(int32(s.pipeline.Interaction().Registry().Len()))
		msg.reply <- err
	case unregisterMsg:
		err := s.pipeline.Interaction().UnregisterTarget(msg.id)
		s.targets.Store(int32(s.pipeline.Interaction().Registry().Len()))
		msg.reply <- err
	case navigationMsg:
		if s.State() != StateActive {
			msg.reply <- ErrNotActive
			return
		}
		s.pipeline.Interaction().SetNavigation(msg.enabled)
		s.navigation.Store(msg.enabled)
		msg.reply <- nil
	case syncMsg:
		s.publishSnapshot()
		close(msg.reply)
	}
}

func (s *Session) processSample(sample gaze.Sample) {
	s.received.Add(1)
	if s.State() != StateActive {
		s.dropped.Add(1)
		s.observer.SampleDropped(DropNotActive)
		return
	}

	start := time.Now()
	tracker := s.pipeline.Tracker()
	droppedBefore := tracker.Stats().Dropped

	events := s.pipeline.Process(sample)

	if tracker.Stats().Dropped != droppedBefore {
		s.dropped.Add(1)
		s.observer.SampleDropped(DropOutOfOrder)
		s.logger.Debug("sample dropped", "reason", DropOutOfOrder, "ts", sample.TimestampMs)
	}

	lost := tracker.TrackingLost()
	if s.trackingLost.Swap(lost) != lost {
		if lost {
			s.logger.Info("tracking lost", "ts", sample.TimestampMs)
		} else {
			s.logger.Info("tracking recovered", "ts", sample.TimestampMs)
		}
	}

	if len(events) > 0 {
		stats := s.pipeline.Statistics()
		s.stats.Store(&stats)
		for _, ev := range events {
			s.bus.Publish(stream.Message{
				UserID:  s.userID,
				Kind:    stream.Kind(ev.Kind()),
				Ts:      ev.Time(),
				Payload: ev,
			})
			s.observer.EventEmitted(ev.Kind())
		}
	}
	s.observer.SampleProcessed(time.Since(start))
}

func (s *Session) calibrate(points []eyetracker.CalibrationPoint) (eyetracker.Profile, error) {
	prev := s.State()
	if prev == StateActive {
		s.state.Store(int32(StateRecalibrating))
	} else {
		s.state.Store(int32(StateCalibrating))
	}

	profile, err := s.pipeline.Calibrate(points)
	s.observer.CalibrationCompleted(profile.Quality, err)
	if err != nil {
		if prev == StateActive {
			s.state.Store(int32(StateActive))
		} else {
			s.state.Store(int32(StateUninitialized))
		}
		return profile, err
	}

	s.profile.Store(&profile)
	s.state.Store(int32(StateActive))
	s.publishSnapshot()
	return profile, nil
}

// publishSnapshot runs the periodic pass: heatmap compaction, a fresh
// immutable snapshot, and an outbound attention message.
func (s *Session) publishSnapshot() {
	if s.State() != StateActive {
		return
	}
	a := s.pipeline.Analytics()
	a.Compact()
	snap := a.Snapshot()
	s.snapshot.Store(snap)

	s.bus.Publish(stream.Message{
		UserID: s.userID,
		Kind:   stream.KindAttention,
		Ts:     snap.Ts,
		Payload: AttentionSnapshot{
			UserID:       s.userID,
			SessionID:    s.id,
			Ts:           snap.Ts,
			Metrics:      snap.Metrics,
			TrackingLost: s.trackingLost.Load(),
		},
	})
}

func (s *Session) shutdown() {
	s.state.Store(int32(StateDisconnected))
	s.pipeline.Discard()
	s.pipeline = nil
	s.snapshot.Store(analytics.EmptySnapshot())
	s.observer.SessionClosed(s.closeReason)
	s.logger.Info("session disconnected", "reason", s.closeReason)
	close(s.done)
}

// close disconnects the session and waits for its goroutine to exit.
func (s *Session) close(reason string) {
	s.closeOnce.Do(func() {
		s.closeReason = reason
		close(s.quit)
	})
	<-s.done
}

// send queues m for the run goroutine.
func (s *Session) send(ctx context.Context, m any) error {
	select {
	case <-s.quit:
		return ErrSessionClosed
	default:
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.quit:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, s *Session, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		return zero, ErrSessionClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Submit queues a sample. Samples arriving before calibration completes
// are dropped and counted.
func (s *Session) Submit(ctx context.Context, sample gaze.Sample) error {
	s.touch()
	return s.send(ctx, sampleMsg{sample: sample})
}

// Calibrate blocks until the calibration has been evaluated. On failure
// the session keeps its previous profile, if any.
func (s *Session) Calibrate(ctx context.Context, points []eyetracker.CalibrationPoint) (eyetracker.Profile, error) {
	reply := make(chan calibrateResult, 1)
	if err := s.send(ctx, calibrateMsg{points: points, reply: reply}); err != nil {
		return eyetracker.Profile{}, err
	}
	res, err := await(ctx, s, reply)
	if err != nil {
		return eyetracker.Profile{}, err
	}
	return res.profile, res.err
}

// RegisterTarget adds an interactive target to the session's scene.
func (s *Session) RegisterTarget(ctx context.Context, id string, position gaze.Vec3, hitRadius float64) error {
	reply := make(chan error, 1)
	msg := registerMsg{target: interaction.Target{ID: id, Position: position, HitRadius: hitRadius}, reply: reply}
	if err := s.send(ctx, msg); err != nil {
		return err
	}
	res, err := await(ctx, s, reply)
	if err != nil {
		return err
	}
	return res
}

// UnregisterTarget removes a target.
func (s *Session) UnregisterTarget(ctx context.Context, id string) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, unregisterMsg{id: id, reply: reply}); err != nil {
		return err
	}
	res, err := await(ctx, s, reply)
	if err != nil {
		return err
	}
	return res
}

// SetNavigation toggles gaze navigation. The session must be calibrated.
func (s *Session) SetNavigation(ctx context.Context, enabled bool) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, navigationMsg{enabled: enabled, reply: reply}); err != nil {
		return err
	}
	res, err := await(ctx, s, reply)
	if err != nil {
		return err
	}
	return res
}

// Sync waits until every previously queued message has been processed and
// a fresh snapshot is published.
func (s *Session) Sync(ctx context.Context) error {
	reply := make(chan struct{})
	if err := s.send(ctx, syncMsg{reply: reply}); err != nil {
		return err
	}
	_, err := await(ctx, s, reply)
	return err
}

// Statistics returns the event counts.
func (s *Session) Statistics() Statistics {
	return *s.stats.Load()
}

// Snapshot returns the latest published analytics snapshot, or an empty
// one unless the session is calibrated and active.
func (s *Session) Snapshot() *analytics.Snapshot {
	if s.State() != StateActive {
		return analytics.EmptySnapshot()
	}
	return s.snapshot.Load()
}

// Info returns operator-facing session details.
func (s *Session) Info() Info {
	return Info{
		SessionID:       s.id,
		UserID:          s.userID,
		State:           s.State(),
		Device:          s.capability,
		Profile:         s.profile.Load(),
		TrackingLost:    s.trackingLost.Load(),
		NavigationMode:  s.navigation.Load(),
		Targets:         int(s.targets.Load()),
		SamplesReceived: s.received.Load(),
		SamplesDropped:  s.dropped.Load(),
		CreatedAt:       s.createdAt,
		LastActivity:    time.Unix(0, s.lastActivity.Load()),
	}
}
