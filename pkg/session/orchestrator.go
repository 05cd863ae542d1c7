// Package session runs one independent processing unit per user session
// and exposes the pull query API over them.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/analytics"
	"github.com/teslashibe/go-gaze/pkg/eyetracker"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/ingest"
	"github.com/teslashibe/go-gaze/pkg/stream"
)

// Close reasons
const (
	ReasonClosed   = "closed"
	ReasonIdle     = "idle"
	ReasonShutdown = "shutdown"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces the wall clock used for idle eviction.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = now }
}

// WithObserver installs an operational observer such as a metrics recorder.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithBus publishes outbound events to bus instead of a private one.
func WithBus(bus *stream.Bus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// Orchestrator owns every open session. Sessions share no mutable state;
// the orchestrator lock only guards the session map.
type Orchestrator struct {
	config   Config
	logger   *slog.Logger
	clock    func() time.Time
	observer Observer
	bus      *stream.Bus

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New validates cfg and creates an orchestrator.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		config:   cfg,
		clock:    time.Now,
		observer: nopObserver{},
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.L()
	}
	if o.bus == nil {
		o.bus = stream.New()
	}
	return o, nil
}

// Bus returns the outbound event bus.
func (o *Orchestrator) Bus() *stream.Bus { return o.bus }

// Config returns the engine configuration.
func (o *Orchestrator) Config() Config { return o.config }

// Open starts a session for userID on a device of the given class. Unknown
// classes resolve to the generic capability.
func (o *Orchestrator) Open(userID string, class ingest.DeviceClass) (*Session, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	capability := ingest.Resolve(class)

	o.mu.Lock()
	if _, exists := o.sessions[userID]; exists {
		o.mu.Unlock()
		return nil, ErrSessionExists
	}
	if len(o.sessions) >= o.config.MaxSessions {
		o.mu.Unlock()
		o.observer.SessionRejected()
		o.logger.Warn("session rejected", "user_id", userID, "limit", o.config.MaxSessions)
		return nil, &CapacityError{Limit: o.config.MaxSessions}
	}
	s := newSession(userID, capability, o.config, o.bus, o.observer, o.clock, o.logger)
	o.sessions[userID] = s
	count := len(o.sessions)
	o.mu.Unlock()

	go s.run()
	o.observer.SessionOpened()
	o.logger.Info("session opened",
		"user_id", userID,
		"session_id", s.ID(),
		"device", capability.Class,
		"sessions", count)
	return s, nil
}

// Session returns the open session for userID.
func (o *Orchestrator) Session(userID string) (*Session, error) {
	o.mu.RLock()
	s, ok := o.sessions[userID]
	o.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close disconnects a session, discarding any in-flight fixation candidate
// and dwell timer.
func (o *Orchestrator) Close(userID string) error {
	return o.remove(userID, ReasonClosed)
}

func (o *Orchestrator) remove(userID, reason string) error {
	o.mu.Lock()
	s, ok := o.sessions[userID]
	if ok {
		delete(o.sessions, userID)
	}
	o.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close(reason)
	return nil
}

// Submit routes a sample to its user's session.
func (o *Orchestrator) Submit(ctx context.Context, sample gaze.Sample) error {
	s, err := o.Session(sample.UserID)
	if err != nil {
		return err
	}
	return s.Submit(ctx, sample)
}

// Calibrate calibrates userID's session.
func (o *Orchestrator) Calibrate(ctx context.Context, userID string, points []eyetracker.CalibrationPoint) (eyetracker.Profile, error) {
	s, err := o.Session(userID)
	if err != nil {
		return eyetracker.Profile{}, err
	}
	return s.Calibrate(ctx, points)
}

// RegisterTarget adds a target to userID's scene.
func (o *Orchestrator) RegisterTarget(ctx context.Context, userID, targetID string, position gaze.Vec3, hitRadius float64) error {
	s, err := o.Session(userID)
	if err != nil {
		return err
	}
	return s.RegisterTarget(ctx, targetID, position, hitRadius)
}

// UnregisterTarget removes a target from userID's scene.
func (o *Orchestrator) UnregisterTarget(ctx context.Context, userID, targetID string) error {
	s, err := o.Session(userID)
	if err != nil {
		return err
	}
	return s.UnregisterTarget(ctx, targetID)
}

// SetNavigation toggles gaze navigation for userID.
func (o *Orchestrator) SetNavigation(ctx context.Context, userID string, enabled bool) error {
	s, err := o.Session(userID)
	if err != nil {
		return err
	}
	return s.SetNavigation(ctx, enabled)
}

// Statistics returns userID's event counts.
func (o *Orchestrator) Statistics(userID string) (Statistics, error) {
	s, err := o.Session(userID)
	if err != nil {
		return Statistics{}, err
	}
	return s.Statistics(), nil
}

// Heatmap returns userID's topN heatmap keys ranked by importance.
func (o *Orchestrator) Heatmap(userID string, topN int) ([]analytics.HeatmapPoint, error) {
	s, err := o.Session(userID)
	if err != nil {
		return nil, err
	}
	return s.Snapshot().Heatmap(topN), nil
}

// GazeStats returns dwell time and visit count for one of userID's targets.
func (o *Orchestrator) GazeStats(userID, targetID string) (analytics.GazeStats, error) {
	s, err := o.Session(userID)
	if err != nil {
		return analytics.GazeStats{}, err
	}
	return s.Snapshot().GazeStats(targetID), nil
}

// Issues returns userID's advisory UI issues.
func (o *Orchestrator) Issues(userID string) ([]analytics.Issue, error) {
	s, err := o.Session(userID)
	if err != nil {
		return nil, err
	}
	return s.Snapshot().Issues(), nil
}

// Attention returns userID's latest attention metrics.
func (o *Orchestrator) Attention(userID string) (analytics.Metrics, error) {
	s, err := o.Session(userID)
	if err != nil {
		return analytics.Metrics{}, err
	}
	return s.Snapshot().Metrics, nil
}

// SessionInfo returns operator details for userID's session.
func (o *Orchestrator) SessionInfo(userID string) (Info, error) {
	s, err := o.Session(userID)
	if err != nil {
		return Info{}, err
	}
	return s.Info(), nil
}

// ActiveSessions returns the user ids of every open session, sorted.
func (o *Orchestrator) ActiveSessions() []string {
	o.mu.RLock()
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of open sessions.
func (o *Orchestrator) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}

// EvictIdle disconnects sessions that have received nothing for longer
// than the idle timeout and returns their user ids.
func (o *Orchestrator) EvictIdle() []string {
	now := o.clock()
	var idle []string
	o.mu.RLock()
	for id, s := range o.sessions {
		if s.idleFor(now) > o.config.IdleTimeout {
			idle = append(idle, id)
		}
	}
	o.mu.RUnlock()

	sort.Strings(idle)
	for _, id := range idle {
		if err := o.remove(id, ReasonIdle); err == nil {
			o.logger.Info("session evicted", "user_id", id, "idle_timeout", o.config.IdleTimeout)
		}
	}
	return idle
}

// Run evicts idle sessions until ctx is done, then shuts every session
// down.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.config.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.Shutdown()
			return
		case <-ticker.C:
			o.EvictIdle()
		}
	}
}

// Shutdown disconnects every session.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	sessions := o.sessions
	o.sessions = make(map[string]*Session)
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.close(ReasonShutdown)
		}(s)
	}
	wg.Wait()
}
