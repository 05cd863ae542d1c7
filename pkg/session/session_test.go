package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/analytics"
	"github.com/teslashibe/go-gaze/pkg/eyetracker"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/ingest"
	"github.com/teslashibe/go-gaze/pkg/stream"
)

func tsAt(i int) int64 { return int64(i) * 1000 / 90 }

func calibrationPoints(errDeg float64) []eyetracker.CalibrationPoint {
	var pts []eyetracker.CalibrationPoint
	for _, yaw := range []float64{-15, 0, 15} {
		for _, pitch := range []float64{-10, 0, 10} {
			pts = append(pts, eyetracker.CalibrationPoint{
				Target:   gaze.FromYawPitch(yaw, pitch),
				Measured: gaze.FromYawPitch(yaw+errDeg, pitch-errDeg),
			})
		}
	}
	return pts
}

// Alternating large errors that no offset can correct.
func badCalibrationPoints() []eyetracker.CalibrationPoint {
	pts := calibrationPoints(0)
	for i := range pts {
		yaw, pitch := gaze.YawPitch(pts[i].Target)
		e := 3.0
		if i%2 == 1 {
			e = -3
		}
		pts[i].Measured = gaze.FromYawPitch(yaw+e, pitch)
	}
	return pts
}

func toward(p gaze.Vec3) gaze.Vec3 {
	d, _ := p.Normalize()
	return d
}

func sampleAt(userID string, i int, dir gaze.Vec3) gaze.Sample {
	return gaze.Sample{
		UserID:      userID,
		TimestampMs: tsAt(i),
		Direction:   dir,
		PupilMm:     4,
		Confidence:  1,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SnapshotInterval = 50 * time.Millisecond
	return cfg
}

func newOrchestrator(t *testing.T, cfg Config, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithLogger(log.Nop())}, opts...)
	o, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(o.Shutdown)
	return o
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var targetPos = gaze.Vec3{X: 0.5, Y: 0, Z: -2.0}

func TestPipelineDwellSelection(t *testing.T) {
	p := NewPipeline("alice", ingest.Resolve(ingest.DeviceHeadset), DefaultConfig(), log.Nop())
	if _, err := p.Calibrate(calibrationPoints(0.01)); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if err := p.Interaction().RegisterTarget("button", targetPos, 0.2); err != nil {
		t.Fatal(err)
	}

	var selections []gaze.SelectionEvent
	for i := 0; tsAt(i) <= 900; i++ {
		for _, ev := range p.Process(sampleAt("alice", i, toward(targetPos))) {
			if sel, ok := ev.(gaze.SelectionEvent); ok {
				selections = append(selections, sel)
			}
		}
	}
	if len(selections) != 1 {
		t.Fatalf("selections = %d, want 1", len(selections))
	}
	if ts := selections[0].Ts; ts < 790 || ts > 812 {
		t.Errorf("selection at %dms, want ~800ms", ts)
	}
	if got := p.Statistics().SelectionCount; got != 1 {
		t.Errorf("SelectionCount = %d", got)
	}
}

func TestPipelineNoSelectionBeforeCalibration(t *testing.T) {
	p := NewPipeline("alice", ingest.Resolve(ingest.DeviceGeneric), DefaultConfig(), log.Nop())
	_ = p.Interaction().RegisterTarget("button", targetPos, 0.2)
	for i := 0; tsAt(i) <= 2000; i++ {
		for _, ev := range p.Process(sampleAt("alice", i, toward(targetPos))) {
			if ev.Kind() == gaze.KindSelection {
				t.Fatal("selection before calibration")
			}
		}
	}
}

func newCalibratedPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p := NewPipeline("alice", ingest.Resolve(ingest.DeviceHeadset), DefaultConfig(), log.Nop())
	if _, err := p.Calibrate(calibrationPoints(0.01)); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if err := p.Interaction().RegisterTarget("button", targetPos, 0.2); err != nil {
		t.Fatal(err)
	}
	return p
}

// Stale and duplicate samples interleaved with a dwell are dropped before
// they reach the dwell timer or the analytics window.
func TestPipelineStaleSamplesDuringDwell(t *testing.T) {
	tests := []struct {
		name           string
		untilMs        int64
		wantSelections int
	}{
		{"held past threshold", 900, 1},
		{"released at 750ms", 750, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newCalibratedPipeline(t)
			clean := newCalibratedPipeline(t)

			var selections []gaze.SelectionEvent
			stale := 0
			i := 0
			for ; tsAt(i) < tt.untilMs; i++ {
				s := sampleAt("alice", i, toward(targetPos))
				clean.Process(s)
				for _, ev := range p.Process(s) {
					if sel, ok := ev.(gaze.SelectionEvent); ok {
						selections = append(selections, sel)
					}
				}
				if i > 0 && i%9 == 0 {
					for _, j := range []int{0, i, i - 4} {
						old := sampleAt("alice", j, toward(targetPos))
						old.PupilMm = 9
						if got := p.Process(old); got != nil {
							t.Fatalf("stale sample %d produced %v", j, got)
						}
						stale++
					}
				}
			}
			// Release
			for _, ev := range p.Process(sampleAt("alice", i, gaze.Forward)) {
				if sel, ok := ev.(gaze.SelectionEvent); ok {
					selections = append(selections, sel)
				}
			}
			clean.Process(sampleAt("alice", i, gaze.Forward))

			if len(selections) != tt.wantSelections {
				t.Fatalf("selections = %+v, want %d", selections, tt.wantSelections)
			}
			if tt.wantSelections > 0 {
				if ts := selections[0].Ts; ts < 790 || ts > 812 {
					t.Errorf("selection at %dms, want ~800ms", ts)
				}
			}
			if target, ms := p.Interaction().Dwell(); target != "" || ms != 0 {
				t.Errorf("Dwell() = (%q, %d), want reset after release", target, ms)
			}
			if got := p.Tracker().Stats().Dropped; got != uint64(stale) {
				t.Errorf("Dropped = %d, want %d", got, stale)
			}
			if got, want := p.Analytics().Metrics(), clean.Analytics().Metrics(); !reflect.DeepEqual(got, want) {
				t.Errorf("metrics with stale samples = %+v, want %+v", got, want)
			}
		})
	}
}

// Minutes of brief fixations bouncing between two targets with a restless
// pupil: every load component is high, not just enough to cross the line.
func TestPipelineFatigueScenario(t *testing.T) {
	cfg := DefaultConfig()
	p := NewPipeline("alice", ingest.Resolve(ingest.DeviceHeadset), cfg, log.Nop())
	if _, err := p.Calibrate(calibrationPoints(0.01)); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	_ = p.Interaction().RegisterTarget("left", gaze.FromYawPitch(-8, 0).Scale(2), 0.2)
	_ = p.Interaction().RegisterTarget("right", gaze.FromYawPitch(8, 0).Scale(2), 0.2)

	const perFixation = 15 // ~165 ms at 90 Hz
	for i := 0; tsAt(i) < 3*60*1000; i++ {
		k := i / perFixation
		yaw, pupil := -8.0, 3.6
		if k%2 == 1 {
			yaw, pupil = 8, 4.4
		}
		s := sampleAt("alice", i, gaze.FromYawPitch(yaw, 0))
		s.PupilMm = pupil
		p.Process(s)
	}

	m := p.Analytics().Metrics()
	c := m.Components
	if c.ShortFixationRatio < 0.9 {
		t.Errorf("ShortFixationRatio = %v, want most fixations short", c.ShortFixationRatio)
	}
	if c.HighSaccadeRatio < 0.99 {
		t.Errorf("HighSaccadeRatio = %v, want saturated", c.HighSaccadeRatio)
	}
	if c.PupilVariability < 0.5 {
		t.Errorf("PupilVariability = %v, want high", c.PupilVariability)
	}
	if c.BlinkRateNormalized != 0 {
		t.Errorf("BlinkRateNormalized = %v, want 0 without blinks", c.BlinkRateNormalized)
	}
	if margin := m.CognitiveLoad - cfg.Analytics.DistractedBelow; margin < 0.2 {
		t.Errorf("load = %v, want well above the fatigue threshold %v", m.CognitiveLoad, cfg.Analytics.DistractedBelow)
	}
	if m.AttentionLevel != analytics.LevelFatigued {
		t.Errorf("level = %v, want fatigued", m.AttentionLevel)
	}
	if m.AvgFixationDurationMs <= 0 || m.AvgFixationDurationMs >= 200 {
		t.Errorf("avg fixation = %vms, want brief", m.AvgFixationDurationMs)
	}
	if st := p.Statistics(); st.FixationCount == 0 || st.SaccadeCount == 0 {
		t.Errorf("statistics = %+v", st)
	}
}

func TestSessionLifecycle(t *testing.T) {
	o := newOrchestrator(t, testConfig())
	ctx := ctxT(t)

	s, err := o.Open("alice", ingest.DeviceHeadset)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.State() != StateUninitialized {
		t.Errorf("state = %v, want uninitialized", s.State())
	}

	// Samples before calibration are dropped
	for i := 0; i < 10; i++ {
		if err := o.Submit(ctx, sampleAt("alice", i, gaze.Forward)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	info := s.Info()
	if info.SamplesReceived != 10 || info.SamplesDropped != 10 {
		t.Errorf("info = %+v, want 10 received and dropped", info)
	}
	if hm, _ := o.Heatmap("alice", 10); len(hm) != 0 {
		t.Errorf("heatmap before calibration = %+v", hm)
	}
	if err := o.SetNavigation(ctx, "alice", true); !errors.Is(err, ErrNotActive) {
		t.Errorf("SetNavigation before calibration: err = %v", err)
	}

	// Failed first calibration stays uninitialized
	if _, err := o.Calibrate(ctx, "alice", badCalibrationPoints()); !eyetracker.IsCalibrationFailure(err) {
		t.Fatalf("bad calibration: err = %v", err)
	}
	if s.State() != StateUninitialized {
		t.Errorf("state after failure = %v", s.State())
	}

	profile, err := o.Calibrate(ctx, "alice", calibrationPoints(0.01))
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if profile.Quality < 0.95 {
		t.Errorf("quality = %v, want >= 0.95", profile.Quality)
	}
	if s.State() != StateActive {
		t.Errorf("state = %v, want active", s.State())
	}

	// Failed recalibration keeps the previous profile
	if _, err := s.Calibrate(ctx, calibrationPoints(0)[:3]); !errors.Is(err, eyetracker.ErrInsufficientSamples) {
		t.Errorf("short recalibration: err = %v", err)
	}
	if s.State() != StateActive {
		t.Errorf("state after failed recalibration = %v", s.State())
	}
	if got := s.Info().Profile; got == nil || got.ID != profile.ID {
		t.Errorf("profile = %+v, want %s", got, profile.ID)
	}

	if err := o.SetNavigation(ctx, "alice", true); err != nil {
		t.Errorf("SetNavigation: %v", err)
	}
	if !s.Info().NavigationMode {
		t.Error("navigation mode not reported")
	}

	if err := o.Close("alice"); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", s.State())
	}
	if err := s.Submit(ctx, sampleAt("alice", 100, gaze.Forward)); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Submit after close: err = %v", err)
	}
	if _, err := o.Statistics("alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Statistics after close: err = %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessions = 2
	o := newOrchestrator(t, cfg)
	ctx := ctxT(t)

	if _, err := o.Open("", ingest.DeviceGeneric); !errors.Is(err, ErrEmptyUserID) {
		t.Errorf("empty user: err = %v", err)
	}
	if _, err := o.Open("a", ingest.DeviceGeneric); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Open("a", ingest.DeviceGeneric); !errors.Is(err, ErrSessionExists) {
		t.Errorf("duplicate: err = %v", err)
	}
	b, err := o.Open("b", "unknown-device")
	if err != nil {
		t.Fatal(err)
	}
	if b.Capability().Class != ingest.DeviceGeneric {
		t.Errorf("unknown class resolved to %q", b.Capability().Class)
	}

	_, err = o.Open("c", ingest.DeviceGeneric)
	if !IsCapacity(err) {
		t.Fatalf("over capacity: err = %v", err)
	}
	var ce *CapacityError
	if !errors.As(err, &ce) || ce.Limit != 2 {
		t.Errorf("CapacityError = %+v", ce)
	}

	// Existing sessions are unaffected
	if err := o.Submit(ctx, sampleAt("a", 1, gaze.Forward)); err != nil {
		t.Errorf("Submit after rejection: %v", err)
	}
	if got := o.ActiveSessions(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("ActiveSessions = %v", got)
	}
	if _, err := o.Statistics("zed"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown user: err = %v", err)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestIdleEviction(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	o := newOrchestrator(t, testConfig(), WithClock(clock.Now))
	ctx := ctxT(t)

	idle, _ := o.Open("idle", ingest.DeviceGeneric)
	busy, _ := o.Open("busy", ingest.DeviceGeneric)

	clock.Advance(90 * time.Second)
	if err := busy.Submit(ctx, sampleAt("busy", 1, gaze.Forward)); err != nil {
		t.Fatal(err)
	}
	clock.Advance(60 * time.Second)

	evicted := o.EvictIdle()
	if !reflect.DeepEqual(evicted, []string{"idle"}) {
		t.Fatalf("evicted = %v, want [idle]", evicted)
	}
	select {
	case <-idle.Done():
	case <-time.After(time.Second):
		t.Fatal("evicted session still running")
	}
	if idle.State() != StateDisconnected {
		t.Errorf("state = %v", idle.State())
	}
	if _, err := o.Session("busy"); err != nil {
		t.Errorf("busy session evicted: %v", err)
	}
}

func openCalibrated(ctx context.Context, o *Orchestrator, userID, targetID string) (*Session, error) {
	s, err := o.Open(userID, ingest.DeviceHeadset)
	if err != nil {
		return nil, err
	}
	if err := s.RegisterTarget(ctx, targetID, targetPos, 0.2); err != nil {
		return nil, err
	}
	if _, err := s.Calibrate(ctx, calibrationPoints(0.01)); err != nil {
		return nil, err
	}
	return s, nil
}

func activate(t *testing.T, ctx context.Context, o *Orchestrator, userID, targetID string) *Session {
	t.Helper()
	s, err := openCalibrated(ctx, o, userID, targetID)
	if err != nil {
		t.Fatalf("activate %s: %v", userID, err)
	}
	return s
}

func TestQueriesIdempotent(t *testing.T) {
	o := newOrchestrator(t, testConfig())
	ctx := ctxT(t)
	s := activate(t, ctx, o, "alice", "button")

	// Fixate the button, jump away, come back
	i := 0
	for ; tsAt(i) <= 900; i++ {
		_ = s.Submit(ctx, sampleAt("alice", i, toward(targetPos)))
	}
	for end := i + 30; i < end; i++ {
		_ = s.Submit(ctx, sampleAt("alice", i, gaze.Forward))
	}
	for end := i + 30; i < end; i++ {
		_ = s.Submit(ctx, sampleAt("alice", i, toward(targetPos)))
	}
	if err := s.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	first, _ := o.Statistics("alice")
	second, _ := o.Statistics("alice")
	if first != second {
		t.Errorf("statistics changed between calls: %+v vs %+v", first, second)
	}
	if first.SelectionCount != 1 || first.SaccadeCount < 2 || first.FixationCount < 2 {
		t.Errorf("statistics = %+v", first)
	}

	h1, _ := o.Heatmap("alice", 5)
	h2, _ := o.Heatmap("alice", 5)
	if !reflect.DeepEqual(h1, h2) {
		t.Errorf("heatmap changed between calls")
	}
	gs, err := o.GazeStats("alice", "button")
	if err != nil || gs.DwellTimeMs <= 0 || gs.VisitCount < 1 {
		t.Errorf("GazeStats = %+v, %v", gs, err)
	}
	if m, _ := o.Attention("alice"); m.AttentionLevel == "" {
		t.Errorf("attention = %+v", m)
	}
	if info, _ := o.SessionInfo("alice"); info.Targets != 1 || info.State != StateActive {
		t.Errorf("info = %+v", info)
	}
	if _, err := o.Issues("alice"); err != nil {
		t.Errorf("Issues: %v", err)
	}
}

func TestOutOfOrderSamplesCounted(t *testing.T) {
	o := newOrchestrator(t, testConfig())
	ctx := ctxT(t)
	s := activate(t, ctx, o, "alice", "button")

	for _, i := range []int{5, 6, 6, 3, 7} {
		_ = s.Submit(ctx, sampleAt("alice", i, gaze.Forward))
	}
	_ = s.Sync(ctx)
	if got := s.Info().SamplesDropped; got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
}

// Many users gaze at their own targets concurrently; nothing may cross
// session boundaries.
func TestSessionIsolation(t *testing.T) {
	const users = 8
	bus := stream.New()
	o := newOrchestrator(t, testConfig(), WithBus(bus))
	ctx := ctxT(t)

	channels := make(map[string]chan stream.Message, users)
	for u := 0; u < users; u++ {
		id := fmt.Sprintf("user-%d", u)
		ch := make(chan stream.Message, 4096)
		channels[id] = ch
		if err := bus.Subscribe("sub-"+id, id, ch); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", u)
			s, err := openCalibrated(ctx, o, id, "target-"+id)
			if err != nil {
				t.Errorf("%s: %v", id, err)
				return
			}
			rng := rand.New(rand.NewSource(int64(u)))
			yaw, pitch := gaze.YawPitch(toward(targetPos))

			hold := 900 + rng.Int63n(200)
			for i := 0; tsAt(i) <= hold; i++ {
				jy := (rng.Float64() - 0.5) * 0.1
				jp := (rng.Float64() - 0.5) * 0.1
				if err := s.Submit(ctx, sampleAt(id, i, gaze.FromYawPitch(yaw+jy, pitch+jp))); err != nil {
					t.Errorf("%s: Submit: %v", id, err)
					return
				}
			}
			if err := s.Sync(ctx); err != nil {
				t.Errorf("%s: Sync: %v", id, err)
			}
		}(u)
	}
	wg.Wait()

	for id, ch := range channels {
		stats, err := o.Statistics(id)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if stats.SelectionCount != 1 {
			t.Errorf("%s: selections = %d, want 1", id, stats.SelectionCount)
		}

		if err := bus.Unsubscribe("sub-" + id); err != nil {
			t.Fatal(err)
		}
		close(ch)
		selections := 0
		for msg := range ch {
			if msg.UserID != id {
				t.Errorf("%s received message for %s", id, msg.UserID)
			}
			if sel, ok := msg.Payload.(gaze.SelectionEvent); ok {
				selections++
				if sel.TargetID != "target-"+id {
					t.Errorf("%s selected foreign target %s", id, sel.TargetID)
				}
			}
		}
		if selections != 1 {
			t.Errorf("%s: published selections = %d", id, selections)
		}
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	rejected int
	dropped  map[string]int
	events   map[gaze.EventKind]int
}

func (r *recordingObserver) SessionOpened()                {}
func (r *recordingObserver) SessionClosed(string)          {}
func (r *recordingObserver) SampleProcessed(time.Duration) {}
func (r *recordingObserver) SessionRejected() {
	r.mu.Lock()
	r.rejected++
	r.mu.Unlock()
}
func (r *recordingObserver) SampleDropped(reason string) {
	r.mu.Lock()
	r.dropped[reason]++
	r.mu.Unlock()
}
func (r *recordingObserver) EventEmitted(kind gaze.EventKind) {
	r.mu.Lock()
	r.events[kind]++
	r.mu.Unlock()
}
func (r *recordingObserver) CalibrationCompleted(float64, error) {}

func TestObserverSignals(t *testing.T) {
	obs := &recordingObserver{dropped: map[string]int{}, events: map[gaze.EventKind]int{}}
	cfg := testConfig()
	cfg.MaxSessions = 1
	o := newOrchestrator(t, cfg, WithObserver(obs))
	ctx := ctxT(t)

	s, _ := o.Open("alice", ingest.DeviceHeadset)
	_ = s.Submit(ctx, sampleAt("alice", 0, gaze.Forward))
	_ = s.Sync(ctx)
	if _, err := o.Open("bob", ingest.DeviceHeadset); !IsCapacity(err) {
		t.Fatalf("err = %v", err)
	}

	_ = s.RegisterTarget(ctx, "button", targetPos, 0.2)
	_, _ = s.Calibrate(ctx, calibrationPoints(0.01))
	for i := 1; tsAt(i) <= 900; i++ {
		_ = s.Submit(ctx, sampleAt("alice", i, toward(targetPos)))
	}
	_ = s.Sync(ctx)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.rejected != 1 {
		t.Errorf("rejected = %d", obs.rejected)
	}
	if obs.dropped[DropNotActive] != 1 {
		t.Errorf("dropped = %v", obs.dropped)
	}
	if obs.events[gaze.KindSelection] != 1 || obs.events[gaze.KindFocus] != 1 {
		t.Errorf("events = %v", obs.events)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}
	bad := DefaultConfig()
	bad.MaxSessions = 0
	if bad.Validate() == nil {
		t.Error("expected error for MaxSessions = 0")
	}
	bad = DefaultConfig()
	bad.Analytics.Weights.BlinkRate = 0.5
	if _, err := New(bad); err == nil {
		t.Error("New accepted invalid weights")
	}
}

func TestStateString(t *testing.T) {
	if StateRecalibrating.String() != "recalibrating" || State(42).String() != "unknown" {
		t.Error("unexpected state names")
	}
}
