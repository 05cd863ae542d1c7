package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/teslashibe/go-gaze/pkg/eyetracker"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// ScopeName is the instrumentation scope of every gazed instrument.
const ScopeName = "github.com/teslashibe/go-gaze"

// Recorder turns session signals into metric measurements. It satisfies
// session.Observer.
type Recorder struct {
	sessionsActive   metric.Int64UpDownCounter
	sessionsOpened   metric.Int64Counter
	sessionsClosed   metric.Int64Counter
	sessionsRejected metric.Int64Counter
	samples          metric.Int64Counter
	samplesDropped   metric.Int64Counter
	sampleLatency    metric.Float64Histogram
	events           metric.Int64Counter
	calibrations     metric.Int64Counter
	calibrationScore metric.Float64Histogram
}

// NewRecorder creates every instrument on a meter from mp.
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	m := mp.Meter(ScopeName)
	r := &Recorder{}

	var err, e error
	r.sessionsActive, e = m.Int64UpDownCounter("gaze.sessions.active",
		metric.WithDescription("Open gaze sessions"))
	err = errors.Join(err, e)
	r.sessionsOpened, e = m.Int64Counter("gaze.sessions.opened",
		metric.WithDescription("Sessions opened"))
	err = errors.Join(err, e)
	r.sessionsClosed, e = m.Int64Counter("gaze.sessions.closed",
		metric.WithDescription("Sessions disconnected, by reason"))
	err = errors.Join(err, e)
	r.sessionsRejected, e = m.Int64Counter("gaze.sessions.rejected",
		metric.WithDescription("Sessions refused at capacity"))
	err = errors.Join(err, e)
	r.samples, e = m.Int64Counter("gaze.samples.processed",
		metric.WithDescription("Samples run through the pipeline"))
	err = errors.Join(err, e)
	r.samplesDropped, e = m.Int64Counter("gaze.samples.dropped",
		metric.WithDescription("Samples dropped, by reason"))
	err = errors.Join(err, e)
	r.sampleLatency, e = m.Float64Histogram("gaze.sample.duration",
		metric.WithDescription("Per-sample processing time"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2, 4, 8, 16))
	err = errors.Join(err, e)
	r.events, e = m.Int64Counter("gaze.events",
		metric.WithDescription("Events emitted, by kind"))
	err = errors.Join(err, e)
	r.calibrations, e = m.Int64Counter("gaze.calibrations",
		metric.WithDescription("Calibration attempts, by result"))
	err = errors.Join(err, e)
	r.calibrationScore, e = m.Float64Histogram("gaze.calibration.quality",
		metric.WithDescription("Quality of accepted calibrations"),
		metric.WithExplicitBucketBoundaries(0.5, 0.6, 0.7, 0.8, 0.9, 1))
	err = errors.Join(err, e)

	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) SessionOpened() {
	ctx := context.Background()
	r.sessionsActive.Add(ctx, 1)
	r.sessionsOpened.Add(ctx, 1)
}

func (r *Recorder) SessionClosed(reason string) {
	ctx := context.Background()
	r.sessionsActive.Add(ctx, -1)
	r.sessionsClosed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (r *Recorder) SessionRejected() {
	r.sessionsRejected.Add(context.Background(), 1)
}

func (r *Recorder) SampleProcessed(latency time.Duration) {
	ctx := context.Background()
	r.samples.Add(ctx, 1)
	r.sampleLatency.Record(ctx, float64(latency)/float64(time.Millisecond))
}

func (r *Recorder) SampleDropped(reason string) {
	r.samplesDropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (r *Recorder) EventEmitted(kind gaze.EventKind) {
	r.events.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}

func (r *Recorder) CalibrationCompleted(quality float64, err error) {
	ctx := context.Background()
	result := "accepted"
	switch {
	case errors.Is(err, eyetracker.ErrInsufficientSamples):
		result = "insufficient_samples"
	case errors.Is(err, eyetracker.ErrLowQuality):
		result = "low_quality"
	case err != nil:
		result = "error"
	}
	r.calibrations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	if err == nil {
		r.calibrationScore.Record(ctx, quality)
	}
}
