// Package observe records practice telemetry through the OpenTelemetry
// metrics API. InitProvider bridges the instruments to a Prometheus exporter
// so they can be scraped from /metrics.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/verte-zerg/tuispeak/internal/speech"
)

const meterName = "github.com/verte-zerg/tuispeak"

// Metrics holds the session instruments. It implements speech.Recorder.
type Metrics struct {
	SessionsStarted metric.Int64Counter
	Results         metric.Int64Counter
	EmptySessions   metric.Int64Counter
	// Restarts counts engine restarts. Use with attribute "reason".
	Restarts metric.Int64Counter
	// EngineErrors counts engine errors. Use with attributes "kind", "class".
	EngineErrors metric.Int64Counter
	// FatalErrors counts aborted sessions. Use with attribute "kind".
	FatalErrors     metric.Int64Counter
	Accuracy        metric.Int64Histogram
	SessionDuration metric.Float64Histogram
}

var (
	accuracyBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	durationBuckets = []float64{1, 2, 4, 6, 8, 10, 15, 20, 30, 45}
)

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SessionsStarted, err = m.Int64Counter("tuispeak.sessions.started",
		metric.WithDescription("Practice attempts started, by mode."),
	); err != nil {
		return nil, err
	}
	if met.Results, err = m.Int64Counter("tuispeak.results",
		metric.WithDescription("Attempts that produced a scored result, by grade."),
	); err != nil {
		return nil, err
	}
	if met.EmptySessions, err = m.Int64Counter("tuispeak.sessions.empty",
		metric.WithDescription("Attempts that ended without any recognized speech."),
	); err != nil {
		return nil, err
	}
	if met.Restarts, err = m.Int64Counter("tuispeak.restarts",
		metric.WithDescription("Recognizer restarts, by reason."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("tuispeak.engine.errors",
		metric.WithDescription("Recognizer errors, by kind and class."),
	); err != nil {
		return nil, err
	}
	if met.FatalErrors, err = m.Int64Counter("tuispeak.fatal_errors",
		metric.WithDescription("Attempts aborted by unrecoverable errors, by kind."),
	); err != nil {
		return nil, err
	}
	if met.Accuracy, err = m.Int64Histogram("tuispeak.accuracy",
		metric.WithDescription("Word accuracy of scored attempts."),
		metric.WithUnit("%"),
		metric.WithExplicitBucketBoundaries(accuracyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("tuispeak.session.duration",
		metric.WithDescription("Length of scored attempts."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func mode(timed bool) attribute.KeyValue {
	if timed {
		return attribute.String("mode", "timed")
	}
	return attribute.String("mode", "untimed")
}

func (m *Metrics) SessionStarted(timed bool) {
	m.SessionsStarted.Add(context.Background(), 1, metric.WithAttributes(mode(timed)))
}

func (m *Metrics) Restarted(reason string) {
	m.Restarts.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) EngineError(kind speech.ErrorKind) {
	m.EngineErrors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.String("class", kind.Class().String()),
	))
}

func (m *Metrics) FatalError(kind speech.ErrorKind) {
	m.FatalErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind.String())))
}

func (m *Metrics) ResultEmitted(r speech.Result) {
	ctx := context.Background()
	attrs := metric.WithAttributes(mode(r.Timed))
	m.Results.Add(ctx, 1, metric.WithAttributes(mode(r.Timed), attribute.String("grade", r.Grade())))
	m.Accuracy.Record(ctx, int64(r.Accuracy), attrs)
	m.SessionDuration.Record(ctx, r.Duration().Seconds(), attrs)
}

func (m *Metrics) NothingHeard() {
	m.EmptySessions.Add(context.Background(), 1)
}
