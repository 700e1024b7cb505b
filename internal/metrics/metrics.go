package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "minutes"

// Segment outcomes recorded on minutes.segments.
const (
	OutcomeKept   = "kept"
	OutcomeShort  = "short"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
)

// Run statuses recorded on minutes.runs.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Upload results recorded on minutes.uploads.
const (
	UploadAccepted = "accepted"
	UploadRejected = "rejected"
	UploadTooLarge = "too_large"
	UploadBusy     = "busy"
)

var durationBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600,
}

// Metrics holds the instruments recorded by the pipeline and the web UI.
// All fields are safe for concurrent use.
type Metrics struct {
	PipelineDuration metric.Float64Histogram
	StageDuration    metric.Float64Histogram
	Segments         metric.Int64Counter
	Uploads          metric.Int64Counter
	Runs             metric.Int64Counter
}

// New creates the instruments on mp.
func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PipelineDuration, err = m.Float64Histogram("minutes.pipeline.duration",
		metric.WithDescription("Wall time of a full transcription run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("minutes.stage.duration",
		metric.WithDescription("Wall time of one pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("minutes.segments",
		metric.WithDescription("Speaker turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Uploads, err = m.Int64Counter("minutes.uploads",
		metric.WithDescription("Web uploads by result."),
	); err != nil {
		return nil, err
	}
	if met.Runs, err = m.Int64Counter("minutes.runs",
		metric.WithDescription("Transcription runs by terminal status."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Noop returns instruments that discard every measurement.
func Noop() *Metrics {
	met, err := New(noop.NewMeterProvider())
	if err != nil {
		panic(err)
	}
	return met
}

// RecordStage records the elapsed time of stage since start.
func (m *Metrics) RecordStage(ctx context.Context, stage string, start time.Time) {
	m.StageDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordSegments adds n turns with outcome. Zero counts are skipped.
func (m *Metrics) RecordSegments(ctx context.Context, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.Segments.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRun counts a finished run and, for successful runs, its duration.
func (m *Metrics) RecordRun(ctx context.Context, status string, elapsed time.Duration) {
	m.Runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if status == StatusSucceeded {
		m.PipelineDuration.Record(ctx, elapsed.Seconds())
	}
}

// RecordUpload counts a web upload with result (accepted, rejected, too_large, busy).
func (m *Metrics) RecordUpload(ctx context.Context, result string) {
	m.Uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
