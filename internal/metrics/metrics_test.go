package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := New(mp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumByAttr(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestRecordSegmentsByOutcome(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordSegments(ctx, OutcomeKept, 3)
	m.RecordSegments(ctx, OutcomeShort, 1)
	m.RecordSegments(ctx, OutcomeEmpty, 0)

	got := findMetric(collect(t, reader), "minutes.segments")
	if got == nil {
		t.Fatal("minutes.segments not found")
	}
	if v := sumByAttr(t, got, "outcome", OutcomeKept); v != 3 {
		t.Fatalf("kept = %d, want 3", v)
	}
	if v := sumByAttr(t, got, "outcome", OutcomeShort); v != 1 {
		t.Fatalf("short = %d, want 1", v)
	}
	if v := sumByAttr(t, got, "outcome", OutcomeEmpty); v != 0 {
		t.Fatalf("empty = %d, want 0", v)
	}
}

func TestRecordRunOnlyTimesSuccess(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordRun(ctx, StatusSucceeded, 2*time.Second)
	m.RecordRun(ctx, StatusFailed, time.Second)

	rm := collect(t, reader)
	runs := findMetric(rm, "minutes.runs")
	if runs == nil {
		t.Fatal("minutes.runs not found")
	}
	if v := sumByAttr(t, runs, "status", StatusFailed); v != 1 {
		t.Fatalf("failed runs = %d, want 1", v)
	}
	hist := findMetric(rm, "minutes.pipeline.duration")
	if hist == nil {
		t.Fatal("minutes.pipeline.duration not found")
	}
	data, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", hist.Data)
	}
	if len(data.DataPoints) != 1 || data.DataPoints[0].Count != 1 {
		t.Fatalf("expected a single duration observation, got %+v", data.DataPoints)
	}
}

func TestRecordStageAndUpload(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordStage(ctx, "diarize", time.Now().Add(-time.Second))
	m.RecordUpload(ctx, "accepted")

	rm := collect(t, reader)
	if findMetric(rm, "minutes.stage.duration") == nil {
		t.Fatal("minutes.stage.duration not found")
	}
	uploads := findMetric(rm, "minutes.uploads")
	if uploads == nil {
		t.Fatal("minutes.uploads not found")
	}
	if v := sumByAttr(t, uploads, "result", "accepted"); v != 1 {
		t.Fatalf("accepted uploads = %d, want 1", v)
	}
}

func TestNoopDiscards(t *testing.T) {
	m := Noop()
	m.RecordRun(context.Background(), StatusSucceeded, time.Second)
	m.RecordSegments(context.Background(), OutcomeKept, 1)
}

func TestProviderServesPrometheus(t *testing.T) {
	p, err := InitProvider("test")
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	p.Metrics.RecordRun(context.Background(), StatusSucceeded, time.Second)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "minutes_runs") {
		t.Fatalf("expected minutes_runs in exposition, got:\n%s", body)
	}
}
