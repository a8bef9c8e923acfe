package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"submixtap.process.duration", m.ProcessDuration},
		{"submixtap.wav.write.duration", m.WavWriteDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.0002)
		tc.h.Record(ctx, 0.004)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

// sumByAttr returns the value of the data point whose attribute key equals
// value, and whether it was found.
func sumByAttr(t *testing.T, met *metricdata.Metrics, key, value string) (int64, bool) {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", met.Name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == value {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestRecordBuffer(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBuffer(ctx, "processed")
	m.RecordBuffer(ctx, "processed")
	m.RecordBuffer(ctx, "ignored")

	met := findMetric(collect(t, reader), "submixtap.buffers")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got, ok := sumByAttr(t, met, "result", "processed"); !ok || got != 2 {
		t.Errorf("processed = %d (found %v), want 2", got, ok)
	}
	if got, ok := sumByAttr(t, met, "result", "ignored"); !ok || got != 1 {
		t.Errorf("ignored = %d (found %v), want 1", got, ok)
	}
}

func TestRecordProcess(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProcess(ctx, 100*time.Microsecond, false, "ok")
	m.RecordProcess(ctx, 200*time.Microsecond, true, "unknown session")

	rm := collect(t, reader)
	hist := findMetric(rm, "submixtap.process.duration")
	if hist == nil {
		t.Fatal("duration metric not found")
	}
	if got := hist.Data.(metricdata.Histogram[float64]).DataPoints[0].Count; got != 2 {
		t.Errorf("duration count = %d, want 2", got)
	}

	errs := findMetric(rm, "submixtap.process.errors")
	if errs == nil {
		t.Fatal("error metric not found")
	}
	if got, ok := sumByAttr(t, errs, "status", "unknown session"); !ok || got != 1 {
		t.Errorf("errors = %d (found %v), want 1", got, ok)
	}
}

func TestRecordRemix(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRemix(ctx, 6)
	m.RecordRemix(ctx, 6)
	m.RecordRemix(ctx, 1)

	met := findMetric(collect(t, reader), "submixtap.remixes")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got, ok := sumByAttr(t, met, "from_channels", "6"); !ok || got != 2 {
		t.Errorf("from_channels=6 = %d (found %v), want 2", got, ok)
	}
}

func TestRecordWavWrite(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordWavWrite(ctx, 20*time.Millisecond, nil)
	m.RecordWavWrite(ctx, 5*time.Millisecond, errors.New("disk full"))

	rm := collect(t, reader)
	met := findMetric(rm, "submixtap.wav.writes")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got, ok := sumByAttr(t, met, "status", "ok"); !ok || got != 1 {
		t.Errorf("ok = %d (found %v), want 1", got, ok)
	}
	if got, ok := sumByAttr(t, met, "status", "error"); !ok || got != 1 {
		t.Errorf("error = %d (found %v), want 1", got, ok)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveListeners.Add(ctx, 1)
	m.ActiveListeners.Add(ctx, 1)
	m.ActiveListeners.Add(ctx, -1)
	m.DeviceConnections.Add(ctx, 3)
	m.AccumulatedFrames.Add(ctx, 480)
	m.RateMismatches.Add(ctx, 2)

	rm := collect(t, reader)

	gauges := []struct {
		name string
		want int64
	}{
		{"submixtap.active_listeners", 1},
		{"submixtap.device.connections", 3},
		{"submixtap.accumulated_frames", 480},
		{"submixtap.rate_mismatches", 2},
	}

	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
