// Package observe provides application-wide observability primitives for
// submixtap: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all submixtap metrics.
const meterName = "github.com/MrWong99/submixtap"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Tap hot path ---

	// Buffers counts submix buffers delivered to the tap. Use with attribute:
	//   attribute.String("result", "processed"|"ignored")
	Buffers metric.Int64Counter

	// ProcessDuration tracks reverse-processing latency per buffer.
	ProcessDuration metric.Float64Histogram

	// ProcessErrors counts reverse-processing calls that returned an error
	// status. Use with attribute: attribute.String("status", ...)
	ProcessErrors metric.Int64Counter

	// Remixes counts buffers whose channel count was changed. Use with
	// attribute: attribute.Int("from_channels", ...)
	Remixes metric.Int64Counter

	// RateMismatches counts buffers forwarded at a rate other than the target.
	RateMismatches metric.Int64Counter

	// AccumulatedFrames counts frames appended to the recording buffer.
	AccumulatedFrames metric.Int64Counter

	// --- Recording ---

	// WavWrites counts WAV file writes. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	WavWrites metric.Int64Counter

	// WavWriteDuration tracks how long WAV encoding and flushing took.
	WavWriteDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveListeners tracks the number of taps registered with a device.
	ActiveListeners metric.Int64UpDownCounter

	// DeviceConnections tracks the number of remote engines streaming into a
	// network device.
	DeviceConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// processBuckets defines histogram bucket boundaries (in seconds) for
// per-buffer processing; a 10 ms render block must finish well inside 10 ms.
var processBuckets = []float64{
	0.00001, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01,
}

// writeBuckets defines histogram bucket boundaries (in seconds) for file writes.
var writeBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.Buffers, err = m.Int64Counter("submixtap.buffers",
		metric.WithDescription("Submix buffers delivered to the tap by result."),
	); err != nil {
		return nil, err
	}
	if met.ProcessErrors, err = m.Int64Counter("submixtap.process.errors",
		metric.WithDescription("Reverse-processing calls that returned an error status."),
	); err != nil {
		return nil, err
	}
	if met.Remixes, err = m.Int64Counter("submixtap.remixes",
		metric.WithDescription("Buffers remixed to the target channel count."),
	); err != nil {
		return nil, err
	}
	if met.RateMismatches, err = m.Int64Counter("submixtap.rate_mismatches",
		metric.WithDescription("Buffers forwarded at a sample rate other than the target."),
	); err != nil {
		return nil, err
	}
	if met.AccumulatedFrames, err = m.Int64Counter("submixtap.accumulated_frames",
		metric.WithDescription("Frames appended to the recording buffer."),
	); err != nil {
		return nil, err
	}
	if met.WavWrites, err = m.Int64Counter("submixtap.wav.writes",
		metric.WithDescription("WAV file writes by status."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.ProcessDuration, err = m.Float64Histogram("submixtap.process.duration",
		metric.WithDescription("Latency of reverse processing per buffer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(processBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WavWriteDuration, err = m.Float64Histogram("submixtap.wav.write.duration",
		metric.WithDescription("Latency of encoding and flushing a WAV file."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(writeBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveListeners, err = m.Int64UpDownCounter("submixtap.active_listeners",
		metric.WithDescription("Number of taps registered with an audio device."),
	); err != nil {
		return nil, err
	}
	if met.DeviceConnections, err = m.Int64UpDownCounter("submixtap.device.connections",
		metric.WithDescription("Number of remote engines streaming into a network device."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("submixtap.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordBuffer records a buffer counter increment with the given result.
func (m *Metrics) RecordBuffer(ctx context.Context, result string) {
	m.Buffers.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordProcess records the latency of one reverse-processing call and, when
// failed is true, an error counter increment labelled with status.
func (m *Metrics) RecordProcess(ctx context.Context, d time.Duration, failed bool, status string) {
	m.ProcessDuration.Record(ctx, d.Seconds())
	if failed {
		m.ProcessErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordRemix records a remix counter increment for a buffer that arrived
// with fromChannels channels.
func (m *Metrics) RecordRemix(ctx context.Context, fromChannels int) {
	m.Remixes.Add(ctx, 1, metric.WithAttributes(attribute.Int("from_channels", fromChannels)))
}

// RecordWavWrite is a convenience method that records the outcome and latency
// of a WAV write.
func (m *Metrics) RecordWavWrite(ctx context.Context, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.WavWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.WavWriteDuration.Record(ctx, d.Seconds())
}
