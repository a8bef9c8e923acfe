// Package tap implements a submix buffer listener that feeds rendered audio
// into a reverse-audio processor and can record it to a WAV file.
//
// A [Tap] registers itself with the active [audio.Device]. For every rendered
// block it remixes to the target channel count, forwards the block together
// with the current session handle to a [reverse.Processor], and, while
// recording, appends the block to an in-memory buffer that
// [Tap.StopAccumulating] hands to a [WavWriter].
//
// Lifecycle:
//
//	Stopped --Start--> Started --Stop--> Stopped
//
// Recording (StartAccumulating/StopAccumulating) is orthogonal to the
// lifecycle; blocks only arrive while Started. A processing error stops the
// tap from inside the callback; it stays stopped until Start is called again.
package tap

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/submixtap/internal/observe"
	"github.com/MrWong99/submixtap/pkg/audio"
	"github.com/MrWong99/submixtap/pkg/reverse"
)

// Compile-time interface assertion.
var _ audio.BufferListener = (*Tap)(nil)

// DefaultChannels is the channel count the reverse processor expects.
const DefaultChannels = 2

// WavWriter writes a buffer to a named file in the background. onSuccess is
// called with the absolute path once the file is complete and is not called on
// failure.
type WavWriter interface {
	BeginWrite(buf audio.Buffer, name string, onSuccess func(path string)) error
}

// Option configures a [Tap] during construction.
type Option func(*Tap)

// WithTarget overrides the target format. Zero fields keep their defaults.
func WithTarget(f audio.Format) Option {
	return func(t *Tap) {
		if f.SampleRate > 0 {
			t.target.SampleRate = f.SampleRate
		}
		if f.Channels > 0 {
			t.target.Channels = f.Channels
		}
	}
}

// WithResampling enables sample-rate conversion when the device rate differs
// from the target. When disabled (the default) a mismatch is only logged and
// buffers are forwarded at the device rate.
func WithResampling(enabled bool) Option {
	return func(t *Tap) { t.resample = enabled }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Tap) { t.metrics = m }
}

// Tap is a submix buffer listener. All exported methods are safe for
// concurrent use.
type Tap struct {
	devices  audio.DeviceProvider
	proc     reverse.Processor
	writer   WavWriter
	target   audio.Format
	resample bool
	metrics  *observe.Metrics

	// stateMu serialises Start and Stop; device is the device registered with.
	stateMu     sync.Mutex
	device      audio.Device
	initialized atomic.Bool
	resampler   atomic.Pointer[audio.Resampler]

	session atomic.Uint64
	saving  atomic.Bool

	// mu is the callback critical section. It guards conv and acc.
	mu   sync.Mutex
	conv audio.FormatConverter
	acc  audio.Buffer

	handlersMu sync.RWMutex
	handlers   []func(path string)
}

// New creates a stopped [Tap]. devices locates the audio device to listen on,
// proc receives every block and writer stores recordings.
func New(devices audio.DeviceProvider, proc reverse.Processor, writer WavWriter, opts ...Option) *Tap {
	t := &Tap{
		devices: devices,
		proc:    proc,
		writer:  writer,
		target:  audio.Format{SampleRate: DefaultSampleRate, Channels: DefaultChannels},
	}
	for _, o := range opts {
		o(t)
	}
	if t.metrics == nil {
		t.metrics = observe.DefaultMetrics()
	}
	t.conv.Target = t.target
	return t
}

// Target returns the format buffers are converted to.
func (t *Tap) Target() audio.Format { return t.target }

// Initialized reports whether the tap is registered with a device.
func (t *Tap) Initialized() bool { return t.initialized.Load() }

// Saving reports whether blocks are being accumulated.
func (t *Tap) Saving() bool { return t.saving.Load() }

// Session returns the current session handle.
func (t *Tap) Session() reverse.Handle { return reverse.Handle(t.session.Load()) }

// Start registers the tap with the active device. It is a no-op if the tap is
// already started or no device is available.
func (t *Tap) Start() {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()

	if t.initialized.Load() {
		return
	}
	dev, ok := t.devices.ActiveDevice()
	if !ok {
		slog.Debug("tap: no active audio device, not starting")
		return
	}

	if rate := dev.SampleRate(); rate != t.target.SampleRate {
		slog.Warn("tap: device sample rate differs from target",
			"device_rate", rate,
			"target_rate", t.target.SampleRate,
			"resample", t.resample,
		)
		if t.resample {
			rs, err := audio.NewResampler(rate, t.target.SampleRate)
			if err != nil {
				slog.Warn("tap: resampler unavailable", "err", err)
			} else {
				t.resampler.Store(rs)
			}
		}
	}

	dev.RegisterBufferListener(t)
	t.device = dev
	t.initialized.Store(true)
	t.metrics.ActiveListeners.Add(context.Background(), 1)
	slog.Info("tap started", "target", t.target)
}

// Stop unregisters the tap. It is a no-op if the tap is not started or no
// device is available. Stop may be called from inside the buffer callback.
func (t *Tap) Stop() {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()

	if !t.initialized.Load() {
		return
	}
	if _, ok := t.devices.ActiveDevice(); !ok {
		return
	}

	t.device.UnregisterBufferListener(t)
	t.device = nil
	t.initialized.Store(false)
	t.resampler.Store(nil)
	t.metrics.ActiveListeners.Add(context.Background(), -1)
	slog.Info("tap stopped")
}

// SetSession stores the handle passed to every subsequent processing call.
// No validation is performed.
func (t *Tap) SetSession(h reverse.Handle) {
	t.session.Store(uint64(h))
}

// StartAccumulating discards any unflushed recording and starts appending
// blocks.
func (t *Tap) StartAccumulating() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acc.Reset()
	t.saving.Store(true)
}

// StopAccumulating stops recording and hands the accumulated buffer to the WAV
// writer under name. It returns before the file is written; registered
// [Tap.OnWriteFinished] handlers are notified on success.
//
// Without a preceding StartAccumulating whatever the buffer currently holds
// (possibly nothing) is written. If the writer rejects the call (for example
// an invalid name) the audio is kept, so a later StopAccumulating can still
// write it unless StartAccumulating runs first.
func (t *Tap) StopAccumulating(name string) {
	t.saving.Store(false)

	t.mu.Lock()
	buf := t.acc
	t.acc = audio.Buffer{}
	t.mu.Unlock()

	if err := t.writer.BeginWrite(buf, name, t.broadcastWriteFinished); err != nil {
		slog.Error("tap: cannot start wav write, keeping recorded audio", "name", name, "frames", buf.Frames(), "err", err)
		t.mu.Lock()
		if !t.saving.Load() && len(t.acc.Samples) == 0 {
			t.acc = buf
		}
		t.mu.Unlock()
	}
}

// OnWriteFinished registers fn to be called with the absolute path of every
// successfully written recording. Handlers run on the writer's goroutine.
func (t *Tap) OnWriteFinished(fn func(path string)) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers = append(t.handlers, fn)
}

func (t *Tap) broadcastWriteFinished(path string) {
	t.handlersMu.RLock()
	hs := make([]func(string), len(t.handlers))
	copy(hs, t.handlers)
	t.handlersMu.RUnlock()

	slog.Info("tap: recording saved", "path", path)
	for _, fn := range hs {
		fn(path)
	}
}

// AccumulatedFrames returns the number of frames currently held for
// recording.
func (t *Tap) AccumulatedFrames() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acc.Frames()
}

// Close stops the tap and waits for in-flight WAV writes when the writer
// supports it.
func (t *Tap) Close() error {
	t.Stop()
	if w, ok := t.writer.(interface{ Wait() }); ok {
		w.Wait()
	}
	return nil
}

// OnNewSubmixBuffer implements [audio.BufferListener].
func (t *Tap) OnNewSubmixBuffer(owner string, samples []float32, numSamples, numChannels, sampleRate int, clock float64) {
	ctx := context.Background()
	if !t.initialized.Load() {
		t.metrics.RecordBuffer(ctx, "ignored")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if numChannels <= 0 {
		slog.Debug("tap: dropping buffer without channels", "owner", owner)
		t.metrics.RecordBuffer(ctx, "ignored")
		return
	}
	numSamples = min(max(numSamples, 0), len(samples))
	if tail := numSamples % numChannels; tail != 0 {
		slog.Debug("tap: dropping partial frame", "owner", owner, "samples", tail, "channels", numChannels)
		numSamples -= tail
	}

	slog.Debug("tap: submix buffer",
		"owner", owner,
		"channels", numChannels,
		"sample_rate", sampleRate,
		"samples", numSamples,
		"clock", clock,
	)

	buf, done := t.conv.Convert(audio.NewBuffer(samples[:numSamples], numChannels, sampleRate), t.resampler.Load())
	if done.Has(audio.Remixed) {
		slog.Debug("tap: remixed buffer", "from_channels", numChannels, "to_channels", t.target.Channels)
		t.metrics.RecordRemix(ctx, numChannels)
	}
	if done.Has(audio.RateMismatch) {
		slog.Debug("tap: sample rate differs from target", "sample_rate", sampleRate, "target_rate", t.target.SampleRate)
		t.metrics.RateMismatches.Add(ctx, 1)
	}

	session := reverse.Handle(t.session.Load())
	start := time.Now()
	status := t.proc.ProcessReverse(session, buf.Samples)
	t.metrics.RecordProcess(ctx, time.Since(start), status.IsError(), status.String())
	t.metrics.RecordBuffer(ctx, "processed")

	if t.saving.Load() && numSamples > 0 {
		if t.acc.Append(buf) {
			slog.Warn("tap: recording format changed, discarded earlier audio", "format", buf.Format())
		}
		t.metrics.AccumulatedFrames.Add(ctx, int64(buf.Frames()))
	}

	if status.IsError() {
		slog.Warn("tap: reverse processing failed, stopping",
			"status", status,
			"owner", owner,
			"session", uint64(session),
		)
		t.Stop()
	}
}
