// Package synth provides a synthetic [audio.Device] that renders a sine tone
// on a fixed tick. It stands in for a real engine when running submixtap
// locally and drives integration tests deterministically via [Device.Render].
package synth

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/submixtap/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Device = (*Device)(nil)

// Owner is the owner name passed to listeners for every rendered block.
const Owner = "synth"

// Config holds the parameters of a [Device]. Zero values are replaced by the
// package defaults in [New].
type Config struct {
	// SampleRate in Hz. Default: 48000.
	SampleRate int

	// Channels per frame. Default: 2.
	Channels int

	// BlockFrames is the number of frames rendered per tick. Default: 480
	// (10 ms at 48 kHz).
	BlockFrames int

	// Frequency of the tone in Hz. Default: 440.
	Frequency float64

	// Amplitude of the tone in [0, 1]. Default: 0.25.
	Amplitude float64
}

// Device renders a sine tone into its registered listeners.
type Device struct {
	cfg       Config
	listeners audio.Listeners

	mu    sync.Mutex
	phase float64
	frame uint64
}

// New creates a [Device] from cfg.
func New(cfg Config) *Device {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	if cfg.BlockFrames <= 0 {
		cfg.BlockFrames = 480
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = 440
	}
	if cfg.Amplitude <= 0 || cfg.Amplitude > 1 {
		cfg.Amplitude = 0.25
	}
	return &Device{cfg: cfg}
}

// Config returns the effective configuration.
func (d *Device) Config() Config { return d.cfg }

// SampleRate implements [audio.Device].
func (d *Device) SampleRate() int { return d.cfg.SampleRate }

// RegisterBufferListener implements [audio.Device].
func (d *Device) RegisterBufferListener(l audio.BufferListener) {
	if d.listeners.Add(l) {
		slog.Debug("synth: listener registered", "listeners", d.listeners.Len())
	}
}

// UnregisterBufferListener implements [audio.Device].
func (d *Device) UnregisterBufferListener(l audio.BufferListener) {
	if d.listeners.Remove(l) {
		slog.Debug("synth: listener unregistered", "listeners", d.listeners.Len())
	}
}

// BlockDuration returns the wall-clock length of one rendered block.
func (d *Device) BlockDuration() time.Duration {
	return time.Duration(d.cfg.BlockFrames) * time.Second / time.Duration(d.cfg.SampleRate)
}

// Render produces one block and dispatches it to every listener. The tone is
// continuous across calls.
func (d *Device) Render() {
	ch := d.cfg.Channels
	samples := make([]float32, d.cfg.BlockFrames*ch)

	d.mu.Lock()
	clock := float64(d.frame) / float64(d.cfg.SampleRate)
	step := 2 * math.Pi * d.cfg.Frequency / float64(d.cfg.SampleRate)
	for i := range d.cfg.BlockFrames {
		v := float32(d.cfg.Amplitude * math.Sin(d.phase))
		for c := range ch {
			samples[i*ch+c] = v
		}
		d.phase += step
		if d.phase >= 2*math.Pi {
			d.phase -= 2 * math.Pi
		}
	}
	d.frame += uint64(d.cfg.BlockFrames)
	d.mu.Unlock()

	d.listeners.Dispatch(Owner, samples, ch, d.cfg.SampleRate, clock)
}

// Run renders one block per [Device.BlockDuration] until ctx is cancelled.
// It always returns nil so it can be used directly in an errgroup.
func (d *Device) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.BlockDuration())
	defer ticker.Stop()

	slog.Info("synth device running",
		"sample_rate", d.cfg.SampleRate,
		"channels", d.cfg.Channels,
		"block_frames", d.cfg.BlockFrames,
		"frequency", d.cfg.Frequency,
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Render()
		}
	}
}
