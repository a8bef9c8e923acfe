// Package mock provides in-memory mock implementations of [audio.Device],
// [audio.DeviceProvider], [reverse.Processor], and a WAV writer for use in
// unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	dev := &mock.Device{SampleRateResult: 48000}
//	provider := &mock.DeviceProvider{Device: dev}
//	proc := &mock.Processor{}
//	t := tap.New(provider, proc, &mock.WavWriter{})
//	t.Start()
//	dev.Emit("master", samples, 2, 48000, 0)
package mock

import (
	"sync"

	"github.com/MrWong99/submixtap/pkg/audio"
	"github.com/MrWong99/submixtap/pkg/reverse"
)

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device].
// Set SampleRateResult before use; inspect the CallCount* fields after.
type Device struct {
	mu sync.Mutex

	// SampleRateResult is returned by [Device.SampleRate].
	SampleRateResult int

	// CallCountRegister records how many times RegisterBufferListener was called.
	CallCountRegister int

	// CallCountUnregister records how many times UnregisterBufferListener was called.
	CallCountUnregister int

	listeners audio.Listeners
}

// SampleRate implements [audio.Device].
func (d *Device) SampleRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.SampleRateResult
}

// RegisterBufferListener implements [audio.Device].
func (d *Device) RegisterBufferListener(l audio.BufferListener) {
	d.mu.Lock()
	d.CallCountRegister++
	d.mu.Unlock()
	d.listeners.Add(l)
}

// UnregisterBufferListener implements [audio.Device].
func (d *Device) UnregisterBufferListener(l audio.BufferListener) {
	d.mu.Lock()
	d.CallCountUnregister++
	d.mu.Unlock()
	d.listeners.Remove(l)
}

// Registrations returns the register and unregister call counts.
func (d *Device) Registrations() (registered, unregistered int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountRegister, d.CallCountUnregister
}

// ListenerCount returns the number of currently registered listeners.
func (d *Device) ListenerCount() int {
	return d.listeners.Len()
}

// Emit delivers one block to every registered listener, as a render tick
// would.
func (d *Device) Emit(owner string, samples []float32, channels, sampleRate int, clock float64) {
	d.listeners.Dispatch(owner, samples, channels, sampleRate, clock)
}

// ─── DeviceProvider ───────────────────────────────────────────────────────────

// DeviceProvider is a mock implementation of [audio.DeviceProvider].
// A nil Device simulates a missing audio engine.
type DeviceProvider struct {
	mu sync.Mutex

	// Device is returned by [DeviceProvider.ActiveDevice].
	Device audio.Device

	// CallCountActiveDevice records how many times ActiveDevice was called.
	CallCountActiveDevice int
}

// ActiveDevice implements [audio.DeviceProvider].
func (p *DeviceProvider) ActiveDevice() (audio.Device, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountActiveDevice++
	return p.Device, p.Device != nil
}

// SetDevice replaces the active device.
func (p *DeviceProvider) SetDevice(d audio.Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Device = d
}

// ─── Processor ────────────────────────────────────────────────────────────────

// ProcessCall records the arguments of a single [Processor.ProcessReverse]
// invocation. Samples is a copy taken before any mutation.
type ProcessCall struct {
	Handle  reverse.Handle
	Samples []float32
}

// Processor is a mock implementation of [reverse.Processor].
type Processor struct {
	mu sync.Mutex

	// Status is returned by [Processor.ProcessReverse].
	Status reverse.Status

	// Mutate, if set, is applied to the samples in place before returning.
	Mutate func(samples []float32)

	// Calls records every invocation in order.
	Calls []ProcessCall
}

// ProcessReverse implements [reverse.Processor].
func (p *Processor) ProcessReverse(h reverse.Handle, samples []float32) reverse.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	p.Calls = append(p.Calls, ProcessCall{Handle: h, Samples: cp})
	if p.Mutate != nil {
		p.Mutate(samples)
	}
	return p.Status
}

// CallCount returns the number of ProcessReverse invocations.
func (p *Processor) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent invocation. ok is false if there was none.
func (p *Processor) LastCall() (ProcessCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return ProcessCall{}, false
	}
	return p.Calls[len(p.Calls)-1], true
}

// SetStatus changes the status returned by subsequent calls.
func (p *Processor) SetStatus(s reverse.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = s
}

// ─── WavWriter ────────────────────────────────────────────────────────────────

// WriteCall records the arguments of a single [WavWriter.BeginWrite]
// invocation.
type WriteCall struct {
	Buffer audio.Buffer
	Name   string
}

// WavWriter is a mock asynchronous WAV writer. It never touches the disk.
type WavWriter struct {
	mu sync.Mutex

	// Dir is prefixed to the name to build the path passed to onSuccess.
	// Defaults to "/saved/BouncedWavFiles".
	Dir string

	// Err, if set, is returned synchronously by BeginWrite.
	Err error

	// Fail suppresses the onSuccess callback, simulating a failed write.
	Fail bool

	// Calls records every invocation in order.
	Calls []WriteCall

	wg sync.WaitGroup
}

// BeginWrite records the call and, unless Err or Fail is set, invokes
// onSuccess on a new goroutine with Dir/name.
func (w *WavWriter) BeginWrite(buf audio.Buffer, name string, onSuccess func(path string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	w.Calls = append(w.Calls, WriteCall{Buffer: buf, Name: name})
	if w.Fail || onSuccess == nil {
		return nil
	}
	dir := w.Dir
	if dir == "" {
		dir = "/saved/BouncedWavFiles"
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		onSuccess(dir + "/" + name)
	}()
	return nil
}

// Wait blocks until every onSuccess callback has returned.
func (w *WavWriter) Wait() {
	w.wg.Wait()
}

// WriteCalls returns a copy of the recorded calls.
func (w *WavWriter) WriteCalls() []WriteCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]WriteCall, len(w.Calls))
	copy(out, w.Calls)
	return out
}
