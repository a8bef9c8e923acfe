// Package audio defines the buffer type, format conversion, and the device
// contracts used to tap rendered audio.
//
// The three abstractions are:
//
//   - [BufferListener]: receives every rendered block a device produces.
//   - [Device]: an audio output that renders blocks and dispatches them to
//     registered listeners.
//   - [DeviceProvider]: locates the currently active [Device], if any.
//
// Implementations of [Device] live in adapter packages (audio/synth,
// audio/netdevice). This package lives under pkg/ because host integrations
// are expected to implement [Device] and [DeviceProvider] themselves.
package audio

import "sync"

// BufferListener observes rendered audio. OnNewSubmixBuffer is called once per
// rendered block, typically from the device's render goroutine.
//
// samples holds numSamples interleaved values (numSamples/numChannels frames).
// The slice is only valid for the duration of the call and may be modified in
// place by the listener. clock is the device's audio clock in seconds.
type BufferListener interface {
	OnNewSubmixBuffer(owner string, samples []float32, numSamples, numChannels, sampleRate int, clock float64)
}

// BufferListenerFunc adapts a plain function to [BufferListener]. Because
// func values are not comparable, a BufferListenerFunc must be registered via
// a pointer if it is going to be unregistered later.
type BufferListenerFunc func(owner string, samples []float32, numSamples, numChannels, sampleRate int, clock float64)

// OnNewSubmixBuffer implements [BufferListener].
func (f BufferListenerFunc) OnNewSubmixBuffer(owner string, samples []float32, numSamples, numChannels, sampleRate int, clock float64) {
	f(owner, samples, numSamples, numChannels, sampleRate, clock)
}

// Device is an audio output that accepts buffer listeners.
//
// Implementations must be safe for concurrent use and must not hold any lock
// that RegisterBufferListener or UnregisterBufferListener acquires while
// invoking listeners, so a listener may unregister itself from inside its
// callback.
type Device interface {
	// SampleRate returns the device's output rate in Hz.
	SampleRate() int

	// RegisterBufferListener adds l. Registering the same listener twice is a
	// no-op.
	RegisterBufferListener(l BufferListener)

	// UnregisterBufferListener removes l. Unknown listeners are ignored.
	UnregisterBufferListener(l BufferListener)
}

// DeviceProvider locates the active audio device. ok is false when no device
// is currently available.
type DeviceProvider interface {
	ActiveDevice() (dev Device, ok bool)
}

// StaticProvider is a [DeviceProvider] that always returns the same device.
// A nil Device means no device is available.
type StaticProvider struct {
	Device Device
}

// ActiveDevice implements [DeviceProvider].
func (p StaticProvider) ActiveDevice() (Device, bool) {
	return p.Device, p.Device != nil
}

// Listeners is a concurrency-safe listener set for [Device] implementations.
// Dispatch snapshots the set before calling out, satisfying the re-entrancy
// requirement on [Device].
type Listeners struct {
	mu   sync.Mutex
	list []BufferListener
}

// Add registers l; duplicates are ignored. It reports whether l was added.
func (s *Listeners) Add(l BufferListener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.list {
		if x == l {
			return false
		}
	}
	s.list = append(s.list, l)
	return true
}

// Remove unregisters l. It reports whether l was present.
func (s *Listeners) Remove(l BufferListener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.list {
		if x == l {
			s.list = append(s.list[:i:i], s.list[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered listeners.
func (s *Listeners) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

// Dispatch delivers one block to every listener registered at the time of the
// call. Each listener gets its own copy of samples so in-place processing by
// one listener is not observed by the next.
func (s *Listeners) Dispatch(owner string, samples []float32, channels, sampleRate int, clock float64) {
	s.mu.Lock()
	snapshot := make([]BufferListener, len(s.list))
	copy(snapshot, s.list)
	s.mu.Unlock()

	for i, l := range snapshot {
		block := samples
		if i < len(snapshot)-1 {
			block = make([]float32, len(samples))
			copy(block, samples)
		}
		l.OnNewSubmixBuffer(owner, block, len(block), channels, sampleRate, clock)
	}
}
