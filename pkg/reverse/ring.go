package reverse

import (
	"errors"
	"sync"
	"time"
)

// ErrZeroHandle is returned by [ReferenceRing.Open] for the zero [Handle].
var ErrZeroHandle = errors.New("reverse: zero session handle")

// ReferenceRing is a [Processor] that retains the most recent reverse audio
// of each open session in a fixed-size ring. A capture-side echo canceller
// reads it back with [ReferenceRing.Reference].
//
// All methods are safe for concurrent use.
type ReferenceRing struct {
	capacity int
	channels int

	mu       sync.RWMutex
	sessions map[Handle]*ring
	closed   bool
}

type ring struct {
	mu     sync.Mutex
	data   []float32
	next   int
	filled bool
	total  uint64
}

// NewReferenceRing returns a ring that keeps history worth of interleaved
// audio in the given format. A non-positive history defaults to one second.
func NewReferenceRing(history time.Duration, sampleRate, channels int) *ReferenceRing {
	if history <= 0 {
		history = time.Second
	}
	capacity := int(int64(history) * int64(sampleRate) / int64(time.Second) * int64(channels))
	if capacity <= 0 {
		capacity = 1
	}
	return &ReferenceRing{
		capacity: capacity,
		channels: max(channels, 1),
		sessions: make(map[Handle]*ring),
	}
}

// Capacity returns the number of samples retained per session.
func (r *ReferenceRing) Capacity() int { return r.capacity }

// Open starts retaining audio for h. Opening an already open session is a
// no-op.
func (r *ReferenceRing) Open(h Handle) error {
	if h == 0 {
		return ErrZeroHandle
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("reverse: reference ring closed")
	}
	if _, ok := r.sessions[h]; !ok {
		r.sessions[h] = &ring{data: make([]float32, r.capacity)}
	}
	return nil
}

// Release forgets the audio of h.
func (r *ReferenceRing) Release(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, h)
}

// Close releases all sessions. Subsequent calls to ProcessReverse return
// [StatusClosed].
func (r *ReferenceRing) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	clear(r.sessions)
	return nil
}

// ProcessReverse implements [Processor]. The samples are copied; the caller's
// slice is left untouched.
func (r *ReferenceRing) ProcessReverse(h Handle, samples []float32) Status {
	if h == 0 {
		return StatusInvalidHandle
	}
	if len(samples)%r.channels != 0 {
		return StatusInvalidFormat
	}
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return StatusClosed
	}
	s, ok := r.sessions[h]
	r.mu.RUnlock()
	if !ok {
		return StatusUnknownSession
	}
	s.write(samples)
	return StatusOK
}

// Reference copies the most recent len(dst) samples of h into dst, oldest
// first. It returns the number of samples copied, which is smaller than
// len(dst) when less audio has been retained. ok is false for unknown
// sessions.
func (r *ReferenceRing) Reference(h Handle, dst []float32) (n int, ok bool) {
	r.mu.RLock()
	s, ok := r.sessions[h]
	r.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return s.read(dst), true
}

// Written returns the total number of samples accepted for h.
func (r *ReferenceRing) Written(h Handle) uint64 {
	r.mu.RLock()
	s, ok := r.sessions[h]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *ring) write(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total += uint64(len(samples))
	// Only the tail can survive when the block exceeds the ring.
	if len(samples) >= len(s.data) {
		copy(s.data, samples[len(samples)-len(s.data):])
		s.next = 0
		s.filled = true
		return
	}
	n := copy(s.data[s.next:], samples)
	if n < len(samples) {
		copy(s.data, samples[n:])
		s.filled = true
	}
	s.next = (s.next + len(samples)) % len(s.data)
	if s.next == 0 {
		s.filled = true
	}
}

func (s *ring) read(dst []float32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	avail := s.next
	if s.filled {
		avail = len(s.data)
	}
	n := min(len(dst), avail)
	start := (s.next - n + len(s.data)) % len(s.data)
	first := copy(dst[:n], s.data[start:])
	if first < n {
		copy(dst[first:n], s.data)
	}
	return n
}
