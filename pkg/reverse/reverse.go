// Package reverse defines the contract for reverse audio processing: feeding
// rendered (speaker-side) audio into an echo canceller as its far-end
// reference signal.
//
// A [Processor] receives interleaved float32 blocks tagged with an opaque
// session [Handle] and reports a [Status]. Processors may modify the samples
// in place. Two implementations ship with this package:
//
//   - [Passthrough] accepts every block and does nothing.
//   - [ReferenceRing] keeps the most recent reference audio per session so a
//     capture-side canceller can align against it.
package reverse

import "fmt"

// Handle identifies a voice-processing session. It is opaque to callers; the
// zero Handle means "no session".
type Handle uint64

// Status is the result code of a processing call. Codes with any of the top
// three bits set are errors.
type Status uint32

const errorMask Status = 0b111 << 29

const (
	// StatusOK means the block was accepted.
	StatusOK Status = 0

	// StatusInvalidHandle means the zero handle was passed.
	StatusInvalidHandle Status = 1<<29 | 1

	// StatusUnknownSession means the handle does not name an open session.
	StatusUnknownSession Status = 1<<29 | 2

	// StatusInvalidFormat means the block's channel count or length is not
	// usable by the processor.
	StatusInvalidFormat Status = 1<<29 | 3

	// StatusClosed means the processor has been shut down.
	StatusClosed Status = 1<<29 | 4
)

// IsError reports whether s is an error status.
func (s Status) IsError() bool {
	return s&errorMask != 0
}

// IsError reports whether s is an error status. It mirrors [Status.IsError]
// for callers that hold plain codes.
func IsError(s Status) bool {
	return s.IsError()
}

// String returns a short name for well-known codes and the hex value otherwise.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidHandle:
		return "invalid handle"
	case StatusUnknownSession:
		return "unknown session"
	case StatusInvalidFormat:
		return "invalid format"
	case StatusClosed:
		return "closed"
	}
	return fmt.Sprintf("status(0x%08x)", uint32(s))
}

// Processor consumes reverse (far-end) audio.
//
// ProcessReverse is called from the audio render goroutine for every block, so
// implementations must return quickly and must be safe for concurrent use.
// samples is interleaved stereo at the caller's target rate.
type Processor interface {
	ProcessReverse(h Handle, samples []float32) Status
}

// Passthrough is a [Processor] that accepts every block unchanged. Use it when
// no echo canceller is linked.
type Passthrough struct{}

// ProcessReverse implements [Processor].
func (Passthrough) ProcessReverse(Handle, []float32) Status { return StatusOK }
