package netdevice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the length in bytes of the fixed frame header.
const HeaderSize = 14

// Frame is one rendered block as carried in a binary WebSocket message.
//
// Wire layout (little endian):
//
//	offset size field
//	0      2    channels    uint16
//	2      4    sample rate uint32
//	6      8    clock       float64 (seconds)
//	14     4*n  samples     float32, interleaved
type Frame struct {
	Channels   int
	SampleRate int
	Clock      float64
	Samples    []float32
}

var (
	// ErrShortFrame is returned by [DecodeFrame] when the message is shorter
	// than the header.
	ErrShortFrame = errors.New("netdevice: frame shorter than header")

	// ErrMalformedFrame is returned by [DecodeFrame] when the header values
	// or payload length are inconsistent.
	ErrMalformedFrame = errors.New("netdevice: malformed frame")
)

// EncodeFrame serialises f into a new byte slice.
func EncodeFrame(f Frame) []byte {
	out := make([]byte, HeaderSize+4*len(f.Samples))
	binary.LittleEndian.PutUint16(out[0:], uint16(f.Channels))
	binary.LittleEndian.PutUint32(out[2:], uint32(f.SampleRate))
	binary.LittleEndian.PutUint64(out[6:], math.Float64bits(f.Clock))
	for i, s := range f.Samples {
		binary.LittleEndian.PutUint32(out[HeaderSize+4*i:], math.Float32bits(s))
	}
	return out
}

// DecodeFrame parses a binary message produced by [EncodeFrame]. The payload
// must hold a whole number of frames.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
	}
	f := Frame{
		Channels:   int(binary.LittleEndian.Uint16(data[0:])),
		SampleRate: int(binary.LittleEndian.Uint32(data[2:])),
		Clock:      math.Float64frombits(binary.LittleEndian.Uint64(data[6:])),
	}
	payload := data[HeaderSize:]
	switch {
	case f.Channels == 0:
		return Frame{}, fmt.Errorf("%w: zero channels", ErrMalformedFrame)
	case f.SampleRate == 0:
		return Frame{}, fmt.Errorf("%w: zero sample rate", ErrMalformedFrame)
	case len(payload)%4 != 0:
		return Frame{}, fmt.Errorf("%w: payload of %d bytes is not float32 aligned", ErrMalformedFrame, len(payload))
	case (len(payload)/4)%f.Channels != 0:
		return Frame{}, fmt.Errorf("%w: %d samples do not fill %d channels", ErrMalformedFrame, len(payload)/4, f.Channels)
	}
	f.Samples = make([]float32, len(payload)/4)
	for i := range f.Samples {
		f.Samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:]))
	}
	return f, nil
}
