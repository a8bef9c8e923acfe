package audio

import (
	"time"

	goaudio "github.com/go-audio/audio"
)

// Buffer is a block of interleaved float32 samples. Samples hold
// Frames()*Channels values in the nominal range [-1, 1].
//
// A Buffer built by [NewBuffer] aliases the caller's slice; operations that
// change the channel count or sample rate allocate a new backing array, so the
// caller's memory is only written to by in-place processing such as
// reverse-audio processing.
type Buffer struct {
	// Samples is the interleaved sample data.
	Samples []float32

	// Channels is the number of interleaved channels per frame.
	Channels int

	// SampleRate in Hz.
	SampleRate int
}

// NewBuffer wraps samples as a Buffer without copying.
func NewBuffer(samples []float32, channels, sampleRate int) Buffer {
	return Buffer{Samples: samples, Channels: channels, SampleRate: sampleRate}
}

// Format returns the buffer's sample rate and channel count.
func (b Buffer) Format() Format {
	return Format{SampleRate: b.SampleRate, Channels: b.Channels}
}

// Frames returns the number of complete frames in the buffer.
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Clone returns a deep copy of b.
func (b Buffer) Clone() Buffer {
	out := b
	if b.Samples != nil {
		out.Samples = make([]float32, len(b.Samples))
		copy(out.Samples, b.Samples)
	}
	return out
}

// Reset drops all samples and the format metadata. The backing array is kept
// for reuse.
func (b *Buffer) Reset() {
	b.Samples = b.Samples[:0]
	b.Channels = 0
	b.SampleRate = 0
}

// Append copies the samples of src to the end of b. If b's format differs from
// src's, b is re-initialised to src's format first and any previously held
// samples are discarded. It reports whether such a re-initialisation dropped
// samples.
func (b *Buffer) Append(src Buffer) (dropped bool) {
	if b.Channels != src.Channels || b.SampleRate != src.SampleRate {
		dropped = len(b.Samples) > 0
		b.Samples = b.Samples[:0]
		b.Channels = src.Channels
		b.SampleRate = src.SampleRate
	}
	b.Samples = append(b.Samples, src.Samples...)
	return dropped
}

// MixToChannels changes the channel count of b to n.
//
// Upmixing maps destination channel j to source channel j%src, so mono is
// duplicated to every output channel. Downmixing folds source channel i into
// destination channel i%n and averages the folded contributions, so 4 channels
// mixed to stereo average (0,2) into left and (1,3) into right.
//
// A non-positive n, or an n equal to the current channel count, leaves b
// untouched.
func (b *Buffer) MixToChannels(n int) {
	if n <= 0 || n == b.Channels {
		return
	}
	if b.Channels <= 0 {
		b.Channels = n
		return
	}
	src := b.Channels
	frames := b.Frames()
	out := make([]float32, frames*n)

	if n > src {
		for f := range frames {
			in := b.Samples[f*src : f*src+src]
			o := out[f*n : f*n+n]
			for j := range o {
				o[j] = in[j%src]
			}
		}
	} else {
		// Contribution count per destination channel is fixed for the whole buffer.
		weights := make([]float32, n)
		for i := range src {
			weights[i%n]++
		}
		for j := range weights {
			weights[j] = 1 / weights[j]
		}
		for f := range frames {
			in := b.Samples[f*src : f*src+src]
			o := out[f*n : f*n+n]
			for i, s := range in {
				o[i%n] += s
			}
			for j := range o {
				o[j] *= weights[j]
			}
		}
	}

	b.Samples = out
	b.Channels = n
}

// IntBuffer converts b to a 16-bit [goaudio.IntBuffer] suitable for WAV
// encoding. Samples outside [-1, 1] are clipped.
func (b Buffer) IntBuffer() *goaudio.IntBuffer {
	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		data[i] = int(clamp(s) * 32767)
	}
	return &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: b.Channels,
			SampleRate:  b.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
}

func clamp(s float32) float32 {
	switch {
	case s != s:
		return 0
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
