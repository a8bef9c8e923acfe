package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Conversion is a bit set describing what [FormatConverter.Convert] did to a
// buffer.
type Conversion uint8

const (
	// Remixed means the channel count was changed to the target.
	Remixed Conversion = 1 << iota

	// Resampled means the sample rate was converted to the target.
	Resampled

	// RateMismatch means the source rate differs from the target and was left
	// as is because no matching resampler was supplied.
	RateMismatch
)

// Has reports whether all bits of flag are set in c.
func (c Conversion) Has(flag Conversion) bool {
	return c&flag == flag
}

// FormatConverter brings buffers to a target format. It logs a warning on the
// first channel mismatch and on the first unresolved sample-rate mismatch.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedChannels sync.Once
	warnedRate     sync.Once
}

// Convert returns b in the target channel count. The sample rate is converted
// only when rs is non-nil and matches b's rate and the target rate; otherwise a
// rate mismatch is reported in the returned [Conversion] and the buffer keeps
// its source rate.
//
// If b already matches the target, b is returned unchanged (zero allocation).
// Conversion order: remix first, then resample.
func (c *FormatConverter) Convert(b Buffer, rs *Resampler) (Buffer, Conversion) {
	var done Conversion

	if b.Channels != c.Target.Channels {
		c.warnedChannels.Do(func() {
			slog.Warn("audio format mismatch: remixing channels",
				"from", b.Format(),
				"to", c.Target,
			)
		})
		b.MixToChannels(c.Target.Channels)
		done |= Remixed
	}

	if b.SampleRate != c.Target.SampleRate {
		if rs != nil && rs.From() == b.SampleRate && rs.To() == c.Target.SampleRate {
			b = rs.Process(b)
			done |= Resampled
		} else {
			c.warnedRate.Do(func() {
				slog.Warn("audio sample rate mismatch: passing through unconverted",
					"from", b.SampleRate,
					"to", c.Target.SampleRate,
				)
			})
			done |= RateMismatch
		}
	}

	return b, done
}

// ErrInvalidRate is returned by [NewResampler] for non-positive sample rates.
var ErrInvalidRate = errors.New("audio: sample rate must be positive")

// Resampler converts interleaved float32 buffers between two fixed sample
// rates using linear interpolation. Each call is independent; no history is
// carried between blocks. Safe for concurrent use.
type Resampler struct {
	from, to int
}

// NewResampler returns a [Resampler] from rate from to rate to.
func NewResampler(from, to int) (*Resampler, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidRate, from, to)
	}
	return &Resampler{from: from, to: to}, nil
}

// From returns the source sample rate.
func (r *Resampler) From() int { return r.from }

// To returns the destination sample rate.
func (r *Resampler) To() int { return r.to }

// Process resamples b to the destination rate. Buffers whose rate is not the
// source rate, or that hold fewer than two frames, are returned unchanged.
func (r *Resampler) Process(b Buffer) Buffer {
	if b.SampleRate != r.from || r.from == r.to {
		return b
	}
	ch := b.Channels
	srcFrames := b.Frames()
	if ch <= 0 || srcFrames < 2 {
		return b
	}
	dstFrames := int(int64(srcFrames) * int64(r.to) / int64(r.from))
	out := make([]float32, dstFrames*ch)
	ratio := float64(r.from) / float64(r.to)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		next := srcIdx + 1
		if next >= srcFrames {
			next = srcIdx
		}
		for c := range ch {
			s0 := b.Samples[srcIdx*ch+c]
			s1 := b.Samples[next*ch+c]
			out[i*ch+c] = s0*(1-frac) + s1*frac
		}
	}

	return Buffer{Samples: out, Channels: ch, SampleRate: r.to}
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
