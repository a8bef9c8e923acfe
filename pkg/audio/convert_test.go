package audio_test

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/submixtap/pkg/audio"
)

func approxEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestFormatConverter_NoOp(t *testing.T) {
	conv := audio.FormatConverter{
		Target: audio.Format{SampleRate: 48000, Channels: 2},
	}
	in := audio.NewBuffer([]float32{0.1, 0.2}, 2, 48000)
	out, done := conv.Convert(in, nil)
	if done != 0 {
		t.Errorf("conversion = %b, want none", done)
	}
	// Same slice: pointer equality check.
	if &out.Samples[0] != &in.Samples[0] {
		t.Error("expected same slice (zero allocation) for matching format")
	}
}

func TestFormatConverter_MonoToStereo(t *testing.T) {
	conv := audio.FormatConverter{
		Target: audio.Format{SampleRate: 48000, Channels: 2},
	}
	out, done := conv.Convert(audio.NewBuffer([]float32{0.1, 0.2, 0.3}, 1, 48000), nil)
	if !done.Has(audio.Remixed) {
		t.Errorf("expected Remixed, got %b", done)
	}
	want := []float32{0.1, 0.1, 0.2, 0.2, 0.3, 0.3}
	if len(out.Samples) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(out.Samples), len(want))
	}
	for i := range want {
		if !approxEqual(out.Samples[i], want[i]) {
			t.Errorf("sample %d: got %f, want %f", i, out.Samples[i], want[i])
		}
	}
	if out.SampleRate != 48000 || out.Channels != 2 {
		t.Errorf("unexpected format: %s", out.Format())
	}
}

func TestFormatConverter_RateMismatchWithoutResampler(t *testing.T) {
	conv := audio.FormatConverter{
		Target: audio.Format{SampleRate: 48000, Channels: 2},
	}
	in := audio.NewBuffer(make([]float32, 882), 2, 44100)
	out, done := conv.Convert(in, nil)
	if !done.Has(audio.RateMismatch) || done.Has(audio.Resampled) {
		t.Errorf("conversion = %b, want RateMismatch only", done)
	}
	if out.SampleRate != 44100 {
		t.Errorf("sample rate = %d, want source rate 44100", out.SampleRate)
	}
	if out.Frames() != 441 {
		t.Errorf("frames = %d, want 441", out.Frames())
	}
}

func TestFormatConverter_ResamplerMismatchIgnored(t *testing.T) {
	conv := audio.FormatConverter{
		Target: audio.Format{SampleRate: 48000, Channels: 2},
	}
	rs, err := audio.NewResampler(22050, 48000)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	out, done := conv.Convert(audio.NewBuffer(make([]float32, 20), 2, 44100), rs)
	if !done.Has(audio.RateMismatch) {
		t.Errorf("expected RateMismatch when resampler source rate differs, got %b", done)
	}
	if out.SampleRate != 44100 {
		t.Errorf("sample rate = %d, want 44100", out.SampleRate)
	}
}

func TestFormatConverter_FullConversion(t *testing.T) {
	// 24000 Hz 4ch → 48000 Hz stereo
	conv := audio.FormatConverter{
		Target: audio.Format{SampleRate: 48000, Channels: 2},
	}
	rs, err := audio.NewResampler(24000, 48000)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	in := audio.NewBuffer(make([]float32, 4*100), 4, 24000)
	out, done := conv.Convert(in, rs)
	if !done.Has(audio.Remixed | audio.Resampled) {
		t.Errorf("conversion = %b, want Remixed|Resampled", done)
	}
	if out.Channels != 2 || out.SampleRate != 48000 {
		t.Errorf("format = %s, want 48000Hz stereo", out.Format())
	}
	if out.Frames() != 200 {
		t.Errorf("frames = %d, want 200", out.Frames())
	}
}

func TestNewResampler_InvalidRate(t *testing.T) {
	for _, tc := range []struct{ from, to int }{{0, 48000}, {48000, 0}, {-1, 48000}} {
		if _, err := audio.NewResampler(tc.from, tc.to); !errors.Is(err, audio.ErrInvalidRate) {
			t.Errorf("NewResampler(%d, %d) error = %v, want ErrInvalidRate", tc.from, tc.to, err)
		}
	}
}

func TestResampler_Upsample(t *testing.T) {
	// 2 mono frames at 16kHz → 6 frames at 48kHz (3x)
	rs, _ := audio.NewResampler(16000, 48000)
	out := rs.Process(audio.NewBuffer([]float32{0.1, 0.2}, 1, 16000))
	if len(out.Samples) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(out.Samples))
	}
	if !approxEqual(out.Samples[0], 0.1) {
		t.Errorf("first sample: got %f, want 0.1", out.Samples[0])
	}
	last := out.Samples[len(out.Samples)-1]
	if last < 0.18 || last > 0.22 {
		t.Errorf("last sample: got %f, want close to 0.2", last)
	}
}

func TestResampler_DownsampleStereo(t *testing.T) {
	// 6 stereo frames at 48kHz → 2 frames at 16kHz
	rs, _ := audio.NewResampler(48000, 16000)
	in := audio.NewBuffer([]float32{
		0.1, -0.1, 0.2, -0.2, 0.3, -0.3,
		0.4, -0.4, 0.5, -0.5, 0.6, -0.6,
	}, 2, 48000)
	out := rs.Process(in)
	if out.Frames() != 2 {
		t.Fatalf("expected 2 frames, got %d", out.Frames())
	}
	// Left and right must stay independent.
	for f := range out.Frames() {
		l, r := out.Samples[f*2], out.Samples[f*2+1]
		if !approxEqual(l, -r) {
			t.Errorf("frame %d: left %f and right %f are not mirrored", f, l, r)
		}
	}
}

func TestResampler_SourceRateMismatchUnchanged(t *testing.T) {
	rs, _ := audio.NewResampler(44100, 48000)
	in := audio.NewBuffer([]float32{0.1, 0.2, 0.3}, 1, 22050)
	out := rs.Process(in)
	if len(out.Samples) != 3 || out.SampleRate != 22050 {
		t.Errorf("expected buffer unchanged, got %d samples at %d Hz", len(out.Samples), out.SampleRate)
	}
}

func TestFormatString(t *testing.T) {
	tests := []struct {
		f    audio.Format
		want string
	}{
		{audio.Format{SampleRate: 48000, Channels: 2}, "48000Hz stereo"},
		{audio.Format{SampleRate: 16000, Channels: 1}, "16000Hz mono"},
		{audio.Format{SampleRate: 44100, Channels: 6}, "44100Hz 6ch"},
	}
	for _, tc := range tests {
		if got := tc.f.String(); got != tc.want {
			t.Errorf("Format%+v.String() = %q, want %q", tc.f, got, tc.want)
		}
	}
}
