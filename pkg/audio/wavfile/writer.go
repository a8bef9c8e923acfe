// Package wavfile writes accumulated audio buffers to 16-bit PCM WAV files in
// the background.
//
// Files always land in <saved dir>/BouncedWavFiles/<name>; the subdirectory is
// fixed and not configurable.
package wavfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/submixtap/pkg/audio"
)

// Subdir is the directory below the saved dir that receives all recordings.
const Subdir = "BouncedWavFiles"

const (
	bitDepth  = 16
	pcmFormat = 1
)

var (
	// ErrEmptyName is returned by [Writer.BeginWrite] for an empty file name.
	ErrEmptyName = errors.New("wavfile: empty file name")

	// ErrInvalidName is returned by [Writer.BeginWrite] for names that would
	// leave the output directory.
	ErrInvalidName = errors.New("wavfile: file name must not contain path elements")
)

// ResultFunc observes the outcome of every write. path is empty when the path
// could not be resolved.
type ResultFunc func(path string, frames int, elapsed time.Duration, err error)

// Option configures a [Writer].
type Option func(*Writer)

// WithFallbackFormat sets the format written for buffers that carry no format
// metadata (e.g. a buffer that never received audio).
func WithFallbackFormat(f audio.Format) Option {
	return func(w *Writer) {
		if f.Channels > 0 && f.SampleRate > 0 {
			w.fallback = f
		}
	}
}

// WithResult registers a hook that is called after every write attempt, on the
// writer goroutine.
func WithResult(fn ResultFunc) Option {
	return func(w *Writer) { w.result = fn }
}

// Writer encodes buffers to WAV files asynchronously. It is safe for
// concurrent use.
type Writer struct {
	dir      string
	fallback audio.Format
	result   ResultFunc
	tracer   trace.Tracer

	wg sync.WaitGroup
}

// New returns a [Writer] that stores files below savedDir/[Subdir].
func New(savedDir string, opts ...Option) *Writer {
	w := &Writer{
		dir:      filepath.Join(savedDir, Subdir),
		fallback: audio.Format{SampleRate: 48000, Channels: 2},
		tracer:   otel.Tracer("github.com/MrWong99/submixtap/pkg/audio/wavfile"),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Dir returns the directory files are written to.
func (w *Writer) Dir() string { return w.dir }

// Path returns the absolute path a file called name would be written to,
// appending a ".wav" extension when missing.
func (w *Writer) Path(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	if name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !strings.EqualFold(filepath.Ext(name), ".wav") {
		name += ".wav"
	}
	p, err := filepath.Abs(filepath.Join(w.dir, name))
	if err != nil {
		return "", fmt.Errorf("wavfile: resolve %q: %w", name, err)
	}
	return p, nil
}

// BeginWrite starts writing buf to the file called name and returns
// immediately. onSuccess, if non-nil, is called with the absolute path once the
// file is complete; it is not called on failure. Failures are logged and
// reported through the [WithResult] hook.
//
// buf is owned by the writer after the call; the caller must not modify it.
func (w *Writer) BeginWrite(buf audio.Buffer, name string, onSuccess func(path string)) error {
	path, err := w.Path(name)
	if err != nil {
		return err
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		start := time.Now()
		err := w.write(path, buf)
		if w.result != nil {
			w.result(path, buf.Frames(), time.Since(start), err)
		}
		if err != nil {
			slog.Error("wav write failed", "path", path, "err", err)
			return
		}
		slog.Info("saved recording", "path", path, "frames", buf.Frames(), "duration", buf.Duration())
		if onSuccess != nil {
			onSuccess(path)
		}
	}()
	return nil
}

// Wait blocks until all writes started so far have finished.
func (w *Writer) Wait() {
	w.wg.Wait()
}

func (w *Writer) write(path string, buf audio.Buffer) (err error) {
	_, span := w.tracer.Start(context.Background(), "wavfile.write",
		trace.WithAttributes(
			attribute.String("wav.path", path),
			attribute.Int("wav.frames", buf.Frames()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if buf.Channels <= 0 || buf.SampleRate <= 0 {
		buf.Channels = w.fallback.Channels
		buf.SampleRate = w.fallback.SampleRate
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("wavfile: create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavfile: create %q: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("wavfile: close %q: %w", path, cerr)
		}
	}()

	enc := wav.NewEncoder(f, buf.SampleRate, bitDepth, buf.Channels, pcmFormat)
	// Write even when empty so the header is emitted.
	if err := enc.Write(buf.IntBuffer()); err != nil {
		return fmt.Errorf("wavfile: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavfile: finalize: %w", err)
	}
	return nil
}
