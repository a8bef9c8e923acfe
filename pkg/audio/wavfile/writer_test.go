package wavfile_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/MrWong99/submixtap/pkg/audio"
	"github.com/MrWong99/submixtap/pkg/audio/wavfile"
)

func TestWriter_Path(t *testing.T) {
	dir := t.TempDir()
	w := wavfile.New(dir)

	got, err := w.Path("out.wav")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want := filepath.Join(dir, wavfile.Subdir, "out.wav")
	if got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}

	got, _ = w.Path("take1")
	if filepath.Base(got) != "take1.wav" {
		t.Errorf("missing extension not appended: %q", got)
	}
	got, _ = w.Path("LOUD.WAV")
	if filepath.Base(got) != "LOUD.WAV" {
		t.Errorf("upper-case extension should be kept: %q", got)
	}
}

func TestWriter_PathRejectsBadNames(t *testing.T) {
	w := wavfile.New(t.TempDir())
	if _, err := w.Path(""); !errors.Is(err, wavfile.ErrEmptyName) {
		t.Errorf("empty name error = %v", err)
	}
	for _, name := range []string{"../escape.wav", "a/b.wav", "..", `dir\x.wav`} {
		if _, err := w.Path(name); !errors.Is(err, wavfile.ErrInvalidName) {
			t.Errorf("Path(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestWriter_BeginWrite(t *testing.T) {
	dir := t.TempDir()

	var (
		mu      sync.Mutex
		results []error
	)
	w := wavfile.New(dir, wavfile.WithResult(func(_ string, frames int, _ time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		if frames != 3 {
			t.Errorf("result frames = %d, want 3", frames)
		}
		results = append(results, err)
	}))

	buf := audio.NewBuffer([]float32{0, 0, 0.5, -0.5, 1, -1}, 2, 44100)
	done := make(chan string, 1)
	if err := w.BeginWrite(buf, "out.wav", func(path string) { done <- path }); err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}

	var path string
	select {
	case path = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("write did not complete")
	}
	w.Wait()

	if !filepath.IsAbs(path) {
		t.Errorf("callback path %q is not absolute", path)
	}
	mu.Lock()
	if len(results) != 1 || results[0] != nil {
		t.Errorf("results = %v, want one nil error", results)
	}
	mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.NumChans != 2 || dec.SampleRate != 44100 || dec.BitDepth != 16 {
		t.Errorf("header = %dch %dHz %dbit", dec.NumChans, dec.SampleRate, dec.BitDepth)
	}
	want := []int{0, 0, 16383, -16383, 32767, -32767}
	if len(pcm.Data) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(pcm.Data), len(want))
	}
	for i := range want {
		if pcm.Data[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, pcm.Data[i], want[i])
		}
	}
}

func TestWriter_EmptyBufferUsesFallback(t *testing.T) {
	dir := t.TempDir()
	w := wavfile.New(dir, wavfile.WithFallbackFormat(audio.Format{SampleRate: 44100, Channels: 2}))

	done := make(chan string, 1)
	if err := w.BeginWrite(audio.Buffer{}, "empty", func(p string) { done <- p }); err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	w.Wait()

	select {
	case p := <-done:
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if info.Size() < 44 {
			t.Errorf("file size %d is smaller than a WAV header", info.Size())
		}
	default:
		t.Fatal("onSuccess not called for empty buffer")
	}
}

func TestWriter_FailureSkipsCallback(t *testing.T) {
	dir := t.TempDir()
	// A regular file where the output directory should be makes MkdirAll fail.
	if err := os.WriteFile(filepath.Join(dir, wavfile.Subdir), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotErr error
	w := wavfile.New(dir, wavfile.WithResult(func(_ string, _ int, _ time.Duration, err error) {
		gotErr = err
	}))
	called := false
	if err := w.BeginWrite(audio.NewBuffer([]float32{0, 0}, 2, 48000), "x.wav", func(string) { called = true }); err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	w.Wait()

	if called {
		t.Error("onSuccess called after failed write")
	}
	if gotErr == nil {
		t.Error("result hook did not receive an error")
	}
}
