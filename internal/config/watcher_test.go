package config_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/submixtap/internal/config"
)

const baseYAML = `
server:
  log_level: info
device:
  name: synth
`

// change is one invocation of the watcher callback.
type change struct {
	old, new *config.Config
	diff     config.ConfigDiff
}

// watchFile writes content to a temp config, starts a watcher on it and
// returns the path, the watcher and a channel of callback invocations.
func watchFile(t *testing.T, content string, opts ...config.WatcherOption) (string, *config.Watcher, <-chan change) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)

	changes := make(chan change, 8)
	opts = append([]config.WatcherOption{config.WithInterval(20 * time.Millisecond)}, opts...)
	w, err := config.NewWatcher(path, func(old, new *config.Config, d config.ConfigDiff) {
		changes <- change{old: old, new: new, diff: d}
	}, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return path, w, changes
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// rewrite replaces the file content and bumps its mtime so that coarse
// filesystem timestamps still register the edit.
func rewrite(t *testing.T, path, content string, bump time.Duration) {
	t.Helper()
	writeFile(t, path, content)
	ts := time.Now().Add(bump)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func expectChange(t *testing.T, changes <-chan change) change {
	t.Helper()
	select {
	case c := <-changes:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported within 2s")
		return change{}
	}
}

func expectNoChange(t *testing.T, changes <-chan change) {
	t.Helper()
	select {
	case c := <-changes:
		t.Fatalf("unexpected change: %+v", c.diff)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	_, w, _ := watchFile(t, baseYAML)

	cfg := w.Current()
	if cfg.Server.LogLevel != config.LogInfo || cfg.Device.Name != config.DeviceSynth {
		t.Errorf("initial config = %+v", cfg)
	}
	// Without a platform rate no defaults are applied.
	if cfg.Tap.SampleRate != 0 {
		t.Errorf("tap.sample_rate = %d, want 0", cfg.Tap.SampleRate)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcher_LogLevelChange(t *testing.T) {
	t.Parallel()
	path, w, changes := watchFile(t, baseYAML)

	rewrite(t, path, "server:\n  log_level: debug\ndevice:\n  name: synth\n", time.Second)

	c := expectChange(t, changes)
	if c.old.Server.LogLevel != config.LogInfo || c.new.Server.LogLevel != config.LogDebug {
		t.Errorf("old/new log level = %q/%q", c.old.Server.LogLevel, c.new.Server.LogLevel)
	}
	if !c.diff.LogLevelChanged || c.diff.NewLogLevel != config.LogDebug || len(c.diff.RestartRequired) != 0 {
		t.Errorf("diff = %+v", c.diff)
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Errorf("Current() log level = %q", w.Current().Server.LogLevel)
	}
}

func TestWatcher_RestartRequiredChange(t *testing.T) {
	t.Parallel()
	path, _, changes := watchFile(t, baseYAML)

	rewrite(t, path, baseYAML+"processor:\n  name: reference_ring\n", time.Second)

	c := expectChange(t, changes)
	if c.diff.LogLevelChanged || !slices.Equal(c.diff.RestartRequired, []string{"processor"}) {
		t.Errorf("diff = %+v", c.diff)
	}
}

func TestWatcher_InvalidEditKeepsConfig(t *testing.T) {
	t.Parallel()
	path, w, changes := watchFile(t, baseYAML)

	rewrite(t, path, "server:\n  log_level: bananas\n", time.Second)
	expectNoChange(t, changes)
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("Current() log level = %q, want info", w.Current().Server.LogLevel)
	}

	// A later valid edit is still picked up.
	rewrite(t, path, "server:\n  log_level: warn\n", 2*time.Second)
	if c := expectChange(t, changes); c.diff.NewLogLevel != config.LogWarn {
		t.Errorf("diff = %+v", c.diff)
	}
}

func TestWatcher_TouchWithoutEdit(t *testing.T) {
	t.Parallel()
	path, _, changes := watchFile(t, baseYAML)

	ts := time.Now().Add(time.Second)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	expectNoChange(t, changes)
}

func TestWatcher_CommentOnlyEdit(t *testing.T) {
	t.Parallel()
	path, _, changes := watchFile(t, baseYAML)

	rewrite(t, path, "# tuned for the studio box\n"+baseYAML, time.Second)
	expectNoChange(t, changes)
}

func TestWatcher_DefaultValueSpelledOut(t *testing.T) {
	t.Parallel()
	path, w, changes := watchFile(t, baseYAML, config.WithPlatformRate(48000))

	if got := w.Current().Tap.SampleRate; got != 48000 {
		t.Fatalf("defaulted tap.sample_rate = %d, want 48000", got)
	}
	rewrite(t, path, baseYAML+"tap:\n  sample_rate: 48000\n  channels: 2\n", time.Second)
	expectNoChange(t, changes)

	rewrite(t, path, baseYAML+"tap:\n  sample_rate: 44100\n", 2*time.Second)
	if c := expectChange(t, changes); !slices.Equal(c.diff.RestartRequired, []string{"tap", "device"}) {
		t.Errorf("diff = %+v, want tap and device (device rate follows the tap)", c.diff)
	}
}

func TestWatcher_RunReturnsOnCancel(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, baseYAML)

	w, err := config.NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Errorf("Run: %v", err)
	}
}
