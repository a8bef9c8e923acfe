package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ChangeFunc receives the previous and the reloaded config together with
// their [Diff].
type ChangeFunc func(old, new *Config, d ConfigDiff)

// Watcher polls a config file for edits. When the file's content changes to
// another valid config whose effective settings differ, the [ChangeFunc] is
// called. Invalid edits are logged and the previous config stays current.
type Watcher struct {
	path         string
	interval     time.Duration
	platformRate int
	onChange     ChangeFunc

	mu       sync.Mutex
	current  *Config
	modTime  time.Time
	checksum [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithPlatformRate applies [ApplyDefaults] with rate to every loaded config,
// so that spelling out a default value does not count as a change.
func WithPlatformRate(rate int) WatcherOption {
	return func(w *Watcher) { w.platformRate = rate }
}

// NewWatcher loads the config at path and returns a [Watcher] for it.
// Polling starts with [Watcher.Run].
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.modTime, w.checksum = snap.cfg, snap.modTime, snap.checksum
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll()
		}
	}
}

// snapshot is one successful read of the config file.
type snapshot struct {
	cfg      *Config
	modTime  time.Time
	checksum [sha256.Size]byte
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	same := info.ModTime().Equal(w.modTime)
	w.mu.Unlock()
	if same {
		return
	}

	snap, err := w.read()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	w.modTime = snap.modTime
	if snap.checksum == w.checksum {
		w.mu.Unlock()
		return
	}
	w.checksum = snap.checksum
	old := w.current
	d := Diff(old, snap.cfg)
	if d.Changed() {
		w.current = snap.cfg
	}
	w.mu.Unlock()

	if !d.Changed() {
		slog.Debug("config watcher: file edited without effective change", "path", w.path)
		return
	}
	slog.Info("config watcher: configuration reloaded",
		"path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onChange != nil {
		w.onChange(old, snap.cfg, d)
	}
}

// read loads, validates and (when configured) defaults the file.
func (w *Watcher) read() (snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, fmt.Errorf("config: parse %q: %w", w.path, err)
	}
	if w.platformRate > 0 {
		ApplyDefaults(cfg, w.platformRate)
	}
	return snapshot{cfg: cfg, modTime: info.ModTime(), checksum: sha256.Sum256(data)}, nil
}
