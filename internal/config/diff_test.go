package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/submixtap/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Tap:    config.TapConfig{SampleRate: 48000},
	}
	d := config.Diff(cfg, cfg)
	if d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level alone must not require a restart, got %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":8080"},
		Tap:       config.TapConfig{Resample: false},
		Device:    config.DeviceConfig{Name: config.DeviceSynth},
		Processor: config.ProcessorConfig{Name: config.ProcessorPassthrough},
	}
	new := &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":9090"},
		Tap:       config.TapConfig{Resample: true},
		Device:    config.DeviceConfig{Name: config.DeviceNetwork},
		Processor: config.ProcessorConfig{Name: config.ProcessorPassthrough},
	}

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "tap", "device"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false")
	}
	if !d.Changed() {
		t.Error("Changed() should be true")
	}
}
