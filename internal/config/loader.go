package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidNames lists the built-in implementation names per component kind.
// Used by [Validate] to warn about unrecognised names.
var ValidNames = map[string][]string{
	"device":    {DeviceSynth, DeviceNetwork},
	"processor": {ProcessorPassthrough, ProcessorReferenceRing},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields a zero [Config]. Defaults are not applied.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Zero values are accepted everywhere; they mean "use the default".
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Tap
	if cfg.Tap.Channels < 0 || cfg.Tap.Channels > 8 {
		errs = append(errs, fmt.Errorf("tap.channels %d is out of range [1, 8]", cfg.Tap.Channels))
	}
	if cfg.Tap.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("tap.sample_rate %d must be positive", cfg.Tap.SampleRate))
	}

	// Device
	validateName("device", cfg.Device.Name)
	if cfg.Device.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("device.sample_rate %d must be positive", cfg.Device.SampleRate))
	}
	if cfg.Device.Channels < 0 || cfg.Device.Channels > 8 {
		errs = append(errs, fmt.Errorf("device.channels %d is out of range [1, 8]", cfg.Device.Channels))
	}
	if cfg.Device.BlockFrames < 0 {
		errs = append(errs, fmt.Errorf("device.block_frames %d must be positive", cfg.Device.BlockFrames))
	}
	if cfg.Device.Frequency < 0 {
		errs = append(errs, fmt.Errorf("device.frequency %.2f must be positive", cfg.Device.Frequency))
	}

	// Processor
	validateName("processor", cfg.Processor.Name)
	if cfg.Processor.HistorySeconds < 0 || cfg.Processor.HistorySeconds > 60 {
		errs = append(errs, fmt.Errorf("processor.history_seconds %.2f is out of range (0, 60]", cfg.Processor.HistorySeconds))
	}

	// Cross-validation
	if cfg.Tap.Resample && cfg.Device.SampleRate != 0 && cfg.Device.SampleRate == cfg.Tap.SampleRate {
		slog.Debug("tap.resample is enabled but device and tap rates already match")
	}

	return errors.Join(errs...)
}

// validateName logs a warning if name is non-empty and not found in the
// [ValidNames] list for the given kind.
func validateName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown component name, may be a typo or a third-party registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
