// Package config provides the configuration schema, loader, and factory
// registry for the submixtap server.
package config

// LogLevel controls log verbosity for the submixtap server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Built-in device names.
const (
	DeviceSynth   = "synth"
	DeviceNetwork = "network"
)

// Built-in processor names.
const (
	ProcessorPassthrough   = "passthrough"
	ProcessorReferenceRing = "reference_ring"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultChannels       = 2
	DefaultSavedDir       = "Saved"
	DefaultBlockFrames    = 480
	DefaultFrequency      = 440.0
	DefaultHistorySeconds = 1.0
)

// Config is the root configuration structure for submixtap.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tap       TapConfig       `yaml:"tap"`
	Device    DeviceConfig    `yaml:"device"`
	Processor ProcessorConfig `yaml:"processor"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP control API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Can be changed at runtime by editing the
	// config file.
	LogLevel LogLevel `yaml:"log_level"`
}

// TapConfig configures the submix tap.
type TapConfig struct {
	// Channels is the channel count blocks are remixed to. Default: 2.
	Channels int `yaml:"channels"`

	// SampleRate is the target rate in Hz. Zero selects the platform default
	// (48000 on desktop, 44100 on mobile).
	SampleRate int `yaml:"sample_rate"`

	// Resample enables sample-rate conversion when the device rate differs
	// from the target. When false a mismatch is only logged.
	Resample bool `yaml:"resample"`

	// Autostart registers the tap with the device when the server starts.
	// Otherwise the tap waits for POST /tap/start.
	Autostart bool `yaml:"autostart"`

	// SavedDir is the project saved directory. Recordings are written to
	// <SavedDir>/BouncedWavFiles/. Default: "Saved".
	SavedDir string `yaml:"saved_dir"`
}

// DeviceConfig selects and configures the audio device the tap listens on.
type DeviceConfig struct {
	// Name selects the registered device implementation ("synth", "network").
	Name string `yaml:"name"`

	// SampleRate is the device output rate in Hz. Zero uses the tap target.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the number of channels the synth device renders. Default: 2.
	Channels int `yaml:"channels"`

	// BlockFrames is the number of frames per rendered block. Default: 480.
	BlockFrames int `yaml:"block_frames"`

	// Frequency is the synth tone in Hz. Default: 440.
	Frequency float64 `yaml:"frequency"`
}

// ProcessorConfig selects the reverse-audio processor.
type ProcessorConfig struct {
	// Name selects the registered processor ("passthrough", "reference_ring").
	Name string `yaml:"name"`

	// HistorySeconds is how much far-end audio the reference ring keeps per
	// session. Default: 1.
	HistorySeconds float64 `yaml:"history_seconds"`
}

// ApplyDefaults fills zero-valued fields with their defaults. platformRate is
// used when tap.sample_rate is unset.
func ApplyDefaults(cfg *Config, platformRate int) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Tap.Channels == 0 {
		cfg.Tap.Channels = DefaultChannels
	}
	if cfg.Tap.SampleRate == 0 {
		cfg.Tap.SampleRate = platformRate
	}
	if cfg.Tap.SavedDir == "" {
		cfg.Tap.SavedDir = DefaultSavedDir
	}
	if cfg.Device.Name == "" {
		cfg.Device.Name = DeviceSynth
	}
	if cfg.Device.SampleRate == 0 {
		cfg.Device.SampleRate = cfg.Tap.SampleRate
	}
	if cfg.Device.Channels == 0 {
		cfg.Device.Channels = DefaultChannels
	}
	if cfg.Device.BlockFrames == 0 {
		cfg.Device.BlockFrames = DefaultBlockFrames
	}
	if cfg.Device.Frequency == 0 {
		cfg.Device.Frequency = DefaultFrequency
	}
	if cfg.Processor.Name == "" {
		cfg.Processor.Name = ProcessorPassthrough
	}
	if cfg.Processor.HistorySeconds == 0 {
		cfg.Processor.HistorySeconds = DefaultHistorySeconds
	}
}
