package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is true when server.log_level differs. The level can be
	// applied without restart.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the dotted paths of changed fields that only take
	// effect after a restart (e.g., "device.name").
	RestartRequired []string
}

// Changed reports whether any tracked field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	restart := func(path string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, path)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("tap", old.Tap != new.Tap)
	restart("device", old.Device != new.Device)
	restart("processor", old.Processor != new.Processor)

	return d
}
