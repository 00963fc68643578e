package config

// Diff describes what changed between two configs. Only fields that can be
// safely hot-reloaded while the client runs are tracked; everything else
// requires a restart.
type DiffResult struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	TargetLanguageChanged bool
	NewTargetLanguage     string
}

// Any reports whether the diff contains at least one change.
func (d DiffResult) Any() bool {
	return d.LogLevelChanged || d.TargetLanguageChanged
}

// Diff compares old and new configs and returns the hot-reloadable changes.
func Diff(old, new *Config) DiffResult {
	d := DiffResult{}
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Stream.TargetLanguage != new.Stream.TargetLanguage {
		d.TargetLanguageChanged = true
		d.NewTargetLanguage = new.Stream.TargetLanguage
	}
	return d
}
