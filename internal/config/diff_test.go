package config

import "testing"

func TestDiff_NoChanges(t *testing.T) {
	a := &Config{}
	a.Server.LogLevel = LogInfo
	a.Stream.TargetLanguage = "de"
	b := &Config{}
	b.Server.LogLevel = LogInfo
	b.Stream.TargetLanguage = "de"

	if d := Diff(a, b); d.Any() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	a := &Config{}
	a.Server.LogLevel = LogInfo
	b := &Config{}
	b.Server.LogLevel = LogDebug

	d := Diff(a, b)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Errorf("diff: %+v", d)
	}
	if d.TargetLanguageChanged {
		t.Error("target language incorrectly flagged")
	}
}

func TestDiff_TargetLanguage(t *testing.T) {
	a := &Config{}
	a.Stream.TargetLanguage = "de"
	b := &Config{}
	b.Stream.TargetLanguage = "fr"

	d := Diff(a, b)
	if !d.TargetLanguageChanged || d.NewTargetLanguage != "fr" {
		t.Errorf("diff: %+v", d)
	}
}
