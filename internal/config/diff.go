package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TranscriptChanged is set when vocabulary, markers or the minimum
	// length changed. These are applied without restart.
	TranscriptChanged bool

	// RestartRequired names the sections whose changes only take effect
	// after a restart: asr, gesture, keys, recorder, listen and server.
	RestartRequired []string
}

// HotReloadable reports whether every change in d can be applied live.
func (d ConfigDiff) HotReloadable() bool { return len(d.RestartRequired) == 0 }

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}

	ot, nt := old.Transcript, new.Transcript
	if ot.MinRunes != nt.MinRunes ||
		!slices.Equal(ot.Vocabulary, nt.Vocabulary) ||
		!slices.Equal(ot.Markers, nt.Markers) {
		d.TranscriptChanged = true
	}

	if !asrEqual(old.ASR, new.ASR) {
		d.RestartRequired = append(d.RestartRequired, "asr")
	}
	if old.Gesture != new.Gesture {
		d.RestartRequired = append(d.RestartRequired, "gesture")
	}
	if old.Keys != new.Keys {
		d.RestartRequired = append(d.RestartRequired, "keys")
	}
	if old.Recorder != new.Recorder {
		d.RestartRequired = append(d.RestartRequired, "recorder")
	}
	if old.Listen != new.Listen {
		d.RestartRequired = append(d.RestartRequired, "listen")
	}
	if old.Server != new.Server {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	return d
}

func asrEqual(a, b ASRConfig) bool {
	return a.Backend == b.Backend &&
		slices.Equal(a.Fallbacks, b.Fallbacks) &&
		a.Device == b.Device &&
		a.ModelsDir == b.ModelsDir &&
		a.FFmpeg == b.FFmpeg &&
		a.Language == b.Language &&
		a.MaxTokens == b.MaxTokens &&
		a.Whisper == b.Whisper &&
		a.Wav2Vec2 == b.Wav2Vec2 &&
		a.OpenAI == b.OpenAI &&
		a.Breaker == b.Breaker
}
